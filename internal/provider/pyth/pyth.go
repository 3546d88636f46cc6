// Package pyth adapts the Pyth Hermes price service for crypto assets.
// Hermes publishes a single price per feed; the ask is that price and the
// bid is derived from it with a fixed one basis point spread.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pairprice/internal/httpx"
	"pairprice/internal/provider"
)

const (
	DefaultEndpoint = "https://hermes.pyth.network"
	ProviderName    = "pyth"
	AssetType       = "crypto"

	bidPlaces = 8
)

var bidFactor = decimal.RequireFromString("0.9999")

// FeedResolver maps catalog assets to Pyth price feed ids and back.
type FeedResolver interface {
	FeedID(a provider.Asset) (string, bool)
	SymbolForFeed(assetType, feedID string) (string, bool)
}

type Config struct {
	Name     string
	Endpoint string
	Timeout  time.Duration
}

type Provider struct {
	cfg    Config
	client *httpx.Client
	feeds  FeedResolver
	log    *slog.Logger
}

func New(cfg Config, hc *httpx.Client, feeds FeedResolver, log *slog.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = ProviderName
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{cfg: cfg, client: hc, feeds: feeds, log: log.With(slog.String("provider", cfg.Name))}
}

func (p *Provider) Name() string { return p.cfg.Name }

type feedPrice struct {
	Price       json.Number `json:"price"`
	Conf        json.Number `json:"conf"`
	Expo        int32       `json:"expo"`
	PublishTime int64       `json:"publish_time"`
}

type priceFeed struct {
	ID    string    `json:"id"`
	Price feedPrice `json:"price"`
}

func (p *Provider) FetchQuotes(ctx context.Context, assets []provider.Asset) (map[string]provider.Quote, error) {
	out := make(map[string]provider.Quote)

	ids := make([]string, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if a.Type != AssetType {
			continue
		}
		id, ok := p.feeds.FeedID(a)
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, nil
	}
	sort.Strings(ids)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	q := url.Values{}
	for _, id := range ids {
		q.Add("ids[]", id)
	}
	u := fmt.Sprintf("%s/api/latest_price_feeds?%s", strings.TrimRight(p.cfg.Endpoint, "/"), q.Encode())

	var feeds []priceFeed
	if err := p.client.GetJSON(ctx, p.cfg.Name, u, nil, &feeds); err != nil {
		p.log.Error("latest_price_feeds failed", slog.String("error", err.Error()))
		return nil, err
	}

	for _, f := range feeds {
		sym, ok := p.feeds.SymbolForFeed(AssetType, normalizeID(f.ID))
		if !ok {
			p.log.Warn("unknown price feed", slog.String("feed_id", f.ID))
			continue
		}
		raw, err := decimal.NewFromString(f.Price.Price.String())
		if err != nil {
			return nil, &provider.FetchError{Provider: p.cfg.Name, Op: "decode", Err: fmt.Errorf("feed %s price: %w", f.ID, err)}
		}
		ask := raw.Shift(f.Price.Expo)
		if !ask.IsPositive() {
			continue
		}
		bid := ask.Mul(bidFactor).RoundFloor(bidPlaces)
		qq := provider.Quote{
			Symbol:          sym,
			AssetType:       AssetType,
			BidPrice:        bid.String(),
			AskPrice:        ask.String(),
			TimestampMillis: provider.EpochMillis(f.Price.PublishTime),
			Provider:        p.cfg.Name,
		}
		out[qq.AssetID()] = qq
	}
	return out, nil
}

// Hermes returns ids without the 0x prefix the catalog stores.
func normalizeID(id string) string {
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		return id
	}
	return "0x" + id
}
