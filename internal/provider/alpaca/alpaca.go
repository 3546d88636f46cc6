// Package alpaca adapts the Alpaca market data API (latest stock quotes).
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"pairprice/internal/httpx"
	"pairprice/internal/provider"
)

const (
	DefaultEndpoint = "https://data.alpaca.markets"
	ProviderName    = "alpaca"
)

// Markets are the asset types Alpaca can quote.
var Markets = []string{"stock.nasdaq", "stock.nyse", "stock.amex"}

// Alpaca tickers carry no punctuation.
var tickerRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type Config struct {
	Name      string
	Endpoint  string
	KeyID     string
	SecretKey string
	Timeout   time.Duration
}

type Provider struct {
	cfg    Config
	client *httpx.Client
	log    *slog.Logger
}

func New(cfg Config, hc *httpx.Client, log *slog.Logger) *Provider {
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
	return &Provider{cfg: cfg, client: hc, log: log.With(slog.String("provider", cfg.Name))}
}

func (p *Provider) Name() string { return p.cfg.Name }

type latestQuote struct {
	T  string      `json:"t"`
	BP json.Number `json:"bp"`
	AP json.Number `json:"ap"`
	BX string      `json:"bx"`
	AX string      `json:"ax"`
}

type latestResponse struct {
	Quotes map[string]latestQuote `json:"quotes"`
}

// FetchQuotes returns an empty batch without calling upstream when none
// of the assets is an Alpaca-quotable stock.
func (p *Provider) FetchQuotes(ctx context.Context, assets []provider.Asset) (map[string]provider.Quote, error) {
	out := make(map[string]provider.Quote, len(assets))

	typeBySymbol := make(map[string]string, len(assets))
	for _, a := range assets {
		if !tickerRe.MatchString(a.Symbol) || !supported(a.Type) {
			continue
		}
		typeBySymbol[strings.ToUpper(a.Symbol)] = a.Type
	}
	if len(typeBySymbol) == 0 {
		return out, nil
	}
	symbols := make([]string, 0, len(typeBySymbol))
	for s := range typeBySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v2/stocks/quotes/latest?%s",
		strings.TrimRight(p.cfg.Endpoint, "/"),
		url.Values{"symbols": {strings.Join(symbols, ",")}}.Encode())
	headers := map[string]string{
		"Content-Type":        "application/json",
		"APCA-API-KEY-ID":     p.cfg.KeyID,
		"APCA-API-SECRET-KEY": p.cfg.SecretKey,
	}

	var body latestResponse
	if err := p.client.GetJSON(ctx, p.cfg.Name, u, headers, &body); err != nil {
		p.log.Error("getLatestPrices failed", slog.String("error", err.Error()))
		return nil, err
	}

	for sym, q := range body.Quotes {
		sym = strings.ToUpper(sym)
		typ, ok := typeBySymbol[sym]
		if !ok || isZero(q.BP) || isZero(q.AP) {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, q.T)
		if err != nil {
			p.log.Error("bad quote timestamp", slog.String("symbol", sym), slog.String("t", q.T))
			return nil, &provider.FetchError{Provider: p.cfg.Name, Op: "decode", Err: fmt.Errorf("quote %s timestamp: %w", sym, err)}
		}
		qq := provider.Quote{
			Symbol:          sym,
			AssetType:       typ,
			BidPrice:        q.BP.String(),
			AskPrice:        q.AP.String(),
			TimestampMillis: ts.UnixMilli(),
			Provider:        p.cfg.Name,
		}
		out[qq.AssetID()] = qq
	}
	return out, nil
}

func supported(assetType string) bool {
	for _, m := range Markets {
		if m == assetType {
			return true
		}
	}
	return false
}

func isZero(n json.Number) bool {
	if n == "" {
		return true
	}
	f, err := n.Float64()
	return err != nil || f == 0
}
