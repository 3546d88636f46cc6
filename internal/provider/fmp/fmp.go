// Package fmp adapts the Financial Modeling Prep REST API: real-time
// bid/ask quotes for stocks and forex, and the symbol lists the catalog
// is bootstrapped from.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"pairprice/internal/catalog"
	"pairprice/internal/httpx"
	"pairprice/internal/provider"
)

const (
	DefaultEndpoint = "https://financialmodelingprep.com/api/v3"
	ProviderName    = "fmp"
)

type Config struct {
	Name     string
	Endpoint string
	APIKey   string
	// Timeout bounds a quote request. Symbol list requests use ListTimeout.
	Timeout     time.Duration
	ListTimeout time.Duration
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
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{cfg: cfg, client: hc, log: log.With(slog.String("provider", cfg.Name))}
}

func (p *Provider) Name() string { return p.cfg.Name }

type priceRow struct {
	Symbol      string      `json:"symbol"`
	BidPrice    json.Number `json:"bidPrice"`
	AskPrice    json.Number `json:"askPrice"`
	LastUpdated json.Number `json:"lastUpdated"`
}

func (p *Provider) FetchQuotes(ctx context.Context, assets []provider.Asset) (map[string]provider.Quote, error) {
	out := make(map[string]provider.Quote, len(assets))
	if len(assets) == 0 {
		return out, nil
	}

	// one symbol may be listed under several asset types
	typesBySymbol := make(map[string][]string, len(assets))
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		sym := strings.ToUpper(a.Symbol)
		if _, seen := typesBySymbol[sym]; !seen {
			symbols = append(symbols, sym)
		}
		typesBySymbol[sym] = appendUnique(typesBySymbol[sym], a.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/stock/full/real-time-price/%s?%s",
		strings.TrimRight(p.cfg.Endpoint, "/"),
		strings.Join(symbols, ","),
		url.Values{"apikey": {p.cfg.APIKey}}.Encode())

	var rows []priceRow
	if err := p.client.GetJSON(ctx, p.cfg.Name, u, map[string]string{"Content-Type": "application/json"}, &rows); err != nil {
		p.log.Error("getLatestPrices failed", slog.String("error", err.Error()))
		return nil, err
	}

	for _, r := range rows {
		if isZero(r.BidPrice) || isZero(r.AskPrice) {
			continue
		}
		sym := strings.ToUpper(r.Symbol)
		ts := provider.EpochMillis(toInt64(r.LastUpdated))
		for _, typ := range typesBySymbol[sym] {
			q := provider.Quote{
				Symbol:          sym,
				AssetType:       typ,
				BidPrice:        r.BidPrice.String(),
				AskPrice:        r.AskPrice.String(),
				TimestampMillis: ts,
				Provider:        p.cfg.Name,
			}
			out[q.AssetID()] = q
		}
	}
	return out, nil
}

type stockSymbol struct {
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	ExchangeShortName string `json:"exchangeShortName"`
	Type              string `json:"type"`
}

type forexSymbol struct {
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	Currency          string `json:"currency"`
	StockExchange     string `json:"stockExchange"`
	ExchangeShortName string `json:"exchangeShortName"`
}

var listedExchanges = map[string]bool{"nyse": true, "nasdaq": true, "amex": true, "euronext": true}

// StockSymbols lists traded symbols on the supported exchanges, filed
// under "<type>.<exchange>", e.g. "stock.nasdaq".
func (p *Provider) StockSymbols(ctx context.Context) (catalog.Assets, error) {
	var rows []stockSymbol
	if err := p.list(ctx, "available-traded/list", &rows); err != nil {
		p.log.Error("getStockSymbols failed", slog.String("error", err.Error()))
		return nil, err
	}
	out := make(catalog.Assets)
	for _, r := range rows {
		if r.Symbol == "" || r.Name == "" || r.ExchangeShortName == "" || r.Type == "" {
			continue
		}
		exch := strings.ToLower(r.ExchangeShortName)
		if !listedExchanges[exch] {
			continue
		}
		typ := strings.ToLower(r.Type) + "." + exch
		if out[typ] == nil {
			out[typ] = make(map[string]catalog.Entry)
		}
		sym := strings.ToUpper(r.Symbol)
		out[typ][sym] = catalog.Entry{Symbol: sym, Name: strings.ToUpper(r.Name), Exchange: exch, Type: strings.ToLower(r.Type)}
	}
	return out, nil
}

// ForexSymbols lists currency pairs, filed under the exchange short name
// (normally "forex").
func (p *Provider) ForexSymbols(ctx context.Context) (catalog.Assets, error) {
	var rows []forexSymbol
	if err := p.list(ctx, "symbol/available-forex-currency-pairs", &rows); err != nil {
		p.log.Error("getForexSymbols failed", slog.String("error", err.Error()))
		return nil, err
	}
	out := make(catalog.Assets)
	for _, r := range rows {
		if r.Symbol == "" || r.Name == "" || r.Currency == "" || r.StockExchange == "" || r.ExchangeShortName == "" {
			continue
		}
		typ := strings.ToLower(r.ExchangeShortName)
		if out[typ] == nil {
			out[typ] = make(map[string]catalog.Entry)
		}
		sym := strings.ToUpper(r.Symbol)
		out[typ][sym] = catalog.Entry{Symbol: sym, Name: r.Name, Exchange: typ, Type: typ}
	}
	return out, nil
}

func (p *Provider) list(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ListTimeout)
	defer cancel()
	u := fmt.Sprintf("%s/%s?%s", strings.TrimRight(p.cfg.Endpoint, "/"), path, url.Values{"apikey": {p.cfg.APIKey}}.Encode())
	return p.client.GetJSON(ctx, p.cfg.Name, u, map[string]string{"Content-Type": "application/json"}, out)
}

func isZero(n json.Number) bool {
	if n == "" {
		return true
	}
	f, err := n.Float64()
	return err != nil || f == 0
}

func toInt64(n json.Number) int64 {
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

func appendUnique(in []string, s string) []string {
	for _, v := range in {
		if v == s {
			return in
		}
	}
	return append(in, s)
}
