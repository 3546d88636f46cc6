// Package app assembles the pricing pipeline from configuration. Both
// binaries build the same graph: catalog, decorated provider adapters,
// quote store, fan-out and engine.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pairprice/internal/catalog"
	"pairprice/internal/config"
	"pairprice/internal/engine"
	"pairprice/internal/estimate"
	"pairprice/internal/fanout"
	"pairprice/internal/httpx"
	"pairprice/internal/provider"
	"pairprice/internal/provider/alpaca"
	"pairprice/internal/provider/cache"
	"pairprice/internal/provider/fmp"
	"pairprice/internal/provider/pyth"
	"pairprice/internal/provider/ratelimit"
	"pairprice/internal/quotestore"
)

type App struct {
	Catalog  *catalog.Catalog
	Store    *quotestore.Store
	Adapters []provider.Adapter
	Engine   *engine.Engine
}

// Build loads the catalog and wires every enabled provider. The engine is
// returned unstarted.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	hc := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	var fmpProvider *fmp.Provider
	if cfg.FMP.Enabled {
		fmpProvider = fmp.New(fmp.Config{
			Endpoint: cfg.FMP.Endpoint,
			APIKey:   cfg.FMP.APIKey,
			Timeout:  cfg.FMP.Timeout(),
		}, hc, log)
	}

	assets, err := LoadCatalog(ctx, cfg.Catalog, fmpProvider, log)
	if err != nil {
		return nil, err
	}
	cat := catalog.New(assets)
	log.Info("catalog loaded", slog.Int("assets", cat.Len()))

	adapters := Adapters(cfg, hc, fmpProvider, cat, log)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no provider adapters configured")
	}

	store := quotestore.New(log)
	fan := fanout.New(store, adapters,
		fanout.WithAttempts(cfg.Pricing.RetryAttempts),
		fanout.WithFetchTimeout(time.Duration(cfg.Pricing.FetchTimeoutMs)*time.Millisecond),
		fanout.WithLogger(log))

	eng := engine.New(cat, store, fan,
		engine.WithWorkers(cfg.Pricing.Workers),
		engine.WithQueueSize(cfg.Pricing.QueueSize),
		engine.WithResultTTL(time.Duration(cfg.Pricing.ResultTTLSec)*time.Second),
		engine.WithDefaults(estimate.Options{
			ABPrecision:      int32(cfg.Pricing.DefaultABPrecision),
			ConfPrecision:    int32(cfg.Pricing.DefaultConfPrecision),
			MaxTimestampDiff: cfg.Pricing.DefaultMaxTimestampDiffMs,
		}),
		engine.WithLogger(log))

	return &App{Catalog: cat, Store: store, Adapters: adapters, Engine: eng}, nil
}

// LoadCatalog reads the catalog file when one is configured and merges
// the FMP symbol lists on top when FMP is enabled.
func LoadCatalog(ctx context.Context, cfg config.Catalog, fmpProvider *fmp.Provider, log *slog.Logger) (catalog.Assets, error) {
	assets := make(catalog.Assets)
	if cfg.File != "" {
		fromFile, err := catalog.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		assets.Merge(fromFile)
	}
	if fmpProvider != nil {
		listed, err := catalog.Bootstrap(ctx, log, cfg.RetryAttempts, fmpProvider.StockSymbols, fmpProvider.ForexSymbols)
		if err != nil {
			return nil, err
		}
		assets.Merge(listed)
	}
	if assets.Count() == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", catalog.ErrBootstrap)
	}
	return assets, nil
}

// Adapters returns the enabled providers, each throttled and cached as
// configured.
func Adapters(cfg config.Config, hc *httpx.Client, fmpProvider *fmp.Provider, feeds pyth.FeedResolver, log *slog.Logger) []provider.Adapter {
	var out []provider.Adapter
	if fmpProvider != nil {
		out = append(out, Decorate(fmpProvider, cfg.FMP))
	}
	if cfg.Alpaca.Enabled {
		a := alpaca.New(alpaca.Config{
			Endpoint:  cfg.Alpaca.Endpoint,
			KeyID:     cfg.Alpaca.APIKey,
			SecretKey: cfg.Alpaca.APISecret,
			Timeout:   cfg.Alpaca.Timeout(),
		}, hc, log)
		out = append(out, Decorate(a, cfg.Alpaca))
	}
	if cfg.Pyth.Enabled {
		p := pyth.New(pyth.Config{
			Endpoint: cfg.Pyth.Endpoint,
			Timeout:  cfg.Pyth.Timeout(),
		}, hc, feeds, log)
		out = append(out, Decorate(p, cfg.Pyth))
	}
	return out
}

// Decorate prefers a token bucket when a per-minute budget is set and
// falls back to a minimum interval. The cache sits outermost so cache
// hits do not spend tokens.
func Decorate(a provider.Adapter, pc config.Provider) provider.Adapter {
	if pc.MaxRequestsPerMinute > 0 {
		a = &ratelimit.TokenBucketAdapter{A: a, TB: ratelimit.PerMinute(pc.MaxRequestsPerMinute, pc.Burst)}
	} else if pc.MinRequestIntervalSec > 0 {
		a = &ratelimit.MinInterval{A: a, Interval: time.Duration(pc.MinRequestIntervalSec) * time.Second}
	}
	if pc.CacheTTLMs > 0 {
		a = cache.New(a, pc.CacheTTL(), pc.CacheMaxItems)
	}
	return a
}
