package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairprice/internal/catalog"
	"pairprice/internal/config"
	"pairprice/internal/engine"
	"pairprice/internal/httpx"
	"pairprice/internal/provider/cache"
	"pairprice/internal/provider/fmp"
	"pairprice/internal/provider/ratelimit"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func TestDecorate(t *testing.T) {
	t.Parallel()

	base := fmp.New(fmp.Config{}, httpx.New(time.Second), quietLogger())

	a := Decorate(base, config.Provider{MaxRequestsPerMinute: 60, Burst: 2})
	require.IsType(t, &ratelimit.TokenBucketAdapter{}, a)

	a = Decorate(base, config.Provider{MinRequestIntervalSec: 1})
	require.IsType(t, &ratelimit.MinInterval{}, a)

	a = Decorate(base, config.Provider{MaxRequestsPerMinute: 60, CacheTTLMs: 500, CacheMaxItems: 10})
	require.IsType(t, &cache.Adapter{}, a)
	require.Equal(t, "fmp", a.Name())

	require.Same(t, base, Decorate(base, config.Provider{}))
}

func TestAdapters_OnlyEnabled(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Alpaca.Enabled = false
	cat := catalog.New(catalog.Assets{})

	got := Adapters(cfg, httpx.New(time.Second), nil, cat, quietLogger())
	require.Len(t, got, 1)
	require.Equal(t, "pyth", got[0].Name())
}

func TestBuild_FromCatalogFileEndToEnd(t *testing.T) {
	t.Parallel()

	// Arrange: a Hermes stand-in and a catalog file listing two feeds.
	hermes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"aa","price":{"price":"6000000000000","expo":-8,"publish_time":1700000000}},
			{"id":"bb","price":{"price":"300000000000","expo":-8,"publish_time":1700000000}}
		]`))
	}))
	t.Cleanup(hermes.Close)

	dir := t.TempDir()
	catalogFile := filepath.Join(dir, "assets.yaml")
	require.NoError(t, os.WriteFile(catalogFile, []byte(`
crypto:
  BTC: {symbol: BTC, priceFeedID: "0xaa"}
  ETH: {symbol: ETH, priceFeedID: "0xbb"}
`), 0o600))

	cfg := config.Default()
	cfg.FMP.Enabled = false
	cfg.Alpaca.Enabled = false
	cfg.Pyth.Endpoint = hermes.URL
	cfg.Catalog.File = catalogFile

	// Act
	a, err := Build(t.Context(), cfg, quietLogger())
	require.NoError(t, err)
	a.Engine.Start(t.Context())
	t.Cleanup(a.Engine.Stop)

	ab := int32(2)
	got, err := a.Engine.GetPairPrice(t.Context(), engine.Query{A: "crypto.BTC", B: "crypto.ETH", ABPrecision: &ab})

	// Assert
	require.NoError(t, err)
	require.Equal(t, "20.00", got.AskRatio)
	require.Equal(t, "20.00", got.BidRatio)
	require.Equal(t, int64(1700000000000), got.TimestampMillis)
	require.Equal(t, 2, a.Catalog.Len())
}

func TestLoadCatalog_EmptyFails(t *testing.T) {
	t.Parallel()

	_, err := LoadCatalog(t.Context(), config.Catalog{RetryAttempts: 1}, nil, quietLogger())
	require.ErrorIs(t, err, catalog.ErrBootstrap)
}
