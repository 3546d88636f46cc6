package pyth

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairprice/internal/catalog"
	"pairprice/internal/httpx"
	"pairprice/internal/provider"
)

const btcFeed = "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

func testCatalog() *catalog.Catalog {
	return catalog.New(catalog.Assets{
		"crypto": {
			"BTC": {Symbol: "BTC", Type: "crypto", PriceFeedID: btcFeed},
			"XYZ": {Symbol: "XYZ", Type: "crypto"},
		},
	})
}

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return New(Config{Endpoint: srv.URL}, httpx.New(2*time.Second), testCatalog(), log)
}

func TestFetchQuotes_ShiftsExponentAndDerivesBid(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/latest_price_feeds", r.URL.Path)
		require.Equal(t, []string{btcFeed}, r.URL.Query()["ids[]"])
		_, _ = w.Write([]byte(`[{"id":"e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
			"price":{"price":"6543210000000","conf":"1000000","expo":-8,"publish_time":1700000000}}]`))
	})

	got, err := p.FetchQuotes(t.Context(), []provider.Asset{
		{Type: "crypto", Symbol: "BTC"},
		{Type: "crypto", Symbol: "XYZ"},
		{Type: "stock.nasdaq", Symbol: "AAPL"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	q := got["crypto.BTC"]
	require.Equal(t, "65432.1", q.AskPrice)
	require.Equal(t, "65425.55679", q.BidPrice)
	require.Equal(t, int64(1700000000000), q.TimestampMillis)
	require.Equal(t, "pyth", q.Provider)
}

func TestFetchQuotes_NoFeedsSkipsRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })

	got, err := p.FetchQuotes(t.Context(), []provider.Asset{{Type: "crypto", Symbol: "XYZ"}})
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, hits.Load())
}

func TestFetchQuotes_UpstreamError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := p.FetchQuotes(t.Context(), []provider.Asset{{Type: "crypto", Symbol: "BTC"}})
	require.Error(t, err)

	var fe *provider.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusBadGateway, fe.Status)
}
