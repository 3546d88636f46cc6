package quotestore

import (
	"bytes"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pairprice/internal/provider"
)

func quote(src, bid, ask string, ts int64) provider.Quote {
	return provider.Quote{Symbol: "AAPL", AssetType: "stock.nasdaq", BidPrice: bid, AskPrice: ask, TimestampMillis: ts, Provider: src}
}

func TestIngest_CreatesRecordLazily(t *testing.T) {
	s := New(nil)
	_, ok := s.Get("stock.nasdaq.AAPL")
	require.False(t, ok)

	st := s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "150.00", "150.10", 1000)})
	require.Equal(t, IngestStats{Applied: 1}, st)

	rec, ok := s.Get("stock.nasdaq.AAPL")
	require.True(t, ok)
	require.Equal(t, "AAPL", rec.Symbol)
	require.Equal(t, "stock.nasdaq", rec.AssetType)
	require.Equal(t, ProviderQuote{BidPrice: "150.00", AskPrice: "150.10", TimestampMillis: 1000}, rec.ProviderQuotes["fmp"])
}

func TestIngest_ProvidersMergeIndependently(t *testing.T) {
	s := New(nil)
	s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "150.00", "150.10", 1000)})
	s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("alpaca", "150.02", "150.12", 1005)})

	rec, ok := s.Get("stock.nasdaq.AAPL")
	require.True(t, ok)
	require.Equal(t, []string{"alpaca", "fmp"}, rec.Providers())
	ts, ok := rec.LatestTimestamp()
	require.True(t, ok)
	require.Equal(t, int64(1005), ts)
}

func TestIngest_StaleUpdateDroppedWithWarning(t *testing.T) {
	var buf bytes.Buffer
	s := New(slog.New(slog.NewTextHandler(&buf, nil)))

	s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "150.00", "150.10", 2000)})
	st := s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "149.00", "149.10", 1000)})
	require.Equal(t, IngestStats{Rejected: 1}, st)
	require.Contains(t, buf.String(), "stale quote dropped")

	rec, _ := s.Get("stock.nasdaq.AAPL")
	require.Equal(t, "150.00", rec.ProviderQuotes["fmp"].BidPrice)
	require.Equal(t, int64(2000), rec.ProviderQuotes["fmp"].TimestampMillis)
}

func TestIngest_EqualTimestampReplaces(t *testing.T) {
	s := New(nil)
	s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "150.00", "150.10", 1000)})
	s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "151.00", "151.10", 1000)})

	rec, _ := s.Get("stock.nasdaq.AAPL")
	require.Equal(t, "151.00", rec.ProviderQuotes["fmp"].BidPrice)
}

func TestIngest_OutOfOrderNeverRegresses(t *testing.T) {
	s := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	r := rand.New(rand.NewSource(7))

	var max int64
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rr := rand.New(rand.NewSource(seed))
			for j := 0; j < 200; j++ {
				ts := rr.Int63n(1_000_000)
				mu.Lock()
				if ts > max {
					max = ts
				}
				mu.Unlock()
				s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "1", "1", ts)})
			}
		}(r.Int63())
	}
	wg.Wait()

	rec, ok := s.Get("stock.nasdaq.AAPL")
	require.True(t, ok)
	require.Equal(t, max, rec.ProviderQuotes["fmp"].TimestampMillis)
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	s := New(nil)
	s.Ingest(map[string]provider.Quote{"stock.nasdaq.AAPL": quote("fmp", "150.00", "150.10", 1000)})

	rec, _ := s.Get("stock.nasdaq.AAPL")
	rec.ProviderQuotes["fmp"] = ProviderQuote{BidPrice: "0"}

	again, _ := s.Get("stock.nasdaq.AAPL")
	require.Equal(t, "150.00", again.ProviderQuotes["fmp"].BidPrice)
}

func TestLatestTimestamp_EmptyRecord(t *testing.T) {
	_, ok := Record{}.LatestTimestamp()
	require.False(t, ok)
}
