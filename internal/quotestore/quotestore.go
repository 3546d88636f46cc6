package quotestore

import (
	"log/slog"
	"sort"
	"sync"

	"pairprice/internal/provider"
)

// ProviderQuote is the latest bid/ask a single provider reported for an asset.
type ProviderQuote struct {
	BidPrice        string `json:"bidPrice"`
	AskPrice        string `json:"askPrice"`
	TimestampMillis int64  `json:"timestamp"`
}

// Record holds the latest quote per provider for one asset identifier.
type Record struct {
	Symbol         string                   `json:"symbol"`
	AssetType      string                   `json:"type"`
	ProviderQuotes map[string]ProviderQuote `json:"providerPrices"`
}

// LatestTimestamp returns the newest timestamp across all providers,
// regardless of staleness. ok is false when the record has no quotes.
func (r Record) LatestTimestamp() (ts int64, ok bool) {
	for _, pq := range r.ProviderQuotes {
		if !ok || pq.TimestampMillis > ts {
			ts = pq.TimestampMillis
			ok = true
		}
	}
	return ts, ok
}

// Providers lists provider names in sorted order.
func (r Record) Providers() []string {
	out := make([]string, 0, len(r.ProviderQuotes))
	for name := range r.ProviderQuotes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Record) clone() Record {
	out := Record{Symbol: r.Symbol, AssetType: r.AssetType, ProviderQuotes: make(map[string]ProviderQuote, len(r.ProviderQuotes))}
	for k, v := range r.ProviderQuotes {
		out.ProviderQuotes[k] = v
	}
	return out
}

// IngestStats reports what a single Ingest call did.
type IngestStats struct {
	Applied  int
	Rejected int
}

// Store is the single mutable table of provider quotes, keyed by asset
// identifier. A provider's quote for an asset only moves forward in time:
// an update older than the stored one is dropped with a warning.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	log     *slog.Logger
}

func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{records: make(map[string]*Record), log: log}
}

// Ingest merges a provider batch. Equal timestamps replace the stored
// quote; older ones are rejected. It never fails.
func (s *Store) Ingest(batch map[string]provider.Quote) IngestStats {
	var st IngestStats
	if len(batch) == 0 {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, q := range batch {
		rec, ok := s.records[id]
		if !ok {
			rec = &Record{Symbol: q.Symbol, AssetType: q.AssetType, ProviderQuotes: make(map[string]ProviderQuote, 3)}
			s.records[id] = rec
		}
		if cur, ok := rec.ProviderQuotes[q.Provider]; ok && q.TimestampMillis < cur.TimestampMillis {
			st.Rejected++
			s.log.Warn("stale quote dropped",
				slog.String("asset", id),
				slog.String("provider", q.Provider),
				slog.Int64("stored_ts", cur.TimestampMillis),
				slog.Int64("incoming_ts", q.TimestampMillis))
			continue
		}
		rec.ProviderQuotes[q.Provider] = ProviderQuote{
			BidPrice:        q.BidPrice,
			AskPrice:        q.AskPrice,
			TimestampMillis: q.TimestampMillis,
		}
		st.Applied++
	}
	return st
}

// Get returns a snapshot of the record for an asset identifier.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Len is the number of assets with at least one quote.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
