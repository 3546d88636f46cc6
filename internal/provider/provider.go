package provider

import (
	"context"
	"fmt"
	"strings"
)

// Asset identifies a tradable instrument: a type prefix such as
// "stock.nasdaq" or "forex" plus an upper-cased symbol.
type Asset struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// ID returns the dotted asset identifier, e.g. "stock.nasdaq.AAPL".
func (a Asset) ID() string { return a.Type + "." + a.Symbol }

func (a Asset) String() string { return a.ID() }

// Quote is the normalized shape returned by all adapters.
// Keep prices as strings; decimal math happens downstream.
type Quote struct {
	Symbol          string `json:"symbol"`
	AssetType       string `json:"type"`
	BidPrice        string `json:"bidPrice"`
	AskPrice        string `json:"askPrice"`
	TimestampMillis int64  `json:"timestamp"`
	Provider        string `json:"provider"`
}

// AssetID is the key a quote is filed under in a batch.
func (q Quote) AssetID() string { return q.AssetType + "." + q.Symbol }

// Adapter fetches the latest bid/ask quotes for a set of assets from one
// market-data feed. The returned batch is keyed by asset identifier.
//
//go:generate mockgen -package=providermock -destination=providermock/adapter.go -source=provider.go Adapter
type Adapter interface {
	Name() string
	FetchQuotes(ctx context.Context, assets []Asset) (map[string]Quote, error)
}

// FetchError describes a failed upstream call. Status is the HTTP status
// when the failure came from a non-2xx response, zero otherwise.
type FetchError struct {
	Provider string
	Op       string
	Status   int
	Body     string
	Err      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" ")
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// EpochMillis normalizes a provider timestamp that may be in seconds or
// milliseconds. Values below 1e12 are treated as seconds.
func EpochMillis(v int64) int64 {
	if v <= 0 {
		return 0
	}
	if v < 1_000_000_000_000 {
		return v * 1000
	}
	return v
}
