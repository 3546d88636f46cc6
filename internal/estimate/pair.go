package estimate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pairprice/internal/apierr"
	"pairprice/internal/quotestore"
)

// NoRounding leaves a ratio or confidence at full precision.
const NoRounding int32 = -1

// Options are the caller-controlled knobs of a pair price derivation.
type Options struct {
	ABPrecision      int32
	ConfPrecision    int32
	MaxTimestampDiff int64
}

// PairPrice is the exchange ratio of asset A in units of asset B.
type PairPrice struct {
	AssetA          string `json:"assetA"`
	AssetB          string `json:"assetB"`
	BidRatio        string `json:"bidRatio"`
	AskRatio        string `json:"askRatio"`
	Confidence      string `json:"confidence"`
	TimestampMillis int64  `json:"timestamp"`
}

// Derive combines the records of two assets into a pair price.
//
// The staleness window is anchored at the newest quote of either record,
// whether or not that quote is otherwise usable. Ratios round half-up to
// ABPrecision digits, confidence is truncated to ConfPrecision digits, and
// the timestamp is the older of the two estimate timestamps.
func Derive(a, b quotestore.Record, opts Options) (PairPrice, error) {
	tsA, okA := a.LatestTimestamp()
	tsB, okB := b.LatestTimestamp()
	if !okA || !okB {
		return PairPrice{}, fmt.Errorf("%w: no quotes for %s", apierr.ErrInsufficientFreshData, missing(a, b, okA))
	}
	allowed := max(tsA, tsB) - opts.MaxTimestampDiff

	estA, ok := Compute(a, allowed)
	if !ok {
		return PairPrice{}, fmt.Errorf("%w: %s", apierr.ErrInsufficientFreshData, id(a))
	}
	estB, ok := Compute(b, allowed)
	if !ok {
		return PairPrice{}, fmt.Errorf("%w: %s", apierr.ErrInsufficientFreshData, id(b))
	}
	if estB.Bid.IsZero() || estB.Ask.IsZero() {
		return PairPrice{}, fmt.Errorf("%w: %s estimate is zero", apierr.ErrDegenerateDivision, id(b))
	}

	bid := estA.Bid.DivRound(estB.Bid, calcPrecision)
	ask := estA.Ask.DivRound(estB.Ask, calcPrecision)
	conf := decimal.Max(estA.BidConfidence, estA.AskConfidence, estB.BidConfidence, estB.AskConfidence)

	return PairPrice{
		AssetA:          id(a),
		AssetB:          id(b),
		BidRatio:        roundHalfUp(bid, opts.ABPrecision),
		AskRatio:        roundHalfUp(ask, opts.ABPrecision),
		Confidence:      truncate(conf, opts.ConfPrecision),
		TimestampMillis: min(estA.TimestampMillis, estB.TimestampMillis),
	}, nil
}

func roundHalfUp(d decimal.Decimal, places int32) string {
	if places < 0 {
		return d.String()
	}
	return d.Round(places).StringFixed(places)
}

func truncate(d decimal.Decimal, places int32) string {
	if places < 0 {
		return d.String()
	}
	return d.RoundDown(places).StringFixed(places)
}

func id(r quotestore.Record) string { return r.AssetType + "." + r.Symbol }

func missing(a, b quotestore.Record, okA bool) string {
	if !okA {
		return id(a)
	}
	return id(b)
}
