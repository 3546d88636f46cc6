// Package estimate turns the per-provider quotes of an asset into a single
// bid/ask estimate with a dispersion-based confidence, and combines two
// estimates into a pair price.
package estimate

import (
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"pairprice/internal/quotestore"
)

// calcPrecision bounds intermediate divisions and square roots. Results
// reported without caller rounding carry this many fractional digits at most.
const calcPrecision int32 = 40

// Estimate is the consensus view of one asset, derived on demand.
type Estimate struct {
	Bid             decimal.Decimal
	Ask             decimal.Decimal
	BidConfidence   decimal.Decimal
	AskConfidence   decimal.Decimal
	TimestampMillis int64
	Providers       int
}

var priceRe = regexp.MustCompile(`^(?:[0-9]+\.?[0-9]*|\.[0-9]+)$`)

// ParsePrice accepts a positive decimal string made of digits and at most
// one decimal point. Anything that parses to zero is rejected.
func ParsePrice(s string) (decimal.Decimal, bool) {
	if s == "" || s == "0" || !priceRe.MatchString(s) {
		return decimal.Decimal{}, false
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Compute builds an estimate from the provider quotes of rec whose
// timestamp is at least allowedTimestamp and whose prices parse. ok is
// false when no provider qualifies.
func Compute(rec quotestore.Record, allowedTimestamp int64) (Estimate, bool) {
	bids := make([]decimal.Decimal, 0, len(rec.ProviderQuotes))
	asks := make([]decimal.Decimal, 0, len(rec.ProviderQuotes))
	var minTS int64
	for _, name := range rec.Providers() {
		pq := rec.ProviderQuotes[name]
		if pq.TimestampMillis < allowedTimestamp {
			continue
		}
		bid, ok := ParsePrice(pq.BidPrice)
		if !ok {
			continue
		}
		ask, ok := ParsePrice(pq.AskPrice)
		if !ok {
			continue
		}
		bids = append(bids, bid)
		asks = append(asks, ask)
		if len(bids) == 1 || pq.TimestampMillis < minTS {
			minTS = pq.TimestampMillis
		}
	}
	if len(bids) == 0 {
		return Estimate{}, false
	}

	bidMean := mean(bids)
	askMean := mean(asks)
	return Estimate{
		Bid:             bidMean,
		Ask:             askMean,
		BidConfidence:   coefficientOfVariation(bids, bidMean),
		AskConfidence:   coefficientOfVariation(asks, askMean),
		TimestampMillis: minTS,
		Providers:       len(bids),
	}, true
}

func mean(xs []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(xs))), calcPrecision+scale(xs...))
}

// coefficientOfVariation is the population standard deviation over the
// mean. A single value, or identical values, yield exactly zero; any
// spread at all yields a positive result.
func coefficientOfVariation(xs []decimal.Decimal, m decimal.Decimal) decimal.Decimal {
	if len(xs) < 2 || m.IsZero() {
		return decimal.Zero
	}
	sq := decimal.Zero
	for _, x := range xs {
		d := x.Sub(m)
		sq = sq.Add(d.Mul(d))
	}
	if sq.IsZero() {
		return decimal.Zero
	}
	// Squared deviations need twice the fractional digits of the inputs,
	// and the ratio needs room for the integer digits of the mean.
	places := calcPrecision + 2*max(scale(xs...), scale(m))
	variance := sq.DivRound(decimal.NewFromInt(int64(len(xs))), places)
	return sqrt(variance, places).DivRound(m, places+magnitude(m))
}

// scale is the largest number of fractional digits among ds.
func scale(ds ...decimal.Decimal) int32 {
	var s int32
	for _, d := range ds {
		s = max(s, -d.Exponent())
	}
	return s
}

// magnitude is the position of the leading digit of d: 3 for 150.1,
// -2 for 0.001.
func magnitude(d decimal.Decimal) int32 {
	return int32(len(new(big.Int).Abs(d.Coefficient()).String())) + d.Exponent()
}

var two = decimal.NewFromInt(2)

// sqrt runs Newton's iteration at the given number of fractional digits.
// The seed is the float64 root, or 10^(magnitude/2) when v is outside
// float64 range.
func sqrt(v decimal.Decimal, places int32) decimal.Decimal {
	if v.Sign() <= 0 {
		return decimal.Zero
	}
	var z decimal.Decimal
	if f := math.Sqrt(v.InexactFloat64()); f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f) {
		z = decimal.NewFromFloat(f)
	} else {
		z = decimal.New(1, magnitude(v)/2)
	}
	for i := 0; i < 200; i++ {
		next := z.Add(v.DivRound(z, places)).DivRound(two, places)
		if next.Equal(z) {
			break
		}
		z = next
	}
	return z
}
