package estimate

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pairprice/internal/quotestore"
)

func record(sym string, quotes map[string]quotestore.ProviderQuote) quotestore.Record {
	return quotestore.Record{Symbol: sym, AssetType: "stock.nasdaq", ProviderQuotes: quotes}
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"150.10": "150.1",
		"0.5":    "0.5",
		".5":     "0.5",
		"7.":     "7",
		"0.001":  "0.001",
	}
	for in, want := range valid {
		d, ok := ParsePrice(in)
		require.Truef(t, ok, "expected %q to parse", in)
		require.Equal(t, want, d.String())
	}
	for _, in := range []string{"", "0", "0.0", "00", "0.", ".000", "-1", "1.2.3", "1e5", "abc", " 1", "."} {
		_, ok := ParsePrice(in)
		require.Falsef(t, ok, "expected %q to be rejected", in)
	}
}

func TestCompute_MeanAndFloorTimestamp(t *testing.T) {
	t.Parallel()

	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"fmp":    {BidPrice: "150.00", AskPrice: "150.10", TimestampMillis: 1000},
		"alpaca": {BidPrice: "150.02", AskPrice: "150.12", TimestampMillis: 1005},
	})

	est, ok := Compute(rec, 0)
	require.True(t, ok)
	require.True(t, est.Bid.Equal(decimal.RequireFromString("150.01")), est.Bid.String())
	require.True(t, est.Ask.Equal(decimal.RequireFromString("150.11")), est.Ask.String())
	require.Equal(t, int64(1000), est.TimestampMillis)
	require.Equal(t, 2, est.Providers)
	require.True(t, est.BidConfidence.IsPositive())
}

func TestCompute_StalenessFilter(t *testing.T) {
	t.Parallel()

	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"fmp":    {BidPrice: "100", AskPrice: "101", TimestampMillis: 999},
		"alpaca": {BidPrice: "200", AskPrice: "201", TimestampMillis: 1000},
		"pyth":   {BidPrice: "300", AskPrice: "301", TimestampMillis: 1001},
	})

	// Assert: quotes at exactly T are kept, quotes below T are excluded.
	est, ok := Compute(rec, 1000)
	require.True(t, ok)
	require.Equal(t, 2, est.Providers)
	require.True(t, est.Bid.Equal(decimal.NewFromInt(250)), est.Bid.String())
	require.Equal(t, int64(1000), est.TimestampMillis)

	_, ok = Compute(rec, 1002)
	require.False(t, ok)
}

func TestCompute_InvalidPricesSkipped(t *testing.T) {
	t.Parallel()

	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"fmp":    {BidPrice: "0", AskPrice: "101", TimestampMillis: 1000},
		"alpaca": {BidPrice: "100", AskPrice: "n/a", TimestampMillis: 1000},
	})
	_, ok := Compute(rec, 0)
	require.False(t, ok)
}

func TestConfidence_IdenticalValuesAreZero(t *testing.T) {
	t.Parallel()

	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"fmp":    {BidPrice: "42.42", AskPrice: "42.5", TimestampMillis: 1},
		"alpaca": {BidPrice: "42.42", AskPrice: "42.50", TimestampMillis: 1},
		"pyth":   {BidPrice: "42.420", AskPrice: "42.5", TimestampMillis: 1},
	})
	est, ok := Compute(rec, 0)
	require.True(t, ok)
	require.True(t, est.BidConfidence.IsZero())
	require.True(t, est.AskConfidence.IsZero())
}

func TestConfidence_SingleProviderIsZero(t *testing.T) {
	t.Parallel()

	est, ok := Compute(record("MSFT", map[string]quotestore.ProviderQuote{
		"fmp": {BidPrice: "300.00", AskPrice: "300.20", TimestampMillis: 1002},
	}), 0)
	require.True(t, ok)
	require.True(t, est.BidConfidence.IsZero())
	require.True(t, est.AskConfidence.IsZero())
}

func TestConfidence_CoefficientOfVariation(t *testing.T) {
	t.Parallel()

	// mean 2, population std-dev 1
	est, ok := Compute(record("X", map[string]quotestore.ProviderQuote{
		"a": {BidPrice: "1", AskPrice: "1", TimestampMillis: 1},
		"b": {BidPrice: "3", AskPrice: "3.000001", TimestampMillis: 1},
	}), 0)
	require.True(t, ok)
	require.True(t, est.BidConfidence.Equal(decimal.RequireFromString("0.5")), est.BidConfidence.String())
	require.True(t, est.AskConfidence.IsPositive())
}

func TestSqrt(t *testing.T) {
	t.Parallel()

	require.True(t, sqrt(decimal.NewFromInt(144), calcPrecision).Equal(decimal.NewFromInt(12)))
	got := sqrt(decimal.NewFromInt(2), calcPrecision).Round(20)
	require.Equal(t, "1.41421356237309504880", got.StringFixed(20))
	require.True(t, sqrt(decimal.Zero, calcPrecision).IsZero())
}

func TestSqrt_OutsideFloatRange(t *testing.T) {
	t.Parallel()

	huge := decimal.New(4, 400)
	require.True(t, sqrt(huge, calcPrecision).Equal(decimal.New(2, 200)))

	tiny := decimal.New(9, -402)
	require.True(t, sqrt(tiny, 450).Equal(decimal.New(3, -201)))
}

func TestConfidence_TinySpreadIsPositive(t *testing.T) {
	t.Parallel()

	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"p1": {BidPrice: "1", AskPrice: "1", TimestampMillis: 10},
		"p2": {BidPrice: "1.0000000000000000000000000001", AskPrice: "1.0000000000000000000000000000000000000000000001", TimestampMillis: 10},
	})

	est, ok := Compute(rec, 0)
	require.True(t, ok)
	require.True(t, est.BidConfidence.IsPositive(), "bid confidence %s", est.BidConfidence)
	require.True(t, est.AskConfidence.IsPositive(), "ask confidence %s", est.AskConfidence)
}

func TestConfidence_TinySpreadOnHugeMeanIsPositive(t *testing.T) {
	t.Parallel()

	big := "1" + strings.Repeat("0", 200)
	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"p1": {BidPrice: big, AskPrice: big, TimestampMillis: 10},
		"p2": {BidPrice: big[:len(big)-1] + "1", AskPrice: big, TimestampMillis: 10},
	})

	est, ok := Compute(rec, 0)
	require.True(t, ok)
	require.True(t, est.BidConfidence.IsPositive())
	require.True(t, est.AskConfidence.IsZero())
}

func TestCompute_HugePricesDoNotPanic(t *testing.T) {
	t.Parallel()

	one := "1" + strings.Repeat("0", 200)
	two := "2" + strings.Repeat("0", 200)
	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"p1": {BidPrice: one, AskPrice: one, TimestampMillis: 10},
		"p2": {BidPrice: two, AskPrice: two, TimestampMillis: 10},
	})

	var est Estimate
	var ok bool
	require.NotPanics(t, func() { est, ok = Compute(rec, 0) })
	require.True(t, ok)
	// population std of {1, 2} over mean 1.5 is 1/3
	require.Equal(t, "0.3333333333", est.BidConfidence.RoundDown(10).StringFixed(10))
}

func TestCompute_ZeroQuoteDoesNotQualify(t *testing.T) {
	t.Parallel()

	rec := record("AAPL", map[string]quotestore.ProviderQuote{
		"p1": {BidPrice: "150", AskPrice: "150.2", TimestampMillis: 10},
		"p2": {BidPrice: "0.0", AskPrice: "0.00", TimestampMillis: 10},
	})

	est, ok := Compute(rec, 0)
	require.True(t, ok)
	require.Equal(t, 1, est.Providers)
	require.Equal(t, "150", est.Bid.String())
}
