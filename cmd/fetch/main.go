// Command fetch resolves one pair price from the configured providers and
// prints it as JSON, without starting the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"pairprice/internal/app"
	"pairprice/internal/config"
	"pairprice/internal/engine"
	"pairprice/internal/logging"
)

func main() {
	var (
		a, b          string
		abPrecision   int
		confPrecision int
		maxDiff       int64
		timeout       int
		configPath    string
		showQuotes    bool
	)
	flag.StringVar(&a, "a", getenv("PAIR_A", "stock.nasdaq.AAPL"), "asset A identifier (type.SYMBOL)")
	flag.StringVar(&b, "b", getenv("PAIR_B", "stock.nasdaq.MSFT"), "asset B identifier (type.SYMBOL)")
	flag.IntVar(&abPrecision, "ab-precision", -1, "ratio digits; negative uses the configured default")
	flag.IntVar(&confPrecision, "conf-precision", -1, "confidence digits; negative uses the configured default")
	flag.Int64Var(&maxDiff, "max-diff", -1, "staleness window in ms; negative uses the configured default")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 30), "overall timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config file (optional)")
	flag.BoolVar(&showQuotes, "quotes", false, "also print the provider quotes behind the estimate")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, closer := logging.New(cfg.Log)
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	pipeline, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	pipeline.Engine.Start(ctx)
	defer pipeline.Engine.Stop()

	q := engine.Query{A: a, B: b}
	if abPrecision >= 0 {
		p := int32(abPrecision)
		q.ABPrecision = &p
	}
	if confPrecision >= 0 {
		p := int32(confPrecision)
		q.ConfPrecision = &p
	}
	if maxDiff >= 0 {
		q.MaxTimestampDiff = &maxDiff
	}

	price, err := pipeline.Engine.GetPairPrice(ctx, q)
	if err != nil {
		logger.Error("getPairPrice", slog.String("error", err.Error()))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	out := map[string]any{"pairPrice": price}
	if showQuotes {
		records := map[string]any{}
		for _, id := range []string{price.AssetA, price.AssetB} {
			if rec, ok := pipeline.Store.Get(id); ok {
				records[id] = rec
			}
		}
		out["quotes"] = records
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			return x
		}
	}
	return def
}
