// Package fanout queries every configured provider in parallel for a set
// of assets and merges the results into the quote store, retrying the
// whole round a bounded number of times.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"pairprice/internal/apierr"
	"pairprice/internal/provider"
	"pairprice/internal/quotestore"
)

const (
	DefaultAttempts     = 3
	DefaultFetchTimeout = 5 * time.Second
)

// Ingester is the write side of the quote store.
type Ingester interface {
	Ingest(batch map[string]provider.Quote) quotestore.IngestStats
}

type Orchestrator struct {
	store        Ingester
	adapters     []provider.Adapter
	attempts     int
	fetchTimeout time.Duration
	log          *slog.Logger
}

type Option func(*Orchestrator)

// WithAttempts sets the total number of fan-out rounds, first one included.
func WithAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithFetchTimeout caps each individual provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func New(store Ingester, adapters []provider.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		adapters:     adapters,
		attempts:     DefaultAttempts,
		fetchTimeout: DefaultFetchTimeout,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchAndMerge runs up to the configured number of rounds. A round fails
// if any provider errors; batches from successful providers are ingested
// either way. The returned error wraps apierr.ErrProviderFetchFailed and
// the last round's first provider error.
func (o *Orchestrator) FetchAndMerge(ctx context.Context, assets ...provider.Asset) error {
	if len(o.adapters) == 0 {
		return fmt.Errorf("%w: no providers configured", apierr.ErrProviderFetchFailed)
	}

	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		err := o.round(ctx, assets)
		if err == nil {
			return nil
		}
		lastErr = err
		o.log.Warn("provider fan-out attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", o.attempts),
			slog.String("error", err.Error()))
	}
	return fmt.Errorf("%w: %w", apierr.ErrProviderFetchFailed, lastErr)
}

// round fans out to all adapters and waits for every one of them, so a
// fast failure never cancels a sibling that is about to succeed.
func (o *Orchestrator) round(ctx context.Context, assets []provider.Asset) error {
	var g errgroup.Group
	for _, a := range o.adapters {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
			defer cancel()

			start := time.Now()
			batch, err := a.FetchQuotes(fctx, assets)
			if err != nil {
				o.log.Error("provider fetch failed",
					slog.String("provider", a.Name()),
					slog.Duration("elapsed", time.Since(start)),
					slog.String("error", err.Error()))
				return err
			}
			st := o.store.Ingest(batch)
			o.log.Debug("provider batch merged",
				slog.String("provider", a.Name()),
				slog.Int("quotes", len(batch)),
				slog.Int("applied", st.Applied),
				slog.Int("rejected", st.Rejected),
				slog.Duration("elapsed", time.Since(start)))
			return nil
		})
	}
	return g.Wait()
}
