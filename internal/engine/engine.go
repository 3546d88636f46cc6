// Package engine answers pair price queries. Queries are handed to a
// fixed pool of workers over a bounded queue; identical queries share one
// provider fan-out through the coalescing cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pairprice/internal/apierr"
	"pairprice/internal/coalesce"
	"pairprice/internal/estimate"
	"pairprice/internal/provider"
	"pairprice/internal/quotestore"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// ErrStopped is returned to callers once Stop has been called.
var ErrStopped = errors.New("engine stopped")

// Resolver turns a raw asset identifier into a catalog asset.
type Resolver interface {
	Resolve(raw string) (provider.Asset, bool)
}

// Fetcher refreshes the quote store for a set of assets.
type Fetcher interface {
	FetchAndMerge(ctx context.Context, assets ...provider.Asset) error
}

// Reader is the read side of the quote store.
type Reader interface {
	Get(id string) (quotestore.Record, bool)
	Len() int
}

// Query is one pair price request. Nil options fall back to the engine
// defaults. RequestID, when set, is the coalescing key as given.
type Query struct {
	A, B             string
	ABPrecision      *int32
	ConfPrecision    *int32
	MaxTimestampDiff *int64
	RequestID        string
}

type result struct {
	price estimate.PairPrice
	err   error
}

type job struct {
	id    string
	ctx   context.Context
	query Query
	reply chan result
}

type Engine struct {
	resolver Resolver
	store    Reader
	fetcher  Fetcher
	results  *coalesce.Cache[estimate.PairPrice]
	defaults estimate.Options
	workers  int
	log      *slog.Logger

	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	base     context.Context
}

type Option func(*Engine)

func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.jobs = make(chan job, n)
		}
	}
}

// WithResultTTL sets how long a settled outcome is served to repeat
// queries.
func WithResultTTL(d time.Duration) Option {
	return func(e *Engine) { e.results = coalesce.New[estimate.PairPrice](d) }
}

func WithDefaults(o estimate.Options) Option {
	return func(e *Engine) { e.defaults = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func New(resolver Resolver, store Reader, fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		store:    store,
		fetcher:  fetcher,
		results:  coalesce.New[estimate.PairPrice](coalesce.DefaultTTL),
		defaults: estimate.Options{ABPrecision: 8, ConfPrecision: 8, MaxTimestampDiff: 60_000},
		workers:  DefaultWorkers,
		log:      slog.Default(),
		jobs:     make(chan job, DefaultQueueSize),
		quit:     make(chan struct{}),
		base:     context.Background(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Stats is a point-in-time view of the engine for health reporting.
type Stats struct {
	Workers int `json:"workers"`
	Queued  int `json:"queued"`
	Results int `json:"results"`
	Assets  int `json:"assets"`
}

// Start launches the workers. They run until ctx ends or Stop is called.
// Once ctx ends, GetPairPrice fails with ErrStopped.
func (e *Engine) Start(ctx context.Context) {
	e.base = ctx
	for range e.workers {
		e.wg.Add(1)
		go e.work(ctx)
	}
	e.log.Info("engine started", slog.Int("workers", e.workers), slog.Int("queue", cap(e.jobs)))
}

// Stop tells workers to exit and waits for in-flight jobs to finish.
// Queued jobs that were not picked up fail with ErrStopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.quit) })
	e.wg.Wait()
}

func (e *Engine) work(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		case j := <-e.jobs:
			j.reply <- e.handle(j)
		}
	}
}

// GetPairPrice queues q and waits for its answer. A caller that gives up
// does not abort the computation; other callers of the same query still
// get its result.
func (e *Engine) GetPairPrice(ctx context.Context, q Query) (estimate.PairPrice, error) {
	if e.base.Err() != nil {
		return estimate.PairPrice{}, ErrStopped
	}
	select {
	case <-e.quit:
		return estimate.PairPrice{}, ErrStopped
	default:
	}
	j := job{id: uuid.NewString(), ctx: ctx, query: q, reply: make(chan result, 1)}

	select {
	case e.jobs <- j:
	case <-e.quit:
		return estimate.PairPrice{}, ErrStopped
	case <-e.base.Done():
		return estimate.PairPrice{}, ErrStopped
	case <-ctx.Done():
		return estimate.PairPrice{}, ctx.Err()
	}

	select {
	case r := <-j.reply:
		return r.price, r.err
	case <-e.quit:
		return estimate.PairPrice{}, ErrStopped
	case <-e.base.Done():
		return estimate.PairPrice{}, ErrStopped
	case <-ctx.Done():
		return estimate.PairPrice{}, ctx.Err()
	}
}

func (e *Engine) Stats() Stats {
	return Stats{
		Workers: e.workers,
		Queued:  len(e.jobs),
		Results: e.results.Len(),
		Assets:  e.store.Len(),
	}
}

func (e *Engine) handle(j job) result {
	log := e.log.With(slog.String("job", j.id))

	a, ok := e.resolver.Resolve(j.query.A)
	if !ok {
		return result{err: fmt.Errorf("%w: %s", apierr.ErrUnknownAsset, j.query.A)}
	}
	b, ok := e.resolver.Resolve(j.query.B)
	if !ok {
		return result{err: fmt.Errorf("%w: %s", apierr.ErrUnknownAsset, j.query.B)}
	}
	opts := e.options(j.query)

	key := j.query.RequestID
	if key == "" {
		key = RequestKey(a, b, opts)
	}

	log = log.With(slog.String("request_id", key), slog.String("state", e.results.Status(key).String()))
	start := time.Now()
	price, err := e.results.Do(j.ctx, key, func() (estimate.PairPrice, error) {
		return e.compute(a, b, opts)
	})
	if err != nil {
		log.Debug("pair price failed", slog.String("error", err.Error()))
		return result{err: err}
	}
	log.Debug("pair price served", slog.Duration("took", time.Since(start)))
	return result{price: price}
}

// compute runs detached from any caller so a departing caller cannot
// fail the shared outcome.
func (e *Engine) compute(a, b provider.Asset, opts estimate.Options) (estimate.PairPrice, error) {
	ctx := context.WithoutCancel(e.base)

	assets := []provider.Asset{a}
	if b.ID() != a.ID() {
		assets = append(assets, b)
	}
	if err := e.fetcher.FetchAndMerge(ctx, assets...); err != nil {
		return estimate.PairPrice{}, err
	}
	return estimate.Derive(e.record(a), e.record(b), opts)
}

func (e *Engine) record(a provider.Asset) quotestore.Record {
	if r, ok := e.store.Get(a.ID()); ok {
		return r
	}
	return quotestore.Record{Symbol: a.Symbol, AssetType: a.Type}
}

func (e *Engine) options(q Query) estimate.Options {
	o := e.defaults
	if q.ABPrecision != nil {
		o.ABPrecision = *q.ABPrecision
	}
	if q.ConfPrecision != nil {
		o.ConfPrecision = *q.ConfPrecision
	}
	if q.MaxTimestampDiff != nil {
		o.MaxTimestampDiff = *q.MaxTimestampDiff
	}
	return o
}

// RequestKey is the coalescing key of a query without an explicit
// request identifier.
func RequestKey(a, b provider.Asset, o estimate.Options) string {
	return fmt.Sprintf("%s|%s|%d|%d|%d", a.ID(), b.ID(), o.ABPrecision, o.ConfPrecision, o.MaxTimestampDiff)
}
