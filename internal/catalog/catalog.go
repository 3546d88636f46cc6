// Package catalog knows which assets exist. It is loaded once at startup,
// either from a provider's symbol lists or from a file, before the engine
// accepts requests.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"pairprice/internal/provider"
)

// Entry describes one listed asset.
type Entry struct {
	Symbol      string `json:"symbol" yaml:"symbol"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Exchange    string `json:"exchangeShortName,omitempty" yaml:"exchangeShortName,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	PriceFeedID string `json:"priceFeedID,omitempty" yaml:"priceFeedID,omitempty"`
}

// Assets is keyed by asset type, then by upper-cased symbol.
type Assets map[string]map[string]Entry

// Merge copies src into a. Later entries win on conflict.
func (a Assets) Merge(src Assets) {
	for typ, syms := range src {
		if a[typ] == nil {
			a[typ] = make(map[string]Entry, len(syms))
		}
		maps.Copy(a[typ], syms)
	}
}

// Count is the total number of listed symbols.
func (a Assets) Count() int {
	n := 0
	for _, syms := range a {
		n += len(syms)
	}
	return n
}

type Catalog struct {
	mu       sync.RWMutex
	assets   Assets
	prefixes []string // asset types, longest first
}

func New(a Assets) *Catalog {
	c := &Catalog{}
	c.Replace(a)
	return c
}

// Replace swaps the whole listing.
func (c *Catalog) Replace(a Assets) {
	norm := make(Assets, len(a))
	for typ, syms := range a {
		t := strings.ToLower(strings.TrimSpace(typ))
		if t == "" {
			continue
		}
		if norm[t] == nil {
			norm[t] = make(map[string]Entry, len(syms))
		}
		for sym, e := range syms {
			norm[t][strings.ToUpper(sym)] = e
		}
	}
	prefixes := make([]string, 0, len(norm))
	for t := range norm {
		prefixes = append(prefixes, t)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	c.mu.Lock()
	c.assets = norm
	c.prefixes = prefixes
	c.mu.Unlock()
}

// Resolve parses a dotted identifier such as "stock.nasdaq.AAPL" against
// the known asset-type prefixes. The longest matching prefix wins.
func (c *Catalog) Resolve(raw string) (provider.Asset, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.prefixes {
		if len(lower) <= len(p)+1 || !strings.HasPrefix(lower, p) || lower[len(p)] != '.' {
			continue
		}
		return provider.Asset{Type: p, Symbol: strings.ToUpper(raw[len(p)+1:])}, true
	}
	return provider.Asset{}, false
}

// Exists reports whether symbol is listed under assetType.
func (c *Catalog) Exists(assetType, symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.assets[strings.ToLower(assetType)][strings.ToUpper(symbol)]
	return ok
}

// FeedID returns the price feed identifier configured for an asset.
func (c *Catalog) FeedID(a provider.Asset) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.assets[a.Type][a.Symbol]
	if !ok || e.PriceFeedID == "" {
		return "", false
	}
	return e.PriceFeedID, true
}

// SymbolForFeed is the reverse of FeedID within one asset type.
func (c *Catalog) SymbolForFeed(assetType, feedID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for sym, e := range c.assets[assetType] {
		if strings.EqualFold(e.PriceFeedID, feedID) {
			return sym, true
		}
	}
	return "", false
}

// Symbols lists symbols of one asset type, or of all types when empty.
func (c *Catalog) Symbols(assetType string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for typ, syms := range c.assets {
		if assetType != "" && typ != assetType {
			continue
		}
		for sym := range syms {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Len is the number of listed assets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assets.Count()
}

// LoadFile reads a listing from JSON, or YAML when the extension is
// .yaml or .yml.
func LoadFile(path string) (Assets, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var a Assets
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &a)
	default:
		err = json.Unmarshal(b, &a)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return a, nil
}

// Lister returns one provider's listing.
type Lister func(ctx context.Context) (Assets, error)

// ErrBootstrap is returned when a listing could not be assembled.
var ErrBootstrap = errors.New("catalog bootstrap failed")

// Bootstrap calls every lister in parallel and merges their output.
// Listers that failed are called again, up to attempts rounds in total.
func Bootstrap(ctx context.Context, log *slog.Logger, attempts int, listers ...Lister) (Assets, error) {
	if log == nil {
		log = slog.Default()
	}
	if attempts <= 0 {
		attempts = 1
	}
	results := make([]Assets, len(listers))
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var wg sync.WaitGroup
		errs := make([]error, len(listers))
		for i, l := range listers {
			if results[i] != nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, err := l(ctx)
				if err != nil {
					errs[i] = err
					return
				}
				if a == nil {
					a = Assets{}
				}
				results[i] = a
			}()
		}
		wg.Wait()

		lastErr = errors.Join(errs...)
		if lastErr == nil {
			break
		}
		log.Warn("catalog listing attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootstrap, lastErr)
	}

	merged := make(Assets)
	for _, r := range results {
		merged.Merge(r)
	}
	return merged, nil
}
