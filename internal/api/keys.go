package api

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// KeySet is the set of accepted API keys.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewKeySet(keys ...string) *KeySet {
	ks := &KeySet{}
	ks.Replace(keys)
	return ks
}

type keysFile struct {
	APIKeys []string `json:"apiKeys"`
}

// LoadKeys reads {"apiKeys": [...]} from path.
func LoadKeys(path string) (*KeySet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api keys: %w", err)
	}
	var f keysFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse api keys: %w", err)
	}
	return NewKeySet(f.APIKeys...), nil
}

func (k *KeySet) Replace(keys []string) {
	m := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key != "" {
			m[key] = struct{}{}
		}
	}
	k.mu.Lock()
	k.keys = m
	k.mu.Unlock()
}

func (k *KeySet) Valid(key string) bool {
	if key == "" {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[key]
	return ok
}

func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}
