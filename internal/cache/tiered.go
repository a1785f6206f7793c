package cache

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// Tiered fronts a durable backend with an in-process ristretto L1.
// Get checks L1 first, then the backend (backfilling L1 on a hit).
// Set and Remove write the backend first, so the durable copy is never older
// than L1.
type Tiered struct {
	mu      sync.RWMutex
	l1      *ristretto.Cache[string, string]
	backend Cache
}

// NewTiered creates a tiered cache. maxCostBytes bounds the total size of L1 values.
func NewTiered(backend Cache, maxCostBytes int64) (*Tiered, error) {
	l1, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Tiered{l1: l1, backend: backend}, nil
}

func (t *Tiered) Get(key string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if v, ok := t.l1.Get(key); ok {
		return v, true, nil
	}
	v, found, err := t.backend.Get(key)
	if err != nil || !found {
		return "", false, err
	}
	t.l1.Set(key, v, int64(len(v)))
	return v, true, nil
}

func (t *Tiered) Set(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.backend.Set(key, value); err != nil {
		t.l1.Del(key)
		return err
	}
	t.l1.Del(key)
	t.l1.Set(key, value, int64(len(value)))
	// L1 admission is buffered; wait so the next Get sees this value or a miss.
	t.l1.Wait()
	return nil
}

func (t *Tiered) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.l1.Del(key)
	t.l1.Wait()
	return t.backend.Remove(key)
}

func (t *Tiered) Close() {
	t.l1.Close()
}
