package remote

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"abhyasika/internal/models"
)

// Memory is an in-process Store. It backs single-node deployments without a
// database and lets tests inject per-collection failures.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]map[docKey]models.Document
	failures map[string]error
}

// docKey addresses a document within one collection.
type docKey struct {
	libraryID string
	id        string
}

func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]map[docKey]models.Document),
		failures: make(map[string]error),
	}
}

// Fail makes every operation on collection return err until Heal is called.
func (m *Memory) Fail(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[collection] = err
}

// Heal clears all injected failures.
func (m *Memory) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
}

// Get returns a copy of one document.
func (m *Memory) Get(collection, libraryID, id string) (models.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][docKey{libraryID, id}]
	if !ok {
		return nil, false
	}
	return clone(doc), true
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[collection])
}

func (m *Memory) Query(_ context.Context, collection string, filter map[string]any) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failures[collection]; err != nil {
		return nil, err
	}

	want := clone(models.Document(filter))
	keys := make([]docKey, 0, len(m.docs[collection]))
	for k, doc := range m.docs[collection] {
		if matches(doc, want) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].id != keys[j].id {
			return keys[i].id < keys[j].id
		}
		return keys[i].libraryID < keys[j].libraryID
	})

	out := make([]models.Document, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m.docs[collection][k]))
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, collection, libraryID, id string, doc models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[collection]; err != nil {
		return err
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[docKey]models.Document)
	}
	m.docs[collection][docKey{libraryID, id}] = clone(doc)
	return nil
}

func (m *Memory) Update(_ context.Context, collection, libraryID, id string, patch models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[collection]; err != nil {
		return err
	}
	k := docKey{libraryID, id}
	doc, ok := m.docs[collection][k]
	if !ok {
		return ErrNotFound
	}
	m.docs[collection][k] = doc.Merge(clone(patch))
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, libraryID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[collection]; err != nil {
		return err
	}
	delete(m.docs[collection], docKey{libraryID, id})
	return nil
}

func matches(doc, filter models.Document) bool {
	for k, v := range filter {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}

// clone deep-copies through JSON so stored values have the same shapes a
// database round trip would produce (numbers as float64, nested maps).
func clone(doc models.Document) models.Document {
	if doc == nil {
		return models.Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return models.Document{}
	}
	out := models.Document{}
	_ = json.Unmarshal(data, &out)
	return out
}
