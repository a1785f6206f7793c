package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"abhyasika/internal/models"
)

// Collection is the write-through repository for one keyed entity type.
// Reads come from the cache only. Writes persist the whole collection to the
// cache, then hand the changed record to the Propagator.
type Collection[T models.Entity] struct {
	base
	name   string
	global bool
}

func newCollection[T models.Entity](b base, name string, global bool) *Collection[T] {
	return &Collection[T]{base: b, name: name, global: global}
}

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) key(sess *models.Session) (string, error) {
	if c.global {
		return c.name, nil
	}
	lid := sess.LibraryID()
	if lid == "" {
		return "", ErrNoTenant
	}
	return TenantKey(lid, c.name), nil
}

func (c *Collection[T]) load(key string) ([]T, error) {
	raw, found, err := c.cache.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !found || raw == "" {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

func (c *Collection[T]) store(key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.cache.Set(key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// List returns the cached collection. It never fails: a missing or unreadable
// entry yields an empty slice.
func (c *Collection[T]) List(sess *models.Session) []T {
	key, err := c.key(sess)
	if err != nil {
		return []T{}
	}
	items, err := c.load(key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	return items
}

// Get returns the cached record with id.
func (c *Collection[T]) Get(sess *models.Session, id string) (T, bool) {
	for _, item := range c.List(sess) {
		if item.GetID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// mutate runs fn over the cached collection under the key lock and persists
// the result when fn reports a change.
func (c *Collection[T]) mutate(sess *models.Session, fn func([]T) ([]T, bool)) error {
	key, err := c.key(sess)
	if err != nil {
		return err
	}
	unlock := c.locks.lock(key)
	defer unlock()

	items, err := c.load(key)
	if err != nil {
		return err
	}
	next, changed := fn(items)
	if !changed {
		return nil
	}
	return c.store(key, next)
}

// Add inserts item, replacing any record with the same id.
func (c *Collection[T]) Add(ctx context.Context, sess *models.Session, item T) error {
	err := c.mutate(sess, func(items []T) ([]T, bool) {
		for i := range items {
			if items[i].GetID() == item.GetID() {
				items[i] = item
				return items, true
			}
		}
		return append(items, item), true
	})
	if err != nil {
		return err
	}
	c.prop.Upsert(ctx, sess, c.name, item.GetID(), item)
	return nil
}

// AddMany inserts items with a single cache write and propagates each record
// individually.
func (c *Collection[T]) AddMany(ctx context.Context, sess *models.Session, items []T) error {
	if len(items) == 0 {
		return nil
	}
	err := c.mutate(sess, func(existing []T) ([]T, bool) {
		index := make(map[string]int, len(existing))
		for i, item := range existing {
			index[item.GetID()] = i
		}
		for _, item := range items {
			if i, ok := index[item.GetID()]; ok {
				existing[i] = item
				continue
			}
			index[item.GetID()] = len(existing)
			existing = append(existing, item)
		}
		return existing, true
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		c.prop.Upsert(ctx, sess, c.name, item.GetID(), item)
	}
	return nil
}

// Update replaces the record with item's id. A missing id is a silent no-op.
func (c *Collection[T]) Update(ctx context.Context, sess *models.Session, item T) error {
	found := false
	err := c.mutate(sess, func(items []T) ([]T, bool) {
		for i := range items {
			if items[i].GetID() == item.GetID() {
				items[i] = item
				found = true
				return items, true
			}
		}
		return items, false
	})
	if err != nil || !found {
		return err
	}
	c.prop.Upsert(ctx, sess, c.name, item.GetID(), item)
	return nil
}

// Patch merges fields into the record with id and propagates only those
// fields. A missing id is a silent no-op.
func (c *Collection[T]) Patch(ctx context.Context, sess *models.Session, id string, fields models.Document) error {
	found := false
	var mergeErr error
	err := c.mutate(sess, func(items []T) ([]T, bool) {
		for i := range items {
			if items[i].GetID() != id {
				continue
			}
			doc, err := models.Sanitize(items[i])
			if err != nil {
				mergeErr = err
				return items, false
			}
			merged, err := models.Decode[T](doc.Merge(fields))
			if err != nil {
				mergeErr = err
				return items, false
			}
			items[i] = merged
			found = true
			return items, true
		}
		return items, false
	})
	if err != nil {
		return err
	}
	if mergeErr != nil {
		return fmt.Errorf("patch %s/%s: %w", c.name, id, mergeErr)
	}
	if found {
		c.prop.Update(ctx, sess, c.name, id, fields)
	}
	return nil
}

// Delete removes the record with id. A missing id is a silent no-op, but the
// remote delete is still attempted.
func (c *Collection[T]) Delete(ctx context.Context, sess *models.Session, id string) error {
	err := c.mutate(sess, func(items []T) ([]T, bool) {
		for i := range items {
			if items[i].GetID() == id {
				return append(items[:i], items[i+1:]...), true
			}
		}
		return items, false
	})
	if err != nil {
		return err
	}
	c.prop.Delete(ctx, sess, c.name, id)
	return nil
}

// DeleteMany removes every record in ids with a single cache write and
// propagates each delete individually.
func (c *Collection[T]) DeleteMany(ctx context.Context, sess *models.Session, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	err := c.mutate(sess, func(items []T) ([]T, bool) {
		kept := items[:0]
		for _, item := range items {
			if _, ok := drop[item.GetID()]; !ok {
				kept = append(kept, item)
			}
		}
		return kept, true
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		c.prop.Delete(ctx, sess, c.name, id)
	}
	return nil
}

// Rewrite lets fn edit the cached collection in place and persists it when fn
// reports a change. Nothing is propagated.
func (c *Collection[T]) Rewrite(sess *models.Session, fn func(items []T) bool) error {
	return c.mutate(sess, func(items []T) ([]T, bool) {
		return items, fn(items)
	})
}

// Put stores item in the cache only, replacing any record with the same id.
func (c *Collection[T]) Put(sess *models.Session, item T) error {
	return c.mutate(sess, func(items []T) ([]T, bool) {
		for i := range items {
			if items[i].GetID() == item.GetID() {
				items[i] = item
				return items, true
			}
		}
		return append(items, item), true
	})
}

// Replace overwrites the cached collection without propagating. Used by
// hydration and local-only repairs.
func (c *Collection[T]) Replace(sess *models.Session, items []T) error {
	return c.mutate(sess, func([]T) ([]T, bool) { return items, true })
}
