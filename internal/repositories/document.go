package repositories

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"abhyasika/internal/models"
)

// Document is the write-through repository for a per-tenant singleton such as
// the profile or settings. Its remote id is the tenant id.
type Document[T any] struct {
	base
	name string
}

func newDocument[T any](b base, name string) *Document[T] {
	return &Document[T]{base: b, name: name}
}

func (d *Document[T]) Name() string { return d.name }

// Get returns the cached document, reporting false when absent or unreadable.
func (d *Document[T]) Get(sess *models.Session) (T, bool) {
	var out T
	lid := sess.LibraryID()
	if lid == "" {
		return out, false
	}
	key := TenantKey(lid, d.name)
	raw, found, err := d.cache.Get(key)
	if err != nil || !found {
		if err != nil {
			d.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return out, false
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		d.logger.Warn("cache entry unreadable", zap.String("key", key), zap.Error(err))
		var zero T
		return zero, false
	}
	return out, true
}

// Save writes v to the cache and propagates it.
func (d *Document[T]) Save(ctx context.Context, sess *models.Session, v T) error {
	if err := d.Replace(sess, v); err != nil {
		return err
	}
	d.prop.Upsert(ctx, sess, d.name, sess.LibraryID(), v)
	return nil
}

// Replace writes v to the cache only.
func (d *Document[T]) Replace(sess *models.Session, v T) error {
	lid := sess.LibraryID()
	if lid == "" {
		return ErrNoTenant
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := TenantKey(lid, d.name)
	unlock := d.locks.lock(key)
	defer unlock()
	return d.cache.Set(key, string(data))
}
