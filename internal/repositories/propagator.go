package repositories

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"abhyasika/internal/metrics"
	"abhyasika/internal/models"
	"abhyasika/internal/remote"
)

// Propagator mirrors single-record changes to the remote store in the
// background. Failures are logged and counted, never returned, and never roll
// back the cache. Writes to the same document reach the store in the order
// they were issued.
type Propagator struct {
	store   remote.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup

	mu    sync.Mutex
	tails map[string]chan struct{}
}

func NewPropagator(store remote.Store, logger *zap.Logger, m *metrics.Metrics) *Propagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{
		store:   store,
		logger:  logger,
		metrics: metrics.OrNew(m),
		tails:   make(map[string]chan struct{}),
	}
}

// ShouldPropagate reports whether sess may mirror writes to collection.
// Nothing is mirrored without a session or for the demo tenant. The super
// admin only mirrors the global accounts and cross-tenant notifications.
func ShouldPropagate(sess *models.Session, collection string) bool {
	switch {
	case sess == nil, sess.IsDemo:
		return false
	case sess.IsSuperAdmin():
		return collection == CollectionAccounts || collection == CollectionNotifications
	default:
		return true
	}
}

// Upsert mirrors a full record.
func (p *Propagator) Upsert(ctx context.Context, sess *models.Session, collection, id string, v any) {
	if !p.allowed(sess, collection, "upsert") {
		return
	}
	doc, err := models.Sanitize(v)
	if err != nil {
		p.fail(collection, "upsert", id, sess, err)
		return
	}
	stamp(doc, sess, collection)
	scope := scopeOf(sess, collection)
	if lid, ok := doc[remote.FieldLibraryID].(string); ok && collection != CollectionAccounts {
		scope = lid
	}
	p.run(ctx, collection, "upsert", scope, id, sess, func(ctx context.Context) error {
		return p.store.Upsert(ctx, collection, scope, id, doc)
	})
}

// Update mirrors a partial change.
func (p *Propagator) Update(ctx context.Context, sess *models.Session, collection, id string, fields models.Document) {
	if !p.allowed(sess, collection, "update") {
		return
	}
	patch, err := models.Sanitize(fields)
	if err != nil {
		p.fail(collection, "update", id, sess, err)
		return
	}
	scope := scopeOf(sess, collection)
	p.run(ctx, collection, "update", scope, id, sess, func(ctx context.Context) error {
		return p.store.Update(ctx, collection, scope, id, patch)
	})
}

func (p *Propagator) Delete(ctx context.Context, sess *models.Session, collection, id string) {
	if !p.allowed(sess, collection, "delete") {
		return
	}
	scope := scopeOf(sess, collection)
	p.run(ctx, collection, "delete", scope, id, sess, func(ctx context.Context) error {
		return p.store.Delete(ctx, collection, scope, id)
	})
}

// Wait blocks until every in-flight propagation has finished.
func (p *Propagator) Wait() {
	p.wg.Wait()
}

func (p *Propagator) allowed(sess *models.Session, collection, op string) bool {
	if ShouldPropagate(sess, collection) {
		return true
	}
	p.metrics.Propagations.WithLabelValues(collection, op, metrics.ResultSkipped).Inc()
	return false
}

func (p *Propagator) run(ctx context.Context, collection, op, scope, id string, sess *models.Session, fn func(context.Context) error) {
	// Propagation outlives the request that triggered it.
	ctx = context.WithoutCancel(ctx)

	key := collection + "/" + scope + "/" + id
	done := make(chan struct{})
	p.mu.Lock()
	prev := p.tails[key]
	p.tails[key] = done
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.settle(key, done)
		if prev != nil {
			<-prev
		}
		if err := fn(ctx); err != nil {
			p.fail(collection, op, id, sess, err)
			return
		}
		p.metrics.Propagations.WithLabelValues(collection, op, metrics.ResultOK).Inc()
	}()
}

// settle releases the next write queued on key.
func (p *Propagator) settle(key string, done chan struct{}) {
	close(done)
	p.mu.Lock()
	if p.tails[key] == done {
		delete(p.tails, key)
	}
	p.mu.Unlock()
}

func (p *Propagator) fail(collection, op, id string, sess *models.Session, err error) {
	p.metrics.Propagations.WithLabelValues(collection, op, metrics.ResultError).Inc()
	p.logger.Warn("remote propagation failed",
		zap.String("collection", collection),
		zap.String("op", op),
		zap.String("id", id),
		zap.String("library_id", sess.LibraryID()),
		zap.Error(err),
	)
}

// scopeOf is the remote libraryID a session's write to collection lands in.
func scopeOf(sess *models.Session, collection string) string {
	if collection == CollectionAccounts {
		return remote.Global
	}
	return sess.LibraryID()
}

// stamp tags tenant-scoped documents with the owning tenant. Notifications
// written by the super admin already name their recipient.
func stamp(doc models.Document, sess *models.Session, collection string) {
	if collection == CollectionAccounts {
		return
	}
	if lid := sess.LibraryID(); lid != "" {
		doc[remote.FieldLibraryID] = lid
	}
}
