package services

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"abhyasika/internal/metrics"
	"abhyasika/internal/models"
	"abhyasika/internal/remote"
	"abhyasika/internal/repositories"
)

// DefaultBroadcastBatchSize is used when no batch size is configured.
const DefaultBroadcastBatchSize = 100

// BroadcastRequest is one logical notification. An empty Targets list means
// every known tenant at send time.
type BroadcastRequest struct {
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Link      string   `json:"link,omitempty"`
	LinkLabel string   `json:"linkLabel,omitempty"`
	Targets   []string `json:"targets,omitempty"`
}

func (r BroadcastRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return &models.ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(r.Message) == "" {
		return &models.ValidationError{Field: "message", Reason: "is required"}
	}
	return nil
}

type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// NotificationService fans broadcasts out to tenants and serves each tenant's
// inbox.
type NotificationService struct {
	repos     *repositories.Repositories
	store     remote.Store
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewNotificationService(repos *repositories.Repositories, store remote.Store, batchSize int, logger *zap.Logger, m *metrics.Metrics, now func() time.Time) *NotificationService {
	if batchSize <= 0 {
		batchSize = DefaultBroadcastBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		repos:     repos,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics.OrNew(m),
		now:       now,
	}
}

// Broadcast writes one notification per target tenant straight to the remote
// store. Targets are sent in batches, concurrently within a batch, and a
// failed target never stops the others.
func (s *NotificationService) Broadcast(ctx context.Context, sess *models.Session, req BroadcastRequest) (BroadcastResult, error) {
	if err := requireSuperAdmin(sess); err != nil {
		return BroadcastResult{}, err
	}
	if err := req.Validate(); err != nil {
		return BroadcastResult{}, err
	}

	targets := s.resolveTargets(sess, req.Targets)
	var sent, failed atomic.Int64
	createdAt := s.now()

	for start := 0; start < len(targets); start += s.batchSize {
		end := min(start+s.batchSize, len(targets))

		var g errgroup.Group
		for _, target := range targets[start:end] {
			g.Go(func() error {
				n := models.Notification{
					ID:        uuid.NewString(),
					LibraryID: target,
					Title:     req.Title,
					Message:   req.Message,
					Link:      req.Link,
					LinkLabel: req.LinkLabel,
					CreatedAt: createdAt,
				}
				if err := s.deliver(ctx, n); err != nil {
					failed.Add(1)
					s.metrics.Broadcasts.WithLabelValues(metrics.ResultError).Inc()
					s.logger.Warn("broadcast delivery failed", zap.String("library_id", target), zap.Error(err))
					return nil
				}
				sent.Add(1)
				s.metrics.Broadcasts.WithLabelValues(metrics.ResultOK).Inc()
				return nil
			})
		}
		_ = g.Wait()
	}

	result := BroadcastResult{Sent: int(sent.Load()), Failed: int(failed.Load())}
	s.logger.Info("broadcast finished",
		zap.String("title", req.Title),
		zap.Int("targets", len(targets)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *NotificationService) deliver(ctx context.Context, n models.Notification) error {
	doc, err := models.Sanitize(n)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, repositories.CollectionNotifications, n.LibraryID, n.ID, doc)
}

// resolveTargets returns the explicit targets, or a snapshot of every cached
// account, without duplicates or blanks.
func (s *NotificationService) resolveTargets(sess *models.Session, explicit []string) []string {
	ids := explicit
	if len(ids) == 0 {
		for _, a := range s.repos.Accounts.List(sess) {
			ids = append(ids, a.ID)
		}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// List returns the tenant's notifications, newest first.
func (s *NotificationService) List(sess *models.Session) []models.Notification {
	out := s.repos.Notifications.List(sess)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// MarkRead flags one notification as read and mirrors only that field.
func (s *NotificationService) MarkRead(ctx context.Context, sess *models.Session, id string) error {
	if err := requireTenant(sess); err != nil {
		return err
	}
	if _, ok := s.repos.Notifications.Get(sess, id); !ok {
		return ErrNotificationNotFound
	}
	return s.repos.Notifications.Patch(ctx, sess, id, models.Document{"isRead": true})
}
