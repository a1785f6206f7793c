// Package remote implements the remote document store: the multi-tenant
// system of record queried by equality filters.
package remote

import (
	"context"
	"errors"

	"abhyasika/internal/models"
)

// ErrNotFound is returned by Update when the target document does not exist.
var ErrNotFound = errors.New("document not found")

// FieldLibraryID is the tenant stamp carried by every tenant-scoped document.
const FieldLibraryID = "libraryId"

// Global is the libraryID scope of collections shared by all tenants.
const Global = ""

// Store is the remote document store contract. Documents are flat maps of
// JSON-compatible values and never contain null fields.
//
// A document is addressed by (collection, libraryID, id): ids are unique only
// within a collection and tenant, so two tenants may both own a "main" room.
type Store interface {
	// Query returns every document in collection whose fields equal filter.
	Query(ctx context.Context, collection string, filter map[string]any) ([]models.Document, error)
	// Upsert creates or replaces the document.
	Upsert(ctx context.Context, collection, libraryID, id string, doc models.Document) error
	// Update merges patch into an existing document.
	Update(ctx context.Context, collection, libraryID, id string, patch models.Document) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, libraryID, id string) error
}
