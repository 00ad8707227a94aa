package repository

import (
	"context"
	"errors"
)

// Document is a loosely typed stored document. "_id" holds the primary key.
type Document = map[string]any

// IDField is the primary key field of every document.
const IDField = "_id"

var (
	// ErrNotFound is returned when no document matches the given id.
	ErrNotFound = errors.New("document not found")

	// ErrUnavailable marks failures to reach or authenticate with the store.
	ErrUnavailable = errors.New("document store unavailable")

	// ErrDuplicate is returned when an insert collides with an existing id.
	ErrDuplicate = errors.New("duplicate document id")

	// ErrInvalidCollection is returned for collection names the store refuses.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrCorrupt is returned when a stored document cannot be decoded.
	ErrCorrupt = errors.New("stored document is corrupt")
)

// DocumentStore defines collection-scoped document data access methods.
type DocumentStore interface {
	// InsertOne inserts a single document.
	InsertOne(ctx context.Context, collection string, doc Document) error

	// InsertMany inserts several documents.
	InsertMany(ctx context.Context, collection string, docs []Document) error

	// FindByID returns the document with the given id or ErrNotFound.
	FindByID(ctx context.Context, collection, id string) (Document, error)

	// FindByIDs returns the documents whose id is in ids. Missing ids are skipped.
	FindByIDs(ctx context.Context, collection string, ids []string) ([]Document, error)

	// FindAll returns every document in the collection.
	FindAll(ctx context.Context, collection string) ([]Document, error)

	// FindByField returns documents whose dotted field path equals value.
	FindByField(ctx context.Context, collection, field string, value any) ([]Document, error)

	// UpdateByID applies a $set of fields and returns the updated document.
	UpdateByID(ctx context.Context, collection, id string, fields Document) (Document, error)

	// DeleteByID removes a document and returns it, or ErrNotFound.
	DeleteByID(ctx context.Context, collection, id string) (Document, error)

	// DeleteByIDs removes every document whose id is in ids.
	DeleteByIDs(ctx context.Context, collection string, ids []string) error

	// DeleteAll removes every document in the collection.
	DeleteAll(ctx context.Context, collection string) error

	// Count returns the number of documents in the collection.
	Count(ctx context.Context, collection string) (int64, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}
