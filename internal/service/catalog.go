package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookstore-datastore/internal/cache"
	"bookstore-datastore/internal/datastore"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
)

// CatalogConfig holds the collection names and cache settings of the catalog.
type CatalogConfig struct {
	BooksCollection      string
	BookstoresCollection string
	Namespace            string
	TTL                  time.Duration
}

// CatalogService handles books and bookstores.
type CatalogService struct {
	Books      *RecordService[model.Book]
	Bookstores *RecordService[model.Bookstore]
	cfg        CatalogConfig
}

// NewCatalogService creates a catalog service. Both record kinds share the
// same cache and store handles.
func NewCatalogService(c cache.Cache, s repository.DocumentStore, cfg CatalogConfig) *CatalogService {
	svc := &CatalogService{
		Books:      NewRecordService(datastore.New[model.Book](c, s), cfg.BooksCollection, cfg.Namespace, cfg.TTL, validateBook),
		Bookstores: NewRecordService(datastore.New[model.Bookstore](c, s), cfg.BookstoresCollection, cfg.Namespace, cfg.TTL, validateBookstore),
		cfg:        cfg,
	}
	svc.Books.checkRefs = svc.checkBookstore
	return svc
}

// checkBookstore rejects a book whose bookstore does not exist.
func (s *CatalogService) checkBookstore(ctx context.Context, rec model.BookRecord) error {
	if rec.Data.BookstoreID == "" {
		return nil
	}
	_, err := s.Bookstores.Get(ctx, rec.Data.BookstoreID)
	if errors.Is(err, datastore.ErrNotFound) {
		return &ValidationError{ID: rec.ID, Fields: []FieldError{{Field: "bookstore_id", Message: "references an unknown bookstore"}}}
	}
	return err
}

// BookstoreOf returns the bookstore a book belongs to.
func (s *CatalogService) BookstoreOf(ctx context.Context, bookID string) (datastore.Cached[model.Bookstore], error) {
	book, err := s.Books.Get(ctx, bookID)
	if err != nil {
		return datastore.Cached[model.Bookstore]{}, err
	}
	return datastore.ReadParent(ctx, s.Bookstores.ds, s.cfg.BookstoresCollection, s.cfg.Namespace, book.Record)
}

// BooksIn returns the books of a bookstore.
func (s *CatalogService) BooksIn(ctx context.Context, bookstoreID string) ([]model.BookRecord, error) {
	if _, err := s.Bookstores.Get(ctx, bookstoreID); err != nil {
		return nil, err
	}
	return s.Books.ds.ReadChildren(ctx, s.cfg.BooksCollection, model.BookParentField, bookstoreID)
}

// Stats returns per-kind counts.
func (s *CatalogService) Stats(ctx context.Context) ([]KindStats, error) {
	books, err := s.Books.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stores, err := s.Bookstores.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return []KindStats{books, stores}, nil
}

func validateBook(b model.Book) []FieldError {
	var fields []FieldError
	if strings.TrimSpace(b.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "is required"})
	}
	if strings.TrimSpace(b.Author) == "" {
		fields = append(fields, FieldError{Field: "author", Message: "is required"})
	}
	return fields
}

func validateBookstore(s model.Bookstore) []FieldError {
	var fields []FieldError
	if strings.TrimSpace(s.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "is required"})
	}
	return fields
}
