package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"bookstore-datastore/internal/datastore"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
	"bookstore-datastore/pkg/uid"
)

// FieldError describes one invalid payload field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when a payload fails validation.
type ValidationError struct {
	ID     string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	if e.ID == "" {
		return "invalid record: " + strings.Join(parts, ", ")
	}
	return fmt.Sprintf("invalid record %s: %s", e.ID, strings.Join(parts, ", "))
}

// KindStats summarizes one record kind for the admin endpoint.
type KindStats struct {
	Collection string `json:"collection"`
	Stored     int64  `json:"stored"`
	Cached     int    `json:"cached"`
}

// RecordService exposes the datastore operations of one record kind bound
// to its collection, cache namespace and default ttl.
type RecordService[P model.Payload] struct {
	ds         *datastore.Datastore[P]
	collection string
	namespace  string
	ttl        time.Duration

	validate  func(P) []FieldError
	checkRefs func(ctx context.Context, rec model.Record[P]) error
}

// NewRecordService creates a record service. validate may be nil.
func NewRecordService[P model.Payload](ds *datastore.Datastore[P], collection, namespace string, ttl time.Duration, validate func(P) []FieldError) *RecordService[P] {
	return &RecordService[P]{
		ds:         ds,
		collection: collection,
		namespace:  namespace,
		ttl:        ttl,
		validate:   validate,
	}
}

// Collection returns the store collection of this kind.
func (s *RecordService[P]) Collection() string {
	return s.collection
}

func (s *RecordService[P]) ttlOr(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return s.ttl
}

// prepare assigns a generated id when missing, validates the payload and
// checks its references. Creates and updates go through the same checks.
func (s *RecordService[P]) prepare(ctx context.Context, rec model.Record[P], create bool) (model.Record[P], error) {
	if rec.ID == "" {
		if !create {
			return rec, &ValidationError{Fields: []FieldError{{Field: "_id", Message: "is required"}}}
		}
		rec.ID = uid.NewOrdered()
	}
	if s.validate != nil {
		if fields := s.validate(rec.Data); len(fields) > 0 {
			return rec, &ValidationError{ID: rec.ID, Fields: fields}
		}
	}
	if s.checkRefs != nil {
		if err := s.checkRefs(ctx, rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Create stores a new record. An empty id is replaced by a generated one.
func (s *RecordService[P]) Create(ctx context.Context, rec model.Record[P], ttl time.Duration) (model.Record[P], error) {
	rec, err := s.prepare(ctx, rec, true)
	if err != nil {
		return model.Record[P]{}, err
	}
	return s.ds.CreateOne(ctx, s.collection, s.namespace, rec, s.ttlOr(ttl))
}

// CreateMany validates every record and then creates them in order.
func (s *RecordService[P]) CreateMany(ctx context.Context, recs []model.Record[P], ttl time.Duration) ([]model.Record[P], error) {
	prepared := make([]model.Record[P], len(recs))
	for i, rec := range recs {
		p, err := s.prepare(ctx, rec, true)
		if err != nil {
			return nil, err
		}
		prepared[i] = p
	}
	return s.ds.CreateMany(ctx, s.collection, s.namespace, prepared, s.ttlOr(ttl))
}

// Import bulk-loads records into the store without caching them.
func (s *RecordService[P]) Import(ctx context.Context, recs []model.Record[P]) ([]model.Record[P], error) {
	prepared := make([]model.Record[P], len(recs))
	for i, rec := range recs {
		p, err := s.prepare(ctx, rec, true)
		if err != nil {
			return nil, err
		}
		prepared[i] = p
	}
	if err := s.ds.Load(ctx, s.collection, prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

// Get reads one record, cache first.
func (s *RecordService[P]) Get(ctx context.Context, id string) (datastore.Cached[P], error) {
	return s.ds.Read(ctx, s.collection, s.namespace, id)
}

// List returns every stored record.
func (s *RecordService[P]) List(ctx context.Context) ([]model.Record[P], error) {
	return s.ds.ReadAll(ctx, s.collection)
}

// ListByIDs returns the stored records with the given ids.
func (s *RecordService[P]) ListByIDs(ctx context.Context, ids []string) ([]model.Record[P], error) {
	return s.ds.ReadManyByIDs(ctx, s.collection, ids)
}

// ListCached returns the records currently held in the cache.
func (s *RecordService[P]) ListCached(ctx context.Context) ([]model.Record[P], error) {
	return s.ds.ReadAllCached(ctx, s.namespace)
}

// Update replaces the payload of an existing record.
func (s *RecordService[P]) Update(ctx context.Context, rec model.Record[P], ttl time.Duration) (model.Record[P], error) {
	rec, err := s.prepare(ctx, rec, false)
	if err != nil {
		return model.Record[P]{}, err
	}
	if err := s.mustExist(ctx, "update_one", rec.ID); err != nil {
		return model.Record[P]{}, err
	}
	return s.ds.UpdateOne(ctx, s.collection, s.namespace, rec, s.ttlOr(ttl))
}

// Patch applies a partial update to one record.
func (s *RecordService[P]) Patch(ctx context.Context, id string, patch model.Patch[P], ttl time.Duration) (model.Record[P], error) {
	if len(patch.Fields()) == 0 {
		return model.Record[P]{}, model.ErrEmptyPatch
	}
	current, err := s.ds.Read(ctx, s.collection, s.namespace, id)
	if err != nil {
		return model.Record[P]{}, err
	}
	next := model.NewRecord(id, patch.Apply(current.Record.Data))
	return s.Update(ctx, next, ttl)
}

// PatchMany applies partial updates keyed by id. References of every patched
// record are checked before anything is written.
func (s *RecordService[P]) PatchMany(ctx context.Context, patches map[string]model.Patch[P], ttl time.Duration) ([]model.Record[P], error) {
	if s.checkRefs != nil {
		current, err := s.ds.ReadManyByIDs(ctx, s.collection, slices.Collect(maps.Keys(patches)))
		if err != nil {
			return nil, err
		}
		for _, rec := range current {
			patch := patches[rec.ID]
			if patch == nil {
				continue
			}
			if err := s.checkRefs(ctx, model.NewRecord(rec.ID, patch.Apply(rec.Data))); err != nil {
				return nil, err
			}
		}
	}
	return s.ds.UpdateMany(ctx, s.collection, s.namespace, patches, s.ttlOr(ttl))
}

// Delete removes one record.
func (s *RecordService[P]) Delete(ctx context.Context, id string) error {
	return s.ds.Delete(ctx, s.collection, s.namespace, id)
}

// DeleteMany removes the records with the given ids.
func (s *RecordService[P]) DeleteMany(ctx context.Context, ids []string) error {
	return s.ds.DeleteMany(ctx, s.collection, s.namespace, ids)
}

// Clear removes every record. Unless scoped, the whole cache is flushed.
func (s *RecordService[P]) Clear(ctx context.Context, scoped bool) error {
	if scoped {
		return s.ds.ClearScoped(ctx, s.collection, s.namespace)
	}
	return s.ds.Clear(ctx, s.collection)
}

// Stats counts stored and cached records.
func (s *RecordService[P]) Stats(ctx context.Context) (KindStats, error) {
	stored, err := s.ds.Count(ctx, s.collection)
	if err != nil {
		return KindStats{}, err
	}
	cached, err := s.ds.CachedCount(ctx, s.namespace)
	if err != nil {
		return KindStats{}, err
	}
	return KindStats{Collection: s.collection, Stored: stored, Cached: cached}, nil
}

// mustExist checks the store directly so that an update of an unknown id
// never leaves a cache entry behind.
func (s *RecordService[P]) mustExist(ctx context.Context, op, id string) error {
	found, err := s.ds.ReadManyByIDs(ctx, s.collection, []string{id})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return &datastore.Error{Op: op, ID: id, Kind: datastore.KindNotFound, Err: repository.ErrNotFound}
	}
	return nil
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
