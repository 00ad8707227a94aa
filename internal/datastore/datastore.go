package datastore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"

	"bookstore-datastore/internal/cache"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
)

// Datastore keeps a cache in front of a document store for one record kind.
//
// Writes go to the cache first and then to the store; deletes go to the
// store first and then to the cache. Reads try the cache and fall back to the
// store without writing the result back. Nothing is rolled back when the
// second half of a write fails, so the two sides can disagree until the next
// write of the same id.
type Datastore[P model.Payload] struct {
	cache cache.Cache
	store repository.DocumentStore
}

// New creates a Datastore over shared cache and store handles.
func New[P model.Payload](c cache.Cache, s repository.DocumentStore) *Datastore[P] {
	return &Datastore[P]{cache: c, store: s}
}

// CacheKey returns the full cache key of id under namespace.
func (d *Datastore[P]) CacheKey(namespace, id string) string {
	return d.KeyPrefix(namespace) + id
}

// KeyPrefix returns the prefix shared by every cache key of this kind under namespace.
func (d *Datastore[P]) KeyPrefix(namespace string) string {
	prefix := model.KeyFor[P]("")
	if namespace == "" {
		return prefix
	}
	return namespace + ":" + prefix
}

// CreateOne writes rec to the cache and then inserts it into the store.
func (d *Datastore[P]) CreateOne(ctx context.Context, collection, namespace string, rec model.Record[P], ttl time.Duration) (model.Record[P], error) {
	if err := d.write(ctx, collection, namespace, rec, ttl); err != nil {
		return model.Record[P]{}, classify("create_one", rec.ID, err)
	}
	return rec, nil
}

// CreateMany creates records one at a time and stops at the first failure.
// Records before the failing one stay committed.
func (d *Datastore[P]) CreateMany(ctx context.Context, collection, namespace string, recs []model.Record[P], ttl time.Duration) ([]model.Record[P], error) {
	for i, rec := range recs {
		if err := d.write(ctx, collection, namespace, rec, ttl); err != nil {
			log.Printf("[Datastore] create_many stopped at %d/%d in %s: %v", i, len(recs), collection, err)
			return nil, classify(fmt.Sprintf("create_many[%d]", i), rec.ID, err)
		}
	}
	return recs, nil
}

func (d *Datastore[P]) write(ctx context.Context, collection, namespace string, rec model.Record[P], ttl time.Duration) error {
	key, value, err := rec.SerializeForCache()
	if err != nil {
		return err
	}
	doc, err := model.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := d.cache.Set(ctx, d.namespaced(namespace, key), value, ttl); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	if err := d.store.InsertOne(ctx, collection, doc); err != nil {
		return err
	}
	return nil
}

// Read returns the record from the cache when present and decodable, and
// from the store otherwise. A store read does not refill the cache.
func (d *Datastore[P]) Read(ctx context.Context, collection, namespace, id string) (Cached[P], error) {
	key := d.CacheKey(namespace, id)
	value, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		rec, decodeErr := model.FromCache[P](id, value)
		if decodeErr == nil {
			readCounter(collection, Hit).Inc()
			return Cached[P]{State: Hit, Record: rec}, nil
		}
		log.Printf("[Datastore] Ignoring undecodable cache entry %s: %v", key, decodeErr)
		fallbackCounter(collection).Inc()
	case !errors.Is(err, cache.ErrCacheMiss):
		log.Printf("[Datastore] Cache read failed for %s, using store: %v", key, err)
		fallbackCounter(collection).Inc()
	}

	doc, err := d.store.FindByID(ctx, collection, id)
	if err != nil {
		return Cached[P]{}, classify("read", id, err)
	}
	rec, err := model.DecodeRecord[P](doc)
	if err != nil {
		return Cached[P]{}, classify("read", id, err)
	}
	readCounter(collection, Miss).Inc()
	return Cached[P]{State: Miss, Record: rec}, nil
}

// ReadAll returns every record in the collection from the store.
func (d *Datastore[P]) ReadAll(ctx context.Context, collection string) ([]model.Record[P], error) {
	docs, err := d.store.FindAll(ctx, collection)
	if err != nil {
		return nil, classify("read_all", "", err)
	}
	recs, err := decodeAll[P](docs)
	return recs, classify("read_all", "", err)
}

// ReadManyByIDs returns the stored records whose id is in ids. Unknown ids are skipped.
func (d *Datastore[P]) ReadManyByIDs(ctx context.Context, collection string, ids []string) ([]model.Record[P], error) {
	docs, err := d.store.FindByIDs(ctx, collection, ids)
	if err != nil {
		return nil, classify("read_many_by_ids", "", err)
	}
	recs, err := decodeAll[P](docs)
	return recs, classify("read_many_by_ids", "", err)
}

// ReadAllCached returns the records currently held in the cache under namespace.
// Entries that expire during the scan or do not decode are skipped.
func (d *Datastore[P]) ReadAllCached(ctx context.Context, namespace string) ([]model.Record[P], error) {
	prefix := d.KeyPrefix(namespace)
	keys, err := d.cache.Keys(ctx, prefix)
	if err != nil {
		return nil, classify("read_all_cached", "", err)
	}
	slices.Sort(keys)

	recs := make([]model.Record[P], 0, len(keys))
	for _, key := range keys {
		value, err := d.cache.Get(ctx, key)
		if errors.Is(err, cache.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, classify("read_all_cached", key, err)
		}
		rec, err := model.FromCache[P](strings.TrimPrefix(key, prefix), value)
		if err != nil {
			log.Printf("[Datastore] Skipping undecodable cache entry %s: %v", key, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// UpdateOne overwrites the cache entry and then sets the stored payload to rec's.
func (d *Datastore[P]) UpdateOne(ctx context.Context, collection, namespace string, rec model.Record[P], ttl time.Duration) (model.Record[P], error) {
	key, value, err := rec.SerializeForCache()
	if err != nil {
		return model.Record[P]{}, classify("update_one", rec.ID, err)
	}
	doc, err := model.EncodeRecord(rec)
	if err != nil {
		return model.Record[P]{}, classify("update_one", rec.ID, err)
	}
	if err := d.cache.Set(ctx, d.namespaced(namespace, key), value, ttl); err != nil {
		return model.Record[P]{}, classify("update_one", rec.ID, fmt.Errorf("failed to cache %s: %w", key, err))
	}
	if _, err := d.store.UpdateByID(ctx, collection, rec.ID, repository.Document{"data": doc["data"]}); err != nil {
		return model.Record[P]{}, classify("update_one", rec.ID, err)
	}
	return rec, nil
}

// UpdateMany patches each record like UpdateOne: the patched record is cached
// first and the patch is then applied to the store. Ids are processed in
// sorted order; a failure leaves earlier updates committed.
func (d *Datastore[P]) UpdateMany(ctx context.Context, collection, namespace string, patches map[string]model.Patch[P], ttl time.Duration) ([]model.Record[P], error) {
	ids := slices.Sorted(maps.Keys(patches))
	for _, id := range ids {
		if patches[id] == nil || len(patches[id].Fields()) == 0 {
			return nil, classify("update_many", id, model.ErrEmptyPatch)
		}
	}

	updated := make([]model.Record[P], 0, len(ids))
	for _, id := range ids {
		rec, err := d.patchOne(ctx, collection, namespace, id, patches[id], ttl)
		if err != nil {
			return nil, classify("update_many", id, err)
		}
		updated = append(updated, rec)
	}
	return updated, nil
}

func (d *Datastore[P]) patchOne(ctx context.Context, collection, namespace, id string, patch model.Patch[P], ttl time.Duration) (model.Record[P], error) {
	current, err := d.store.FindByID(ctx, collection, id)
	if err != nil {
		return model.Record[P]{}, err
	}
	rec, err := model.DecodeRecord[P](current)
	if err != nil {
		return model.Record[P]{}, err
	}
	rec.Data = patch.Apply(rec.Data)

	key, value, err := rec.SerializeForCache()
	if err != nil {
		return model.Record[P]{}, err
	}
	if err := d.cache.Set(ctx, d.namespaced(namespace, key), value, ttl); err != nil {
		return model.Record[P]{}, fmt.Errorf("failed to cache %s: %w", key, err)
	}
	doc, err := d.store.UpdateByID(ctx, collection, id, patch.Fields())
	if err != nil {
		return model.Record[P]{}, err
	}
	return model.DecodeRecord[P](doc)
}

// Delete removes id from the store and then from the cache. Deleting an id
// the store does not hold is not an error.
func (d *Datastore[P]) Delete(ctx context.Context, collection, namespace, id string) error {
	if _, err := d.store.DeleteByID(ctx, collection, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return classify("delete", id, err)
	}
	if err := d.cache.Delete(ctx, d.CacheKey(namespace, id)); err != nil {
		return classify("delete", id, err)
	}
	return nil
}

// DeleteMany removes ids from the store and then from the cache.
func (d *Datastore[P]) DeleteMany(ctx context.Context, collection, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.store.DeleteByIDs(ctx, collection, ids); err != nil {
		return classify("delete_many", "", err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.CacheKey(namespace, id)
	}
	if err := d.cache.DeleteMany(ctx, keys...); err != nil {
		return classify("delete_many", "", err)
	}
	return nil
}

// Clear empties the collection and then flushes the whole cache, including
// entries of other collections and namespaces. Use ClearScoped to keep them.
func (d *Datastore[P]) Clear(ctx context.Context, collection string) error {
	if err := d.store.DeleteAll(ctx, collection); err != nil {
		return classify("clear", "", err)
	}
	if err := d.cache.Flush(ctx); err != nil {
		return classify("clear", "", err)
	}
	log.Printf("[Datastore] Cleared %s and flushed the entire cache", collection)
	return nil
}

// ClearScoped empties the collection and removes only this kind's cache
// entries under namespace.
func (d *Datastore[P]) ClearScoped(ctx context.Context, collection, namespace string) error {
	if err := d.store.DeleteAll(ctx, collection); err != nil {
		return classify("clear_scoped", "", err)
	}
	keys, err := d.cache.Keys(ctx, d.KeyPrefix(namespace))
	if err != nil {
		return classify("clear_scoped", "", err)
	}
	if len(keys) > 0 {
		if err := d.cache.DeleteMany(ctx, keys...); err != nil {
			return classify("clear_scoped", "", err)
		}
	}
	log.Printf("[Datastore] Cleared %s and %d cache entries under %q", collection, len(keys), d.KeyPrefix(namespace))
	return nil
}

// ReadChildren returns the stored records whose parentField equals parentID.
func (d *Datastore[P]) ReadChildren(ctx context.Context, collection, parentField, parentID string) ([]model.Record[P], error) {
	docs, err := d.store.FindByField(ctx, collection, parentField, parentID)
	if err != nil {
		return nil, classify("read_children", parentID, err)
	}
	recs, err := decodeAll[P](docs)
	return recs, classify("read_children", parentID, err)
}

// Load bulk-inserts records into the store without touching the cache.
func (d *Datastore[P]) Load(ctx context.Context, collection string, recs []model.Record[P]) error {
	docs := make([]repository.Document, len(recs))
	for i, rec := range recs {
		doc, err := model.EncodeRecord(rec)
		if err != nil {
			return classify(fmt.Sprintf("load[%d]", i), rec.ID, err)
		}
		docs[i] = doc
	}
	if err := d.store.InsertMany(ctx, collection, docs); err != nil {
		return classify("load", "", err)
	}
	return nil
}

// Count returns the number of stored records in the collection.
func (d *Datastore[P]) Count(ctx context.Context, collection string) (int64, error) {
	n, err := d.store.Count(ctx, collection)
	return n, classify("count", "", err)
}

// CachedCount returns the number of cache entries of this kind under namespace.
func (d *Datastore[P]) CachedCount(ctx context.Context, namespace string) (int, error) {
	keys, err := d.cache.Keys(ctx, d.KeyPrefix(namespace))
	return len(keys), classify("cached_count", "", err)
}

// ReadParent reads the parent of child from the parents datastore.
func ReadParent[C, P model.Payload](ctx context.Context, parents *Datastore[P], collection, namespace string, child model.Record[C]) (Cached[P], error) {
	parented, ok := any(child.Data).(model.Parented)
	if !ok || parented.ParentID() == "" {
		return Cached[P]{}, &Error{Op: "read_parent", ID: child.ID, Kind: KindNotFound, Err: errors.New("record has no parent")}
	}
	return parents.Read(ctx, collection, namespace, parented.ParentID())
}

func (d *Datastore[P]) namespaced(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

func decodeAll[P model.Payload](docs []repository.Document) ([]model.Record[P], error) {
	recs := make([]model.Record[P], 0, len(docs))
	for _, doc := range docs {
		rec, err := model.DecodeRecord[P](doc)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
