package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBDocumentStore implements DocumentStore using MongoDB.
type MongoDBDocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDBDocumentStore connects to MongoDB and selects the database.
func NewMongoDBDocumentStore(uri, database string) (*MongoDBDocumentStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", classifyMongoError(err))
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", classifyMongoError(err))
	}

	log.Printf("[MongoDB] Connected to database %s", database)
	return &MongoDBDocumentStore{
		client: client,
		db:     client.Database(database),
	}, nil
}

// EnsureIndex creates a non-unique ascending index on field.
func (r *MongoDBDocumentStore) EnsureIndex(ctx context.Context, collection, field string) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
	}
	if _, err := r.db.Collection(collection).Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create index %s.%s: %w", collection, field, classifyMongoError(err))
	}
	return nil
}

// InsertOne inserts a single document.
func (r *MongoDBDocumentStore) InsertOne(ctx context.Context, collection string, doc Document) error {
	if _, err := r.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, classifyMongoError(err))
	}
	return nil
}

// InsertMany inserts documents in order and stops at the first failure.
func (r *MongoDBDocumentStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = doc
	}

	opts := options.InsertMany().SetOrdered(true)
	if _, err := r.db.Collection(collection).InsertMany(ctx, batch, opts); err != nil {
		return fmt.Errorf("failed to insert %d documents into %s: %w", len(docs), collection, classifyMongoError(err))
	}
	return nil
}

// FindByID retrieves a document by id.
func (r *MongoDBDocumentStore) FindByID(ctx context.Context, collection, id string) (Document, error) {
	raw, err := r.db.Collection(collection).FindOne(ctx, bson.M{IDField: id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in %s: %w", id, collection, classifyMongoError(err))
	}
	return rawToDocument(raw)
}

// FindByIDs retrieves the documents whose id is in ids.
func (r *MongoDBDocumentStore) FindByIDs(ctx context.Context, collection string, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return []Document{}, nil
	}
	return r.find(ctx, collection, bson.M{IDField: bson.M{"$in": ids}})
}

// FindAll retrieves every document in the collection.
func (r *MongoDBDocumentStore) FindAll(ctx context.Context, collection string) ([]Document, error) {
	return r.find(ctx, collection, bson.M{})
}

// FindByField retrieves documents whose field equals value.
func (r *MongoDBDocumentStore) FindByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	return r.find(ctx, collection, bson.M{field: value})
}

func (r *MongoDBDocumentStore) find(ctx context.Context, collection string, filter bson.M) ([]Document, error) {
	cursor, err := r.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, classifyMongoError(err))
	}
	defer cursor.Close(ctx)

	docs := []Document{}
	for cursor.Next(ctx) {
		doc, err := rawToDocument(cursor.Current)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, classifyMongoError(err))
	}
	return docs, nil
}

// UpdateByID applies $set and returns the document after the update.
func (r *MongoDBDocumentStore) UpdateByID(ctx context.Context, collection, id string, fields Document) (Document, error) {
	update := bson.M{"$set": bson.M(fields)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	raw, err := r.db.Collection(collection).FindOneAndUpdate(ctx, bson.M{IDField: id}, update, opts).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s in %s: %w", id, collection, classifyMongoError(err))
	}
	return rawToDocument(raw)
}

// DeleteByID removes a document and returns what was deleted.
func (r *MongoDBDocumentStore) DeleteByID(ctx context.Context, collection, id string) (Document, error) {
	raw, err := r.db.Collection(collection).FindOneAndDelete(ctx, bson.M{IDField: id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s from %s: %w", id, collection, classifyMongoError(err))
	}
	return rawToDocument(raw)
}

// DeleteByIDs removes the documents whose id is in ids.
func (r *MongoDBDocumentStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	result, err := r.db.Collection(collection).DeleteMany(ctx, bson.M{IDField: bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("failed to delete %d documents from %s: %w", len(ids), collection, classifyMongoError(err))
	}
	log.Printf("[MongoDB] Deleted %d/%d documents from %s", result.DeletedCount, len(ids), collection)
	return nil
}

// DeleteAll removes every document in the collection.
func (r *MongoDBDocumentStore) DeleteAll(ctx context.Context, collection string) error {
	result, err := r.db.Collection(collection).DeleteMany(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", collection, classifyMongoError(err))
	}
	log.Printf("[MongoDB] Cleared %d documents from %s", result.DeletedCount, collection)
	return nil
}

// Count returns the number of documents in the collection.
func (r *MongoDBDocumentStore) Count(ctx context.Context, collection string) (int64, error) {
	count, err := r.db.Collection(collection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, classifyMongoError(err))
	}
	return count, nil
}

// Ping checks the MongoDB connection.
func (r *MongoDBDocumentStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, nil); err != nil {
		return classifyMongoError(err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBDocumentStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// rawToDocument converts BSON to a plain document through relaxed extended JSON,
// so nested documents come back as map[string]any regardless of driver defaults.
func rawToDocument(raw bson.Raw) (Document, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert BSON document: %w: %w", ErrCorrupt, err)
	}
	var doc Document
	if err := json.Unmarshal(ext, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode BSON document: %w: %w", ErrCorrupt, err)
	}
	return doc, nil
}

func classifyMongoError(err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

var _ DocumentStore = (*MongoDBDocumentStore)(nil)
