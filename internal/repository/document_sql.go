package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"regexp"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	fieldPattern      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// dialect captures the SQL differences between the supported databases.
type dialect struct {
	name        string
	quote       func(ident string) string
	placeholder func(n int) string
	createTable func(table string) string
	fieldExpr   func(path []string) string
	lockRow     string
	isDuplicate func(err error) bool
}

// SQLDocumentStore implements DocumentStore on a relational database by storing
// each collection as a table of JSON documents keyed by id.
type SQLDocumentStore struct {
	db      *sql.DB
	dialect dialect
	tables  *xsync.MapOf[string, struct{}]
}

func newSQLDocumentStore(db *sql.DB, d dialect) *SQLDocumentStore {
	return &SQLDocumentStore{
		db:      db,
		dialect: d,
		tables:  xsync.NewMapOf[string, struct{}](),
	}
}

// ensureTable creates the collection table on first use.
func (r *SQLDocumentStore) ensureTable(ctx context.Context, collection string) (string, error) {
	if !collectionPattern.MatchString(collection) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	table := r.dialect.quote(collection)
	if _, ok := r.tables.Load(collection); ok {
		return table, nil
	}
	if _, err := r.db.ExecContext(ctx, r.dialect.createTable(table)); err != nil {
		return "", fmt.Errorf("failed to create table %s: %w", collection, r.classify(err))
	}
	r.tables.Store(collection, struct{}{})
	log.Printf("[%s] Ensured table for collection %s", r.dialect.name, collection)
	return table, nil
}

func (r *SQLDocumentStore) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = r.dialect.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// InsertOne inserts a single document.
func (r *SQLDocumentStore) InsertOne(ctx context.Context, collection string, doc Document) error {
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return err
	}
	id, body, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES (%s)`, table, r.placeholders(1, 2))
	if _, err := r.db.ExecContext(ctx, query, id, body); err != nil {
		return fmt.Errorf("failed to insert %s into %s: %w", id, collection, r.classify(err))
	}
	return nil
}

// InsertMany inserts all documents in one transaction.
func (r *SQLDocumentStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", r.classify(err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES (%s)`, table, r.placeholders(1, 2)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", r.classify(err))
	}
	defer stmt.Close()

	for _, doc := range docs {
		id, body, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, id, body); err != nil {
			return fmt.Errorf("failed to insert %s into %s: %w", id, collection, r.classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", r.classify(err))
	}
	return nil
}

// FindByID retrieves a document by id.
func (r *SQLDocumentStore) FindByID(ctx context.Context, collection, id string) (Document, error) {
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = %s`, table, r.dialect.placeholder(1))
	var body string
	err = r.db.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in %s: %w", id, collection, r.classify(err))
	}
	return decodeDocument(body)
}

// FindByIDs retrieves the documents whose id is in ids.
func (r *SQLDocumentStore) FindByIDs(ctx context.Context, collection string, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return []Document{}, nil
	}
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id IN (%s) ORDER BY id`, table, r.placeholders(1, len(ids)))
	return r.query(ctx, collection, query, stringArgs(ids)...)
}

// FindAll retrieves every document in the collection.
func (r *SQLDocumentStore) FindAll(ctx context.Context, collection string) ([]Document, error) {
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, collection, fmt.Sprintf(`SELECT doc FROM %s ORDER BY id`, table))
}

// FindByField retrieves documents whose dotted field path equals value.
func (r *SQLDocumentStore) FindByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if !fieldPattern.MatchString(field) {
		return nil, fmt.Errorf("invalid field path %q", field)
	}
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return nil, err
	}
	expr := r.dialect.fieldExpr(strings.Split(field, "."))
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE %s = %s ORDER BY id`, table, expr, r.dialect.placeholder(1))
	return r.query(ctx, collection, query, fmt.Sprint(value))
}

func (r *SQLDocumentStore) query(ctx context.Context, collection, query string, args ...any) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, r.classify(err))
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, r.classify(err))
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, r.classify(err))
	}
	return docs, nil
}

// UpdateByID emulates $set with a read-merge-write inside a transaction.
func (r *SQLDocumentStore) UpdateByID(ctx context.Context, collection, id string, fields Document) (Document, error) {
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", r.classify(err))
	}
	defer tx.Rollback()

	doc, err := r.selectForUpdate(ctx, tx, table, id)
	if err != nil {
		return nil, err
	}
	for path, value := range fields {
		if path == IDField {
			continue
		}
		setPath(doc, path, value)
	}
	_, body, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`UPDATE %s SET doc = %s WHERE id = %s`, table, r.dialect.placeholder(1), r.dialect.placeholder(2))
	if _, err := tx.ExecContext(ctx, query, body, id); err != nil {
		return nil, fmt.Errorf("failed to update %s in %s: %w", id, collection, r.classify(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", r.classify(err))
	}
	return doc, nil
}

// DeleteByID removes a document and returns what was deleted.
func (r *SQLDocumentStore) DeleteByID(ctx context.Context, collection, id string) (Document, error) {
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", r.classify(err))
	}
	defer tx.Rollback()

	doc, err := r.selectForUpdate(ctx, tx, table, id)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, table, r.dialect.placeholder(1))
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return nil, fmt.Errorf("failed to delete %s from %s: %w", id, collection, r.classify(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", r.classify(err))
	}
	return doc, nil
}

func (r *SQLDocumentStore) selectForUpdate(ctx context.Context, tx *sql.Tx, table, id string) (Document, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = %s%s`, table, r.dialect.placeholder(1), r.dialect.lockRow)
	var body string
	err := tx.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", id, r.classify(err))
	}
	return decodeDocument(body)
}

// DeleteByIDs removes the documents whose id is in ids.
func (r *SQLDocumentStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, table, r.placeholders(1, len(ids)))
	result, err := r.db.ExecContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to delete %d documents from %s: %w", len(ids), collection, r.classify(err))
	}
	if deleted, err := result.RowsAffected(); err == nil {
		log.Printf("[%s] Deleted %d/%d documents from %s", r.dialect.name, deleted, len(ids), collection)
	}
	return nil
}

// DeleteAll removes every document in the collection.
func (r *SQLDocumentStore) DeleteAll(ctx context.Context, collection string) error {
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", collection, r.classify(err))
	}
	return nil
}

// Count returns the number of documents in the collection.
func (r *SQLDocumentStore) Count(ctx context.Context, collection string) (int64, error) {
	table, err := r.ensureTable(ctx, collection)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, r.classify(err))
	}
	return count, nil
}

// Ping checks the database connection.
func (r *SQLDocumentStore) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return r.classify(err)
	}
	return nil
}

// Close closes the database connection.
func (r *SQLDocumentStore) Close() error {
	return r.db.Close()
}

func (r *SQLDocumentStore) classify(err error) error {
	var netErr net.Error
	switch {
	case r.dialect.isDuplicate(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func encodeDocument(doc Document) (string, string, error) {
	id, ok := doc[IDField].(string)
	if !ok || id == "" {
		return "", "", fmt.Errorf("document is missing a string %s", IDField)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	return id, string(body), nil
}

func decodeDocument(body string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w: %w", ErrCorrupt, err)
	}
	return doc, nil
}

// setPath assigns value at a dotted path, creating intermediate objects.
func setPath(doc Document, path string, value any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

var _ DocumentStore = (*SQLDocumentStore)(nil)
