package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

var natsEnvelopeMagic = []byte("BSC1")

const natsEnvelopeHeader = 12

// KeyValue captures the subset of nats.KeyValue used by the cache.
type KeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

// NATSConfig holds connection settings for the JetStream key/value cache.
type NATSConfig struct {
	URL    string
	Bucket string
}

// NATSCache implements Cache on a JetStream key/value bucket.
// Bucket keys only allow a restricted charset, so cache keys are stored
// base64 encoded and expiry lives in a small header in front of the value.
type NATSCache struct {
	kv   KeyValue
	conn *nats.Conn
}

// NewNATSCache connects to NATS and opens (or creates) the bucket.
func NewNATSCache(cfg NATSConfig) (*NATSCache, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "datastore"
	}
	nc, err := nats.Connect(cfg.URL, nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w: %w", ErrUnavailable, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream: %w", err)
	}
	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: cfg.Bucket, History: 1})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.Bucket, err)
	}

	log.Printf("[NATSCache] Connected - url:%s, bucket:%s", cfg.URL, cfg.Bucket)
	c := newNATSCache(kv)
	c.conn = nc
	return c, nil
}

func newNATSCache(kv KeyValue) *NATSCache {
	return &NATSCache{kv: kv}
}

// Get retrieves a value by key, purging it when its expiry has passed.
func (c *NATSCache) Get(ctx context.Context, key string) ([]byte, error) {
	stored := encodeNATSKey(key)
	entry, err := c.kv.Get(stored)
	if isNATSMiss(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, classifyNATSError(err))
	}
	if op := entry.Operation(); op == nats.KeyValueDelete || op == nats.KeyValuePurge {
		return nil, ErrCacheMiss
	}

	expiresAt, value, ok := decodeNATSEnvelope(entry.Value())
	if !ok {
		return nil, ErrCacheMiss
	}
	if expiresAt > 0 && time.Now().UnixMilli() > expiresAt {
		_ = c.kv.Purge(stored)
		return nil, ErrCacheMiss
	}
	return value, nil
}

// Set stores a value; a ttl <= 0 keeps it until deleted.
func (c *NATSCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}
	if _, err := c.kv.Put(encodeNATSKey(key), encodeNATSEnvelope(value, expiresAt)); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, classifyNATSError(err))
	}
	return nil
}

// Delete purges a key so it no longer shows up in listings.
func (c *NATSCache) Delete(ctx context.Context, key string) error {
	err := c.kv.Purge(encodeNATSKey(key))
	if err != nil && !isNATSMiss(err) {
		return fmt.Errorf("failed to delete %s: %w", key, classifyNATSError(err))
	}
	return nil
}

// DeleteMany purges several keys one by one.
func (c *NATSCache) DeleteMany(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists the bucket keys starting with prefix.
func (c *NATSCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	stored, err := c.listStored()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(stored))
	for _, s := range stored {
		key, ok := decodeNATSKey(s)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Flush purges every key in the bucket.
func (c *NATSCache) Flush(ctx context.Context) error {
	stored, err := c.listStored()
	if err != nil {
		return err
	}
	for _, key := range stored {
		if err := c.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return fmt.Errorf("failed to flush: %w", classifyNATSError(err))
		}
	}
	return nil
}

// Ping reports whether the NATS connection is up.
func (c *NATSCache) Ping(ctx context.Context) error {
	if c.conn != nil && !c.conn.IsConnected() {
		return fmt.Errorf("%w: nats status %s", ErrUnavailable, c.conn.Status())
	}
	return nil
}

// Close drains and closes the NATS connection.
func (c *NATSCache) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Drain()
	c.conn.Close()
	return err
}

func (c *NATSCache) listStored() ([]string, error) {
	lister, err := c.kv.ListKeys(nats.IgnoreDeletes())
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", classifyNATSError(err))
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

func encodeNATSKey(key string) string {
	if key == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeNATSKey(stored string) (string, bool) {
	if stored == "_" {
		return "", true
	}
	raw, err := base64.RawURLEncoding.DecodeString(stored)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func encodeNATSEnvelope(value []byte, expiresAt int64) []byte {
	body := make([]byte, natsEnvelopeHeader+len(value))
	copy(body[:4], natsEnvelopeMagic)
	binary.BigEndian.PutUint64(body[4:natsEnvelopeHeader], uint64(expiresAt))
	copy(body[natsEnvelopeHeader:], value)
	return body
}

func decodeNATSEnvelope(body []byte) (int64, []byte, bool) {
	if len(body) < natsEnvelopeHeader || !bytes.Equal(body[:4], natsEnvelopeMagic) {
		return 0, nil, false
	}
	expiresAt := int64(binary.BigEndian.Uint64(body[4:natsEnvelopeHeader]))
	value := make([]byte, len(body)-natsEnvelopeHeader)
	copy(value, body[natsEnvelopeHeader:])
	return expiresAt, value, true
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

// classifyNATSError marks connectivity failures with ErrUnavailable.
func classifyNATSError(err error) error {
	switch {
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

var _ Cache = (*NATSCache)(nil)
