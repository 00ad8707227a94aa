package cache

import (
	"context"
	"path"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// stubClient is an in-memory RedisClient used for unit tests.
type stubClient struct {
	store map[string]string
	ttl   map[string]time.Time

	getErr   error
	setErr   error
	delErr   error
	scanErr  error
	flushErr error
	pingErr  error

	// scanPage splits SCAN results into pages of this size when > 0.
	scanPage int
	closed   bool
}

func newStubClient() *stubClient {
	return &stubClient{
		store: make(map[string]string),
		ttl:   make(map[string]time.Time),
	}
}

func (c *stubClient) expireIfNeeded(key string) {
	if deadline, ok := c.ttl[key]; ok && time.Now().After(deadline) {
		delete(c.ttl, key)
		delete(c.store, key)
	}
}

func (c *stubClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if val, ok := c.store[key]; ok {
		cmd.SetVal(val)
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *stubClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.setErr != nil {
		cmd.SetErr(c.setErr)
		return cmd
	}
	bytes, _ := value.([]byte)
	c.store[key] = string(bytes)
	if expiration > 0 {
		c.ttl[key] = time.Now().Add(expiration)
	} else {
		delete(c.ttl, key)
	}
	cmd.SetVal("OK")
	return cmd
}

func (c *stubClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.delErr != nil {
		cmd.SetErr(c.delErr)
		return cmd
	}
	var removed int64
	for _, key := range keys {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok {
			delete(c.store, key)
			delete(c.ttl, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (c *stubClient) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	if c.scanErr != nil {
		cmd.SetErr(c.scanErr)
		return cmd
	}
	var keys []string
	for key := range c.store {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok && globMatch(match, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if c.scanPage <= 0 {
		cmd.SetVal(keys, 0)
		return cmd
	}
	start := int(cursor)
	if start > len(keys) {
		start = len(keys)
	}
	end := start + c.scanPage
	if end >= len(keys) {
		cmd.SetVal(keys[start:], 0)
		return cmd
	}
	cmd.SetVal(keys[start:end], uint64(end))
	return cmd
}

func (c *stubClient) FlushDB(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.flushErr != nil {
		cmd.SetErr(c.flushErr)
		return cmd
	}
	c.store = make(map[string]string)
	c.ttl = make(map[string]time.Time)
	cmd.SetVal("OK")
	return cmd
}

func (c *stubClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.pingErr != nil {
		cmd.SetErr(c.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func (c *stubClient) Close() error {
	c.closed = true
	return nil
}

// globMatch approximates Redis MATCH; path.Match shares its escaping rules.
func globMatch(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
