package cache

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"
	"time"
)

func TestRedisCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	client := newStubClient()
	c := newRedisCache(client)

	if err := c.Set(ctx, "book_b1", []byte(`{"name":"Dune"}`), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.ttl["book_b1"]; ok {
		t.Fatalf("expected no expiry for zero ttl")
	}
	body, err := c.Get(ctx, "book_b1")
	if err != nil || string(body) != `{"name":"Dune"}` {
		t.Fatalf("unexpected get result: body=%s err=%v", body, err)
	}

	if err := c.Delete(ctx, "book_b1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	// second delete of the same key must not error
	if err := c.Delete(ctx, "book_b1"); err != nil {
		t.Fatalf("repeated delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "book_b1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss after delete, got %v", err)
	}
}

func TestRedisCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	client := newStubClient()
	c := newRedisCache(client)

	if err := c.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.ttl["k"]; !ok {
		t.Fatalf("expected expiry to be recorded")
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestRedisCacheNegativeTTLMeansNoExpiry(t *testing.T) {
	ctx := context.Background()
	client := newStubClient()
	c := newRedisCache(client)
	if err := c.Set(ctx, "k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.ttl["k"]; ok {
		t.Fatalf("negative ttl should not set an expiry")
	}
}

func TestRedisCacheKeysWalksAllPages(t *testing.T) {
	ctx := context.Background()
	client := newStubClient()
	client.scanPage = 2
	c := newRedisCache(client)

	for _, key := range []string{"books:book_1", "books:book_2", "books:book_3", "other:book_4"} {
		if err := c.Set(ctx, key, []byte("x"), 0); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}
	keys, err := c.Keys(ctx, "books:")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 3 || keys[0] != "books:book_1" || keys[2] != "books:book_3" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRedisCacheKeysTreatsGlobCharactersLiterally(t *testing.T) {
	ctx := context.Background()
	c := newRedisCache(newStubClient())

	for _, key := range []string{"a*:book_1", "ab:book_2", "a?:book_3", "a[b]:book_4"} {
		if err := c.Set(ctx, key, []byte("x"), 0); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}
	for prefix, want := range map[string]string{"a*:": "a*:book_1", "a?:": "a?:book_3", "a[b]:": "a[b]:book_4"} {
		keys, err := c.Keys(ctx, prefix)
		if err != nil {
			t.Fatalf("keys %s failed: %v", prefix, err)
		}
		if len(keys) != 1 || keys[0] != want {
			t.Fatalf("prefix %q: expected [%s], got %v", prefix, want, keys)
		}
	}
}

func TestRedisCacheDeleteManyAndFlush(t *testing.T) {
	ctx := context.Background()
	client := newStubClient()
	c := newRedisCache(client)

	if err := c.DeleteMany(ctx); err != nil {
		t.Fatalf("empty delete many failed: %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, key, []byte("1"), 0)
	}
	if err := c.DeleteMany(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected a to be deleted")
	}
	if _, err := c.Get(ctx, "c"); err != nil {
		t.Fatalf("expected c to survive: %v", err)
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, err := c.Get(ctx, "c"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected c to be flushed")
	}
}

func TestRedisCacheErrorPropagation(t *testing.T) {
	ctx := context.Background()

	client := newStubClient()
	client.getErr = errors.New("get")
	if _, err := newRedisCache(client).Get(ctx, "k"); err == nil || errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected get error, got %v", err)
	}

	client = newStubClient()
	client.setErr = errors.New("set")
	if err := newRedisCache(client).Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected set error")
	}

	client = newStubClient()
	client.delErr = errors.New("del")
	if err := newRedisCache(client).DeleteMany(ctx, "a"); err == nil {
		t.Fatalf("expected delete error")
	}

	client = newStubClient()
	client.scanErr = errors.New("scan")
	if _, err := newRedisCache(client).Keys(ctx, "p"); err == nil {
		t.Fatalf("expected scan error")
	}

	client = newStubClient()
	client.flushErr = errors.New("flush")
	if err := newRedisCache(client).Flush(ctx); err == nil {
		t.Fatalf("expected flush error")
	}
}

func TestRedisCacheConnectivityErrorsAreUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newStubClient()
	client.getErr = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	c := newRedisCache(client)

	_, err := c.Get(ctx, "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	client.pingErr = context.DeadlineExceeded
	if err := c.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ping to report unavailable, got %v", err)
	}
}

func TestRedisCacheClose(t *testing.T) {
	client := newStubClient()
	if err := newRedisCache(client).Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !client.closed {
		t.Fatalf("expected client to be closed")
	}
}
