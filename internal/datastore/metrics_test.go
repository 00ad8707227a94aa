package datastore

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"bookstore-datastore/internal/model"
)

func TestReadCountersTrackHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	c, s := newBackends(t)
	ds := New[model.Book](c, s)
	const collection = "metered_books"

	hits, misses := ReadCount(collection, Hit), ReadCount(collection, Miss)

	if _, err := ds.CreateOne(ctx, collection, ns, dune(), 0); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := ds.Read(ctx, collection, ns, "b1"); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := c.Delete(ctx, ds.CacheKey(ns, "b1")); err != nil {
		t.Fatalf("evict failed: %v", err)
	}
	if _, err := ds.Read(ctx, collection, ns, "b1"); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if got := ReadCount(collection, Hit) - hits; got != 1 {
		t.Fatalf("expected 1 hit, got %d", got)
	}
	if got := ReadCount(collection, Miss) - misses; got != 1 {
		t.Fatalf("expected 1 miss, got %d", got)
	}

	var buf bytes.Buffer
	WriteMetrics(&buf)
	if !strings.Contains(buf.String(), `datastore_reads_total{collection="metered_books",cache="hit"}`) {
		t.Fatalf("read counter missing from exposition:\n%s", buf.String())
	}
}
