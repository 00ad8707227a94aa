package datastore

import (
	"strings"

	"bookstore-datastore/internal/model"
)

// CacheState tells whether a read was served from the cache.
type CacheState int

const (
	Miss CacheState = iota
	Hit
)

func (s CacheState) String() string {
	if s == Hit {
		return "HIT"
	}
	return "MISS"
}

func (s CacheState) label() string {
	return strings.ToLower(s.String())
}

// Cached is a record annotated with where it was read from.
type Cached[P model.Payload] struct {
	State  CacheState
	Record model.Record[P]
}

// IsHit reports whether the record came from the cache.
func (c Cached[P]) IsHit() bool {
	return c.State == Hit
}
