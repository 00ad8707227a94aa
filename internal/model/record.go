package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyID is returned when a record is stored without an identifier.
var ErrEmptyID = errors.New("record id is required")

// Payload is the domain data carried by a record.
// KeyPrefix returns the namespace token used to derive cache keys, so that
// different record kinds never collide in a shared cache.
type Payload interface {
	KeyPrefix() string
}

// Parented is implemented by payloads that reference a parent record.
type Parented interface {
	ParentID() string
}

// Storable is the capability set the datastore needs from a record.
type Storable interface {
	GetID() string
	CacheKey() string
	SerializeForCache() (key string, value []byte, err error)
}

// Record is a storable entity: a caller-assigned id plus its payload.
// The id doubles as the document primary key and, prefixed, as the cache key.
type Record[P Payload] struct {
	ID   string `json:"_id" bson:"_id"`
	Data P      `json:"data" bson:"data"`
}

// NewRecord builds a record from an id and payload.
func NewRecord[P Payload](id string, data P) Record[P] {
	return Record[P]{ID: id, Data: data}
}

// GetID returns the record identifier.
func (r Record[P]) GetID() string {
	return r.ID
}

// GetPayload returns the domain data.
func (r Record[P]) GetPayload() P {
	return r.Data
}

// CacheKey returns the id prefixed with the payload's namespace token.
func (r Record[P]) CacheKey() string {
	return KeyFor[P](r.ID)
}

// SerializeForCache returns the cache key and the JSON form of the payload.
// Only the payload is serialized; the id is recoverable from the key.
func (r Record[P]) SerializeForCache() (string, []byte, error) {
	if r.ID == "" {
		return "", nil, &SerializationError{Err: ErrEmptyID}
	}
	value, err := json.Marshal(r.Data)
	if err != nil {
		return "", nil, &SerializationError{ID: r.ID, Err: err}
	}
	return r.CacheKey(), value, nil
}

// KeyFor derives the cache key for an id of payload kind P.
func KeyFor[P Payload](id string) string {
	var zero P
	return zero.KeyPrefix() + id
}

// FromCache rebuilds a record from its id and a cached payload value.
func FromCache[P Payload](id string, value []byte) (Record[P], error) {
	var data P
	if err := json.Unmarshal(value, &data); err != nil {
		return Record[P]{}, &SerializationError{ID: id, Err: err}
	}
	return Record[P]{ID: id, Data: data}, nil
}

// EncodeRecord converts a record into a loosely typed document for the store.
func EncodeRecord[P Payload](r Record[P]) (map[string]any, error) {
	if r.ID == "" {
		return nil, &SerializationError{Err: ErrEmptyID}
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, &SerializationError{ID: r.ID, Err: err}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &SerializationError{ID: r.ID, Err: err}
	}
	return doc, nil
}

// DecodeRecord converts a store document back into a record.
func DecodeRecord[P Payload](doc map[string]any) (Record[P], error) {
	id, _ := doc["_id"].(string)
	raw, err := json.Marshal(doc)
	if err != nil {
		return Record[P]{}, &SerializationError{ID: id, Err: err}
	}
	var r Record[P]
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record[P]{}, &SerializationError{ID: id, Err: err}
	}
	return r, nil
}

// SerializationError reports a payload that could not be converted to or
// from its stored representation.
type SerializationError struct {
	ID  string
	Err error
}

func (e *SerializationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("serialization failed: %v", e.Err)
	}
	return fmt.Sprintf("serialization failed for %s: %v", e.ID, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
