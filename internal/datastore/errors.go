package datastore

import (
	"context"
	"errors"
	"fmt"

	"bookstore-datastore/internal/cache"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
)

// Kind classifies a datastore failure so callers can choose a retry strategy.
type Kind int

const (
	// KindCommand: the cache or store rejected the operation.
	KindCommand Kind = iota
	// KindConnection: the cache or store could not be reached.
	KindConnection
	// KindSerialization: a payload could not be converted to or from its stored form.
	KindSerialization
	// KindNotFound: the id is absent from the store (and, for reads, from the cache).
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindSerialization:
		return "serialization error"
	case KindNotFound:
		return "not found"
	default:
		return "command error"
	}
}

// Sentinels for errors.Is checks against an *Error.
var (
	ErrConnection    = errors.New("datastore: connection error")
	ErrSerialization = errors.New("datastore: serialization error")
	ErrNotFound      = errors.New("datastore: not found")
	ErrCommand       = errors.New("datastore: command error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindSerialization:
		return ErrSerialization
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrCommand
	}
}

// Error is returned by every Datastore operation.
type Error struct {
	Op   string
	ID   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// IsRetryable reports whether err is worth retrying. Only connectivity
// failures are; a missing record or a bad payload will fail the same way again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnection)
}

// KindOf returns the kind of a datastore error, or KindCommand for foreign errors.
func KindOf(err error) Kind {
	var dsErr *Error
	if errors.As(err, &dsErr) {
		return dsErr.Kind
	}
	return KindCommand
}

// classify wraps an adapter error into an *Error for op.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var dsErr *Error
	if errors.As(err, &dsErr) {
		return err
	}
	kind := kindOf(err)
	errorCounter(kind).Inc()
	return &Error{Op: op, ID: id, Kind: kind, Err: err}
}

func kindOf(err error) Kind {
	var serErr *model.SerializationError
	switch {
	case errors.As(err, &serErr), errors.Is(err, repository.ErrCorrupt):
		return KindSerialization
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, cache.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindConnection
	}
	return KindCommand
}
