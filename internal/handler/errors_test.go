package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"bookstore-datastore/internal/cache"
	"bookstore-datastore/internal/datastore"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
	"bookstore-datastore/internal/service"
)

func TestToAPIError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &datastore.Error{Op: "read", Kind: datastore.KindNotFound, Err: repository.ErrNotFound}, http.StatusNotFound},
		{"serialization", &datastore.Error{Op: "create_one", Kind: datastore.KindSerialization, Err: &model.SerializationError{Err: model.ErrEmptyID}}, http.StatusBadRequest},
		{"connection", &datastore.Error{Op: "create_one", Kind: datastore.KindConnection, Err: cache.ErrUnavailable}, http.StatusServiceUnavailable},
		{"duplicate", &datastore.Error{Op: "create_one", Kind: datastore.KindCommand, Err: fmt.Errorf("insert: %w", repository.ErrDuplicate)}, http.StatusConflict},
		{"command", &datastore.Error{Op: "read_all", Kind: datastore.KindCommand, Err: repository.ErrInvalidCollection}, http.StatusUnprocessableEntity},
		{"validation", &service.ValidationError{Fields: []service.FieldError{{Field: "name", Message: "is required"}}}, http.StatusBadRequest},
		{"empty patch", model.ErrEmptyPatch, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := toAPIError(tc.err).StatusCode; got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestValidationDetailsAreKept(t *testing.T) {
	err := &service.ValidationError{ID: "b1", Fields: []service.FieldError{{Field: "name", Message: "is required"}, {Field: "author", Message: "is required"}}}
	apiErr := toAPIError(err)
	if len(apiErr.Details) != 2 || apiErr.Details[1].Field != "author" {
		t.Fatalf("unexpected details: %+v", apiErr.Details)
	}
}

func TestOnlyConnectionErrorsAreRetryable(t *testing.T) {
	conn := toAPIError(&datastore.Error{Op: "read", Kind: datastore.KindConnection, Err: cache.ErrUnavailable})
	if !conn.Retryable {
		t.Fatalf("connection errors should be marked retryable")
	}
	notFound := toAPIError(&datastore.Error{Op: "read", Kind: datastore.KindNotFound, Err: repository.ErrNotFound})
	if notFound.Retryable {
		t.Fatalf("not found should not be retryable")
	}
}
