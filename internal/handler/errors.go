package handler

import (
	"errors"
	"log"
	"net/http"

	"bookstore-datastore/internal/datastore"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
	"bookstore-datastore/internal/service"
	"bookstore-datastore/pkg/apierror"
	"bookstore-datastore/pkg/response"
)

// writeError maps service and datastore errors to API errors.
func writeError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Printf("[Handler] %d: %v", apiErr.StatusCode, err)
	}
	response.Error(w, apiErr)
}

func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		details := make([]apierror.FieldError, len(vErr.Fields))
		for i, f := range vErr.Fields {
			details[i] = apierror.FieldError{Field: f.Field, Message: f.Message}
		}
		return apierror.ValidationError(vErr.Error(), details...)
	}
	if errors.Is(err, model.ErrEmptyPatch) {
		return apierror.BadRequest(err.Error())
	}

	var dsErr *datastore.Error
	if !errors.As(err, &dsErr) {
		return apierror.InternalError("")
	}
	switch dsErr.Kind {
	case datastore.KindNotFound:
		return apierror.NotFound(dsErr.Error())
	case datastore.KindSerialization:
		return apierror.BadRequest(dsErr.Error())
	case datastore.KindConnection:
		return apierror.ServiceUnavailable("")
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return apierror.Conflict(dsErr.Error())
	}
	return apierror.Unprocessable(dsErr.Error())
}
