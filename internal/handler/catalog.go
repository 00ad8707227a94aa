package handler

import (
	"net/http"

	"bookstore-datastore/internal/service"
	"bookstore-datastore/pkg/response"

	"github.com/go-chi/chi/v5"
)

// CatalogHandler handles the lookups between books and bookstores.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// BookstoreOf handles GET /api/v1/books/{id}/bookstore
func (h *CatalogHandler) BookstoreOf(w http.ResponseWriter, r *http.Request) {
	cached, err := h.catalog.BookstoreOf(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Cache", cached.State.String())
	response.OK(w, cached.Record)
}

// BooksIn handles GET /api/v1/bookstores/{id}/books
func (h *CatalogHandler) BooksIn(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.BooksIn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.List(w, books, len(books))
}
