package router

import (
	"net/http"

	"bookstore-datastore/internal/handler"
	"bookstore-datastore/internal/middleware"
	"bookstore-datastore/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	BookHandler      *handler.RecordHandler[model.Book, model.BookPatch]
	BookstoreHandler *handler.RecordHandler[model.Bookstore, model.BookstorePatch]
	CatalogHandler   *handler.CatalogHandler
	AdminHandler     *handler.AdminHandler
	AuthMiddleware   func(http.Handler) http.Handler
}

// recordRoutes is the route set shared by every record kind.
type recordRoutes interface {
	List(http.ResponseWriter, *http.Request)
	ListCached(http.ResponseWriter, *http.Request)
	Get(http.ResponseWriter, *http.Request)
	Create(http.ResponseWriter, *http.Request)
	Import(http.ResponseWriter, *http.Request)
	Update(http.ResponseWriter, *http.Request)
	Patch(http.ResponseWriter, *http.Request)
	PatchMany(http.ResponseWriter, *http.Request)
	Delete(http.ResponseWriter, *http.Request)
	DeleteMany(http.ResponseWriter, *http.Request)
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := cfg.AuthMiddleware
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
		r.Get("/metrics", cfg.Handler.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.BookHandler != nil {
			r.Route("/books", func(r chi.Router) {
				mountRecords(r, cfg.BookHandler, auth)
				if cfg.CatalogHandler != nil {
					r.Get("/{id}/bookstore", cfg.CatalogHandler.BookstoreOf)
				}
			})
		}

		if cfg.BookstoreHandler != nil {
			r.Route("/bookstores", func(r chi.Router) {
				mountRecords(r, cfg.BookstoreHandler, auth)
				if cfg.CatalogHandler != nil {
					r.Get("/{id}/books", cfg.CatalogHandler.BooksIn)
				}
			})
		}

		if cfg.AdminHandler != nil {
			r.With(auth).Get("/admin/stats", cfg.AdminHandler.GetStats)
		}
	})

	return r
}

// mountRecords registers reads as public and writes behind auth.
func mountRecords(r chi.Router, h recordRoutes, auth func(http.Handler) http.Handler) {
	r.Get("/", h.List)
	r.Get("/cached", h.ListCached)
	r.Get("/{id}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/", h.Create)
		r.Post("/import", h.Import)
		r.Patch("/", h.PatchMany)
		r.Delete("/", h.DeleteMany)
		r.Put("/{id}", h.Update)
		r.Patch("/{id}", h.Patch)
		r.Delete("/{id}", h.Delete)
	})
}
