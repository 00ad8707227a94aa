package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookstore-datastore/internal/cache"
	"bookstore-datastore/internal/handler"
	"bookstore-datastore/internal/middleware"
	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/repository"
	"bookstore-datastore/internal/service"
)

const testKey = "secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Count int `json:"count"`
	} `json:"meta"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := repository.NewSQLiteDocumentStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	c := cache.NewMemoryCache(time.Minute)

	catalog := service.NewCatalogService(c, store, service.CatalogConfig{
		BooksCollection:      "books",
		BookstoresCollection: "bookstores",
		Namespace:            "api",
	})
	srv := httptest.NewServer(New(Config{
		Handler:          handler.New(c, store, "test"),
		BookHandler:      handler.NewRecordHandler[model.Book, model.BookPatch](catalog.Books),
		BookstoreHandler: handler.NewRecordHandler[model.Bookstore, model.BookstorePatch](catalog.Bookstores),
		CatalogHandler:   handler.NewCatalogHandler(catalog),
		AdminHandler:     handler.NewAdminHandler(catalog, "memory", "sqlite", "api"),
		AuthMiddleware:   middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{testKey}}),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, authed bool) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("%s %s: decode body: %v", method, path, err)
		}
	}
	return resp, env
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func TestBookLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/api/v1/bookstores", `{"_id":"s1","data":{"name":"Corner","address":"1 Main St","number":"555"}}`, true)
	expectStatus(t, resp, http.StatusCreated)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/books", `{"_id":"b1","data":{"name":"Dune","author":"Herrick","bookstore_id":"s1"}}`, true)
	expectStatus(t, resp, http.StatusCreated)

	resp, env := do(t, srv, http.MethodGet, "/api/v1/books/b1", "", false)
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("expected X-Cache HIT, got %q", resp.Header.Get("X-Cache"))
	}
	var read struct {
		ID    string     `json:"_id"`
		Data  model.Book `json:"data"`
		Cache string     `json:"cache"`
	}
	if err := json.Unmarshal(env.Data, &read); err != nil {
		t.Fatalf("decode read: %v", err)
	}
	if read.ID != "b1" || read.Data.Name != "Dune" || read.Cache != "HIT" {
		t.Fatalf("unexpected read body: %+v", read)
	}

	resp, _ = do(t, srv, http.MethodPut, "/api/v1/books/b1", `{"name":"Dune Messiah","author":"Herrick","bookstore_id":"s1"}`, true)
	expectStatus(t, resp, http.StatusOK)
	_, env = do(t, srv, http.MethodGet, "/api/v1/books/b1", "", false)
	if !strings.Contains(string(env.Data), "Dune Messiah") {
		t.Fatalf("update not visible: %s", env.Data)
	}

	resp, env = do(t, srv, http.MethodGet, "/api/v1/books/b1/bookstore", "", false)
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(string(env.Data), "Corner") {
		t.Fatalf("unexpected bookstore: %s", env.Data)
	}

	resp, env = do(t, srv, http.MethodGet, "/api/v1/bookstores/s1/books", "", false)
	expectStatus(t, resp, http.StatusOK)
	if env.Meta == nil || env.Meta.Count != 1 {
		t.Fatalf("expected one book in s1: %+v", env.Meta)
	}

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/books/b1", "", true)
	expectStatus(t, resp, http.StatusNoContent)
	resp, env = do(t, srv, http.MethodGet, "/api/v1/books/b1", "", false)
	expectStatus(t, resp, http.StatusNotFound)
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND error body, got %+v", env.Error)
	}
}

func TestWritesRequireAPIKey(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/api/v1/bookstores", `{"data":{"name":"Corner"}}`, false)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/bookstores", "", false)
	expectStatus(t, resp, http.StatusOK)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/admin/stats", "", false)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp, _ = do(t, srv, http.MethodGet, "/api/v1/admin/stats", "", true)
	expectStatus(t, resp, http.StatusOK)
}

func TestBatchEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, env := do(t, srv, http.MethodPost, "/api/v1/bookstores?ttl=1h", `[{"_id":"s1","data":{"name":"A"}},{"_id":"s2","data":{"name":"B"}},{"_id":"s3","data":{"name":"C"}}]`, true)
	expectStatus(t, resp, http.StatusCreated)
	var created []model.BookstoreRecord
	if err := json.Unmarshal(env.Data, &created); err != nil || len(created) != 3 {
		t.Fatalf("expected three created records: %s", env.Data)
	}

	resp, env = do(t, srv, http.MethodGet, "/api/v1/bookstores?ids=s1,s3", "", false)
	expectStatus(t, resp, http.StatusOK)
	if env.Meta.Count != 2 {
		t.Fatalf("expected two records, got %d", env.Meta.Count)
	}

	resp, env = do(t, srv, http.MethodPatch, "/api/v1/bookstores", `{"s1":{"address":"north"},"s2":{"number":"7"}}`, true)
	expectStatus(t, resp, http.StatusOK)
	if env.Meta.Count != 2 || !strings.Contains(string(env.Data), "north") {
		t.Fatalf("unexpected patch result: %s", env.Data)
	}

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/bookstores?ids=s1,s2", "", true)
	expectStatus(t, resp, http.StatusNoContent)

	resp, env = do(t, srv, http.MethodGet, "/api/v1/bookstores/cached", "", false)
	expectStatus(t, resp, http.StatusOK)
	if env.Meta.Count != 1 {
		t.Fatalf("expected only s3 cached, got %d", env.Meta.Count)
	}

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/bookstores?all=true&scoped=true", "", true)
	expectStatus(t, resp, http.StatusNoContent)
	_, env = do(t, srv, http.MethodGet, "/api/v1/bookstores", "", false)
	if env.Meta.Count != 0 {
		t.Fatalf("expected empty collection, got %d", env.Meta.Count)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	resp, env := do(t, srv, http.MethodPost, "/api/v1/books", `{"_id":"b1","data":{"name":"","author":""}}`, true)
	expectStatus(t, resp, http.StatusBadRequest)
	if env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %s", env.Error.Code)
	}

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/bookstores", `{"_id":"s1","data":{"name":"A"}}`, true)
	expectStatus(t, resp, http.StatusCreated)
	resp, _ = do(t, srv, http.MethodPost, "/api/v1/bookstores/import", `[{"_id":"s1","data":{"name":"A"}}]`, true)
	expectStatus(t, resp, http.StatusConflict)

	resp, _ = do(t, srv, http.MethodPut, "/api/v1/bookstores/ghost", `{"name":"x"}`, true)
	expectStatus(t, resp, http.StatusNotFound)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/bookstores?ttl=soon", `{"data":{"name":"A"}}`, true)
	expectStatus(t, resp, http.StatusBadRequest)

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/bookstores", "", true)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodGet, "/api/v1/health", "", false)
	expectStatus(t, resp, http.StatusOK)

	resp, env := do(t, srv, http.MethodGet, "/api/v1/ready", "", false)
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(string(env.Data), `"ready":true`) {
		t.Fatalf("expected ready: %s", env.Data)
	}

	resp, _ = do(t, srv, http.MethodGet, "/api/status", "", false)
	expectStatus(t, resp, http.StatusOK)
}

func TestMetricsExposition(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/api/v1/bookstores", `{"_id":"s1","data":{"name":"A"}}`, true)
	expectStatus(t, resp, http.StatusCreated)
	resp, _ = do(t, srv, http.MethodGet, "/api/v1/bookstores/s1", "", false)
	expectStatus(t, resp, http.StatusOK)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), `datastore_reads_total{collection="bookstores",cache="hit"}`) {
		t.Fatalf("hit counter missing:\n%s", body)
	}
}

func TestAdminStatsReportsBackends(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodGet, "/api/v1/admin/stats", "", false)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp, env := do(t, srv, http.MethodGet, "/api/v1/admin/stats", "", true)
	expectStatus(t, resp, http.StatusOK)
	for _, want := range []string{`"cache_type":"memory"`, `"store_type":"sqlite"`, `"cache_namespace":"api"`} {
		if !strings.Contains(string(env.Data), want) {
			t.Fatalf("stats missing %s: %s", want, env.Data)
		}
	}
}
