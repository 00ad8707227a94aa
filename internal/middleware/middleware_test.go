package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bookstore-datastore/pkg/uid"
)

func TestRequestIDKeepsOnlyUUIDs(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	given := uid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, given)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != given || rec.Header().Get(RequestIDHeader) != given {
		t.Fatalf("expected caller id %s to be kept, got %s", given, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !uid.IsValid(seen) {
		t.Fatalf("expected a generated id, got %q", seen)
	}
}

func TestAuthAcceptsHeaderAndBearer(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{APIKeys: []string{" k1 ", ""}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"api key", "X-API-Key", "k1", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer k1", http.StatusNoContent},
		{"wrong key", "X-API-Key", "k2", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestAuthWithoutKeysIsOpen(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected open access, got %d", rec.Code)
	}
}

func TestRecoveryWritesInternalError(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("unexpected recovery response %d %s", rec.Code, rec.Body.String())
	}
}
