package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"bookstore-datastore/internal/model"
	"bookstore-datastore/internal/service"
	"bookstore-datastore/pkg/apierror"
	"bookstore-datastore/pkg/response"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies of record endpoints.
const maxBodyBytes = 4 << 20

// RecordHandler handles the HTTP requests of one record kind.
// Q is the kind's patch type.
type RecordHandler[P model.Payload, Q model.Patch[P]] struct {
	records *service.RecordService[P]
}

// NewRecordHandler creates a record handler.
func NewRecordHandler[P model.Payload, Q model.Patch[P]](records *service.RecordService[P]) *RecordHandler[P, Q] {
	return &RecordHandler[P, Q]{records: records}
}

// ReadResponse is a record annotated with its cache state.
type ReadResponse[P model.Payload] struct {
	ID    string `json:"_id"`
	Data  P      `json:"data"`
	Cache string `json:"cache"`
}

// List handles GET / with an optional ?ids=a,b filter.
func (h *RecordHandler[P, Q]) List(w http.ResponseWriter, r *http.Request) {
	var (
		recs []model.Record[P]
		err  error
	)
	if ids := splitIDs(r.URL.Query().Get("ids")); len(ids) > 0 {
		recs, err = h.records.ListByIDs(r.Context(), ids)
	} else {
		recs, err = h.records.List(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	response.List(w, recs, len(recs))
}

// ListCached handles GET /cached
func (h *RecordHandler[P, Q]) ListCached(w http.ResponseWriter, r *http.Request) {
	recs, err := h.records.ListCached(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.List(w, recs, len(recs))
}

// Get handles GET /{id}
func (h *RecordHandler[P, Q]) Get(w http.ResponseWriter, r *http.Request) {
	cached, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Cache", cached.State.String())
	response.OK(w, ReadResponse[P]{ID: cached.Record.ID, Data: cached.Record.Data, Cache: cached.State.String()})
}

// Create handles POST / with either one record or an array of records.
func (h *RecordHandler[P, Q]) Create(w http.ResponseWriter, r *http.Request) {
	ttl, ok := parseTTL(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
		var recs []model.Record[P]
		if err := json.Unmarshal(body, &recs); err != nil {
			response.Error(w, apierror.BadRequest("invalid JSON array of records"))
			return
		}
		created, err := h.records.CreateMany(r.Context(), recs, ttl)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, created)
		return
	}

	var rec model.Record[P]
	if err := json.Unmarshal(body, &rec); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON record"))
		return
	}
	created, err := h.records.Create(r.Context(), rec, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, created)
}

// Import handles POST /import
func (h *RecordHandler[P, Q]) Import(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var recs []model.Record[P]
	if err := json.Unmarshal(body, &recs); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON array of records"))
		return
	}
	imported, err := h.records.Import(r.Context(), recs)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, imported)
}

// Update handles PUT /{id} with the full payload as body.
func (h *RecordHandler[P, Q]) Update(w http.ResponseWriter, r *http.Request) {
	ttl, ok := parseTTL(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var data P
	if err := json.Unmarshal(body, &data); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON payload"))
		return
	}
	updated, err := h.records.Update(r.Context(), model.NewRecord(chi.URLParam(r, "id"), data), ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, updated)
}

// Patch handles PATCH /{id}
func (h *RecordHandler[P, Q]) Patch(w http.ResponseWriter, r *http.Request) {
	ttl, ok := parseTTL(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var patch Q
	if err := json.Unmarshal(body, &patch); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON patch"))
		return
	}
	updated, err := h.records.Patch(r.Context(), chi.URLParam(r, "id"), patch, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, updated)
}

// PatchMany handles PATCH / with a body of {id: patch}.
func (h *RecordHandler[P, Q]) PatchMany(w http.ResponseWriter, r *http.Request) {
	ttl, ok := parseTTL(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var raw map[string]Q
	if err := json.Unmarshal(body, &raw); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON object of patches"))
		return
	}
	if len(raw) == 0 {
		response.Error(w, apierror.BadRequest("no patches given"))
		return
	}
	patches := make(map[string]model.Patch[P], len(raw))
	for id, patch := range raw {
		patches[id] = patch
	}
	updated, err := h.records.PatchMany(r.Context(), patches, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	response.List(w, updated, len(updated))
}

// Delete handles DELETE /{id}
func (h *RecordHandler[P, Q]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}

// DeleteMany handles DELETE /?ids=a,b and DELETE /?all=true[&scoped=true].
func (h *RecordHandler[P, Q]) DeleteMany(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("all") == "true" {
		if err := h.records.Clear(r.Context(), query.Get("scoped") == "true"); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
		return
	}

	ids := splitIDs(query.Get("ids"))
	if len(ids) == 0 {
		response.Error(w, apierror.BadRequest("ids or all=true is required"))
		return
	}
	if err := h.records.DeleteMany(r.Context(), ids); err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseTTL(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	raw := r.URL.Query().Get("ttl")
	if raw == "" {
		return 0, true
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl < 0 {
		response.Error(w, apierror.BadRequest("ttl must be a positive duration such as 30s"))
		return 0, false
	}
	return ttl, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.Error(w, apierror.BadRequest("failed to read request body"))
		return nil, false
	}
	return body, true
}
