package handler

import (
	"net/http"
	"runtime"
	"time"

	"bookstore-datastore/internal/service"
	"bookstore-datastore/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	catalog   *service.CatalogService
	cacheType string // memory, redis or nats
	storeType string // sqlite, postgres, mysql, mongodb or dynamodb
	namespace string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(catalog *service.CatalogService, cacheType, storeType, namespace string) *AdminHandler {
	return &AdminHandler{
		catalog:   catalog,
		cacheType: cacheType,
		storeType: storeType,
		namespace: namespace,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["cache_type"] = h.cacheType
	stats["store_type"] = h.storeType
	stats["cache_namespace"] = h.namespace

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if kinds, err := h.catalog.Stats(r.Context()); err == nil {
		stats["collections"] = kinds
	} else {
		stats["collections"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
