package server

import (
	"encoding/json"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/sadewadee/phpworld/internal/config"
)

var startTime = time.Now()

// HealthHandler serves health check and readiness endpoints.
// Readiness dials the upstream php-fpm pool rather than inspecting a
// local worker pool: the front proxy owns no workers of its own.
type HealthHandler struct {
	cfg *config.ProxyConfig
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(cfg *config.ProxyConfig) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ready", "/readyz":
		h.readiness(w)
	default:
		h.liveness(w)
	}
}

func (h *HealthHandler) liveness(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startTime).String(),
	})
}

func (h *HealthHandler) readiness(w http.ResponseWriter) {
	ready := h.upstreamDialable()
	status := http.StatusOK
	statusStr := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		statusStr = "not_ready"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         statusStr,
		"uptime":         time.Since(startTime).String(),
		"uptime_seconds": time.Since(startTime).Seconds(),
		"upstream":       h.cfg.Upstream.Address,
		"memory": map[string]interface{}{
			"alloc_mb":  mem.Alloc / 1024 / 1024,
			"sys_mb":    mem.Sys / 1024 / 1024,
			"gc_cycles": mem.NumGC,
		},
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	})
}

func (h *HealthHandler) upstreamDialable() bool {
	conn, err := net.DialTimeout(h.cfg.Upstream.Network, h.cfg.Upstream.Address, time.Duration(h.cfg.Upstream.DialTimeout))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
