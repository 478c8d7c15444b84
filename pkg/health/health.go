package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Checker checks the health of a dependency.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the JSON body of the liveness and readiness endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type check struct {
	fn       Checker
	critical bool
}

// Handler serves liveness, readiness and the storefront info endpoints.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]check
	started time.Time
	service string
	version string
	now     func() time.Time
}

// NewHandler creates a health handler for the named service and version.
func NewHandler(service, version string) *Handler {
	return &Handler{
		checks:  make(map[string]check),
		started: time.Now(),
		service: service,
		version: version,
		now:     time.Now,
	}
}

// RegisterCritical adds a check whose failure makes the service not ready.
func (h *Handler) RegisterCritical(name string, fn Checker) {
	h.register(name, fn, true)
}

// RegisterNonCritical adds a check that only degrades readiness.
func (h *Handler) RegisterNonCritical(name string, fn Checker) {
	h.register(name, fn, false)
}

func (h *Handler) register(name string, fn Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{fn: fn, critical: critical}
}

// LivenessHandler always answers 200 while the process is running.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: h.now().UTC()})
	}
}

// ReadinessHandler runs every registered check. Any failing critical check
// answers 503; failing non-critical checks answer 200 with status degraded.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := h.Check(ctx)
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// Check runs all checks and aggregates the result.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	checks := make(map[string]check, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	overall := StatusUp

	for name, c := range checks {
		if err := c.fn(ctx); err != nil {
			results[name] = CheckResult{Status: StatusDown, Critical: c.critical, Error: err.Error()}
			if c.critical {
				overall = StatusDown
			} else if overall == StatusUp {
				overall = StatusDegraded
			}
			continue
		}
		results[name] = CheckResult{Status: StatusUp, Critical: c.critical}
	}

	return Response{Status: overall, Timestamp: h.now().UTC(), Checks: results}
}

// MemoryStats is the memory section of the info response, in bytes.
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	HeapInUse  uint64 `json:"heap_in_use"`
	Goroutines int    `json:"goroutines"`
}

// Info is the body of GET /api/health.
type Info struct {
	Status        string      `json:"status"`
	Service       string      `json:"service"`
	Version       string      `json:"version"`
	UptimeSeconds float64     `json:"uptime"`
	Memory        MemoryStats `json:"memory"`
	Timestamp     time.Time   `json:"timestamp"`
}

// InfoHandler serves process status, uptime, memory and version.
func (h *Handler) InfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		now := h.now()
		writeJSON(w, http.StatusOK, Info{
			Status:        "ok",
			Service:       h.service,
			Version:       h.version,
			UptimeSeconds: now.Sub(h.started).Seconds(),
			Memory: MemoryStats{
				Alloc:      ms.Alloc,
				TotalAlloc: ms.TotalAlloc,
				Sys:        ms.Sys,
				HeapInUse:  ms.HeapInuse,
				Goroutines: runtime.NumGoroutine(),
			},
			Timestamp: now.UTC(),
		})
	}
}

// Metadata is the body of GET /api/.
type Metadata struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Environment string   `json:"environment"`
	Endpoints   []string `json:"endpoints"`
}

// MetadataHandler serves static service metadata.
func MetadataHandler(md Metadata) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, md)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
