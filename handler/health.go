package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/opensearch"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/queue"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/response"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	pool       *pgxpool.Pool
	registry   *provider.Registry
	queue      queue.Queue
	opensearch *opensearch.Client
	startTime  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pool *pgxpool.Pool, registry *provider.Registry, q queue.Queue, os *opensearch.Client) *HealthHandler {
	return &HealthHandler{
		pool:       pool,
		registry:   registry,
		queue:      q,
		opensearch: os,
		startTime:  time.Now(),
	}
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status     string          `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	Uptime     string          `json:"uptime"`
	Database   DatabaseHealth  `json:"database"`
	Queue      QueueHealth     `json:"queue"`
	Providers  map[string]bool `json:"providers"`
	Goroutines int             `json:"goroutines"`
	Logging    string          `json:"logging"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// QueueHealth represents webhook queue health
type QueueHealth struct {
	Depth      int `json:"depth"`
	DeadLetter int `json:"dead_letter"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Providers:  h.registry.HealthCheckAll(ctx),
		Goroutines: runtime.NumGoroutine(),
		Logging:    "console",
	}
	if h.opensearch != nil && h.opensearch.IsEnabled() {
		status.Logging = "opensearch"
	}

	if h.pool != nil {
		start := time.Now()
		if err := h.pool.Ping(ctx); err != nil {
			status.Database.Error = err.Error()
			status.Status = "degraded"
		} else {
			status.Database.Connected = true
			status.Database.ResponseTime = time.Since(start).String()
		}
	}

	if h.queue != nil {
		if depth, err := h.queue.Depth(ctx); err == nil {
			status.Queue.Depth = depth
		}
		if dead, err := h.queue.DeadLetters(ctx); err == nil {
			status.Queue.DeadLetter = len(dead)
		}
	}

	for _, healthy := range status.Providers {
		if !healthy {
			status.Status = "degraded"
			break
		}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	response.Success(w, code, "Health check", status)
}

// ProviderHealth handles GET /health/providers
func (h *HealthHandler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	results := h.registry.HealthCheckAll(ctx)
	response.Success(w, http.StatusOK, "Provider health", results)
}
