package handler

import (
	"context"
	"math"
	"net/http"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthTimeout = 3 * time.Second

// Health reports liveness without touching dependencies
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.config.App.Environment,
		"uptime":      time.Since(h.started).Seconds(),
	})
}

func ping(ctx context.Context, p Pinger) (time.Duration, error) {
	start := time.Now()
	err := p.Ping(ctx)
	return time.Since(start), err
}

func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}

// HealthDB checks PostgreSQL round-trip latency
func (h *Handler) HealthDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	latency, err := ping(ctx, h.db)
	if err != nil {
		h.logger.Error("database health check failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   &APIError{Message: "Database health check failed", Details: h.details(err)},
		})
		return
	}

	h.writeSuccess(w, map[string]any{
		"status":    "connected",
		"database":  "PostgreSQL",
		"latency":   millis(latency),
		"timestamp": time.Now().UTC(),
	})
}

// HealthFull checks every backing service concurrently and reports memory
func (h *Handler) HealthFull(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	var dbLatency, cacheLatency time.Duration
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dbLatency, err = ping(gctx, h.db)
		return err
	})
	g.Go(func() error {
		var err error
		cacheLatency, err = ping(gctx, h.cache)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("full health check failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   &APIError{Message: "Health check failed", Details: h.details(err)},
		})
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usedMB := math.Round(float64(mem.HeapAlloc)/1024/1024*100) / 100
	totalMB := math.Round(float64(mem.HeapSys)/1024/1024*100) / 100
	percent := 0.0
	if totalMB > 0 {
		percent = math.Round(usedMB / totalMB * 100)
	}

	h.writeSuccess(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"server": map[string]any{
			"environment": h.config.App.Environment,
			"uptime":      time.Since(h.started).Seconds(),
			"goVersion":   runtime.Version(),
			"goroutines":  runtime.NumGoroutine(),
			"websockets":  h.hub.GetTotalConnections(),
		},
		"database": map[string]any{
			"status":  "connected",
			"type":    "PostgreSQL",
			"latency": millis(dbLatency),
		},
		"cache": map[string]any{
			"status":  "connected",
			"type":    "Redis",
			"latency": millis(cacheLatency),
		},
		"memory": map[string]any{
			"used":        usedMB,
			"total":       totalMB,
			"percentUsed": percent,
		},
	})
}

// details exposes the failure cause outside production
func (h *Handler) details(err error) string {
	if h.config.App.IsProduction() {
		return ""
	}
	return err.Error()
}
