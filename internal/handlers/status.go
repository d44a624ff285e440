package handlers

import (
	"context"
	"net/http"
	"time"
)

const ServiceName = "oasis"

type healthPinger interface {
	Health(ctx context.Context) error
}

type connectionCounter interface {
	Count() int
}

// natsStatus is satisfied by *nats.Conn.
type natsStatus interface {
	IsConnected() bool
}

type StatusHandler struct {
	version     string
	db          healthPinger
	redis       healthPinger
	nats        natsStatus
	connections connectionCounter
	timeout     time.Duration
}

// NewStatusHandler builds the status and probe endpoints. nats may be nil when
// push alerts are not published over NATS.
func NewStatusHandler(version string, db, redis healthPinger, nats natsStatus, connections connectionCounter) *StatusHandler {
	return &StatusHandler{
		version:     version,
		db:          db,
		redis:       redis,
		nats:        nats,
		connections: connections,
		timeout:     2 * time.Second,
	}
}

type ServiceStatusResponse struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *StatusHandler) Root(w http.ResponseWriter, r *http.Request) {
	count := 0
	if h.connections != nil {
		count = h.connections.Count()
	}
	writeJSON(w, http.StatusOK, ServiceStatusResponse{
		Service:     ServiceName,
		Version:     h.version,
		Status:      "running",
		Connections: count,
	})
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *StatusHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "alive"})
}

// Ready reports 503 unless Postgres and Redis both answer a ping. NATS is
// reported but does not gate readiness; alerts are best effort.
func (h *StatusHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{
		"postgres": probe(ctx, h.db),
		"redis":    probe(ctx, h.redis),
	}
	if h.nats != nil {
		if h.nats.IsConnected() {
			checks["nats"] = "connected"
		} else {
			checks["nats"] = "disconnected"
		}
	}

	if checks["postgres"] != "ok" || checks["redis"] != "ok" {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not ready", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ready", Checks: checks})
}

func probe(ctx context.Context, p healthPinger) string {
	if p == nil {
		return "not configured"
	}
	if err := p.Health(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
