package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

// BrokerConn is the part of *amqp091.Connection the health check reads.
type BrokerConn interface {
	IsClosed() bool
}

// HealthHandler reports the database and, when configured, the broker.
// Postgres is required; a missing broker only disables lead events.
type HealthHandler struct {
	db      Pinger
	broker  BrokerConn
	version string
	started time.Time
}

type healthReport struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
}

func NewHealthHandler(db Pinger, broker BrokerConn, version string) *HealthHandler {
	return &HealthHandler{db: db, broker: broker, version: version, started: time.Now()}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return errors.New("not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return h.db.PingContext(ctx)
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	report := healthReport{
		Status:       "healthy",
		Version:      h.version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Dependencies: map[string]string{},
	}
	code := http.StatusOK
	degrade := func(dep string, err error) {
		report.Dependencies[dep] = "unhealthy: " + err.Error()
		report.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	if err := h.checkDatabase(r.Context()); err != nil {
		degrade("database", err)
	} else {
		report.Dependencies["database"] = "healthy"
	}

	switch {
	case h.broker == nil:
		report.Dependencies["rabbitmq"] = "not configured"
	case h.broker.IsClosed():
		degrade("rabbitmq", errors.New("connection closed"))
	default:
		report.Dependencies["rabbitmq"] = "healthy"
	}

	writeJSON(w, code, report)
}
