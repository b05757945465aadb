package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/dom/slash-backend/internal/api/respond"
)

// Pinger reports database reachability. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	started time.Time
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

type HealthStatus struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Timestamp     string  `json:"timestamp"`
}

func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:        "ok",
		Database:      "connected",
		UptimeSeconds: time.Since(h.started).Seconds(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if h.db == nil || h.db.PingContext(ctx) != nil {
		status.Status = "degraded"
		status.Database = "disconnected"
		code = http.StatusServiceUnavailable
	}
	respond.JSON(w, r, code, status)
}
