package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/ids"
	"github.com/dom/slash-backend/internal/metrics"
	"github.com/dom/slash-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

const auditWriteTimeout = 5 * time.Second

// AuditInput describes one sensitive operation. StatusCode decides the
// recorded status.
type AuditInput struct {
	ActorID    *uuid.UUID
	ActorEmail string
	Action     string
	Resource   string
	ResourceID string
	Method     string
	Path       string
	IP         string
	UserAgent  string
	RequestID  string
	StatusCode int
	Details    map[string]any
	Request    any
	Response   any
	Duration   time.Duration
}

// Auditor accepts audit entries without blocking the caller.
type Auditor interface {
	Record(in AuditInput)
}

// AuditRecorder persists entries from a bounded queue on a fixed set of
// workers. Record never blocks and never fails: a full queue drops the entry,
// a failed write is logged and counted.
type AuditRecorder struct {
	repo  repository.AuditRepository
	queue chan *domain.AuditEntry
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAuditRecorder(repo repository.AuditRepository, queueSize, workers int) *AuditRecorder {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	r := &AuditRecorder{
		repo:  repo,
		queue: make(chan *domain.AuditEntry, queueSize),
		now:   time.Now,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *AuditRecorder) Record(in AuditInput) {
	entry := r.build(in)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.AuditEntries.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case r.queue <- entry:
	default:
		metrics.AuditEntries.WithLabelValues("dropped").Inc()
		log.Warn().
			Str("component", "service.AuditRecorder").
			Str("action", entry.Action).
			Msg("audit queue full, dropping entry")
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *AuditRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *AuditRecorder) worker() {
	defer r.wg.Done()
	for entry := range r.queue {
		r.write(entry)
	}
}

func (r *AuditRecorder) write(entry *domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, entry); err != nil {
		metrics.AuditEntries.WithLabelValues("failed").Inc()
		log.Error().
			Err(err).
			Str("component", "service.AuditRecorder").
			Str("action", entry.Action).
			Int("statusCode", entry.StatusCode).
			Msg("failed to write audit entry")
		return
	}
	metrics.AuditEntries.WithLabelValues("written").Inc()
}

func (r *AuditRecorder) build(in AuditInput) *domain.AuditEntry {
	now := r.now()
	details := in.Details
	if in.RequestID != "" {
		details = make(map[string]any, len(in.Details)+1)
		for k, v := range in.Details {
			details[k] = v
		}
		details["requestId"] = in.RequestID
	}

	return &domain.AuditEntry{
		ID:               ids.New(now),
		ActorID:          in.ActorID,
		ActorEmail:       optional(in.ActorEmail),
		Action:           in.Action,
		Resource:         in.Resource,
		ResourceID:       optional(in.ResourceID),
		Method:           in.Method,
		Path:             in.Path,
		IP:               optional(in.IP),
		UserAgent:        optional(in.UserAgent),
		Status:           domain.AuditStatusFromCode(in.StatusCode),
		StatusCode:       in.StatusCode,
		Details:          jsonOrNil(details),
		RequestSnapshot:  jsonOrNil(in.Request),
		ResponseSnapshot: jsonOrNil(in.Response),
		DurationMs:       in.Duration.Milliseconds(),
		CreatedAt:        now,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func jsonOrNil(v any) datatypes.JSON {
	switch v := v.(type) {
	case nil:
		return nil
	case map[string]any:
		if v == nil {
			return nil
		}
	case json.RawMessage:
		if len(v) == 0 {
			return nil
		}
		return datatypes.JSON(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("component", "service.AuditRecorder").Msg("unserializable audit field")
		return nil
	}
	return datatypes.JSON(data)
}
