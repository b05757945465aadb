// Package respond writes JSON responses and records what was written into the
// request's audit snapshot, if one is attached.
package respond

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/dom/slash-backend/internal/service"
	"github.com/rs/zerolog/log"
)

type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Snapshot collects the audited view of one request: who made it and what the
// handler answered.
type Snapshot struct {
	mu         sync.Mutex
	status     int
	body       interface{}
	actor      *Actor
	resourceID string
}

type Actor struct {
	ID    string
	Email string
}

type snapshotKey struct{}

// NewContext attaches a fresh Snapshot to ctx.
func NewContext(ctx context.Context) (context.Context, *Snapshot) {
	s := &Snapshot{}
	return context.WithValue(ctx, snapshotKey{}, s), s
}

func FromContext(ctx context.Context) *Snapshot {
	s, _ := ctx.Value(snapshotKey{}).(*Snapshot)
	return s
}

func (s *Snapshot) capture(status int, body interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func (s *Snapshot) SetActor(id, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actor = &Actor{ID: id, Email: email}
}

// SetResourceID overrides the resource id taken from the route, e.g. for a
// newly created record.
func (s *Snapshot) SetResourceID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceID = id
}

// Result returns the captured status and body. status is 0 when the handler
// wrote nothing through this package.
func (s *Snapshot) Result() (status int, body interface{}, actor *Actor, resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.body, s.actor, s.resourceID
}

func JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if s := FromContext(r.Context()); s != nil {
		s.capture(status, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "respond.JSON").Msg("failed to encode response")
	}
}

// Fail writes the standard error body.
func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	JSON(w, r, status, ErrorBody{Success: false, Error: message, Code: code})
}

// Error classifies err and writes it. Server errors are logged; their details
// never reach the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	f := service.Classify(err)
	if f.Status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("component", "respond.Error").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	Fail(w, r, f.Status, f.Code, f.Message)
}

// Decode reads a JSON body into v, answering 400 on failure.
func Decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Fail(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return false
	}
	return true
}

// Envelope is the success body shape.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// OK writes data inside a success envelope.
func OK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	JSON(w, r, status, Envelope{Success: true, Data: data})
}
