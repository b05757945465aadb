package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	maxAuditedBody = 64 << 10
	redacted       = "[REDACTED]"
)

// actions names the audited routes. Routes not listed fall back to
// read/create/update/delete by method.
var actions = map[string]string{
	"GET /api/v1/snippets/":            "get_all_snippets",
	"POST /api/v1/snippets/":           "create_snippet",
	"GET /api/v1/snippets/{id}":        "get_snippet",
	"PUT /api/v1/snippets/{id}":        "update_snippet",
	"DELETE /api/v1/snippets/{id}":     "delete_snippet",
	"POST /api/v1/snippets/{id}/usage": "increment_snippet_usage",
	"GET /api/v1/user/me":              "get_current_user",
	"GET /api/v1/user/profile":         "get_user_profile",
	"GET /api/v1/user/stats":           "get_user_stats",
	"POST /api/v1/user/sync":           "sync_user",
	"PUT /api/v1/user/login":           "update_last_login",
	"DELETE /api/v1/user/account":      "delete_user_account",
}

// ActionName maps a method and chi route pattern to an audit action.
func ActionName(method, pattern string) string {
	if action, ok := actions[method+" "+pattern]; ok {
		return action
	}
	switch method {
	case http.MethodGet:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}

// ResourceName is the first path segment after the API prefix, singular.
func ResourceName(pattern string) string {
	rest := strings.TrimPrefix(pattern, "/api/v1/")
	first, _, _ := strings.Cut(rest, "/")
	if first == "" {
		return "unknown"
	}
	return strings.TrimSuffix(first, "s")
}

// Audit records one entry per request after the handler returns. The handler's
// answer comes from the respond.Snapshot in the request context; responses
// written without it fall back to the status seen on the wire. A panicking
// handler is recorded as a 500 before the panic continues up to Recoverer.
// Fields named "value" are redacted from both snapshots.
func Audit(auditor service.Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqBody := readBody(r)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx, snap := respond.NewContext(r.Context())

			defer func() {
				p := recover()

				status, body, actor, resourceID := snap.Result()
				switch {
				case p != nil:
					status = http.StatusInternalServerError
				case status == 0:
					status = ww.Status()
				}
				if status == 0 {
					status = http.StatusOK
				}

				auditor.Record(auditInput(r, status, reqBody, body, actor, resourceID, time.Since(start)))
				if p != nil {
					panic(p)
				}
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

func auditInput(r *http.Request, status int, reqBody []byte, body any, actor *respond.Actor, resourceID string, took time.Duration) service.AuditInput {
	pattern := r.URL.Path
	params := map[string]string{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			pattern = p
		}
		for i, key := range rctx.URLParams.Keys {
			if key != "*" {
				params[key] = rctx.URLParams.Values[i]
			}
		}
	}
	if resourceID == "" {
		resourceID = params["id"]
	}

	in := service.AuditInput{
		Action:     ActionName(r.Method, pattern),
		Resource:   ResourceName(pattern),
		ResourceID: resourceID,
		Method:     r.Method,
		Path:       r.URL.Path,
		IP:         ClientIP(r),
		UserAgent:  r.UserAgent(),
		RequestID:  chiMiddleware.GetReqID(r.Context()),
		StatusCode: status,
		Details: map[string]any{
			"params": params,
			"query":  r.URL.Query(),
		},
		Request:  redactJSON(reqBody),
		Response: redactValue(body),
		Duration: took,
	}
	if actor != nil {
		if id, err := uuid.Parse(actor.ID); err == nil {
			in.ActorID = &id
		}
		in.ActorEmail = actor.Email
	}
	return in
}

// readBody buffers a JSON request body for the audit entry and puts it back
// for the handler.
func readBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAuditedBody+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), rest), rest}
	if err != nil || len(data) > maxAuditedBody {
		return nil
	}
	return data
}

func redactJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return redact(v)
}

func redactValue(body any) any {
	if body == nil {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return redactJSON(data)
}

func redact(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, child := range v {
			if k == "value" {
				v[k] = redacted
				continue
			}
			v[k] = redact(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = redact(child)
		}
		return v
	default:
		return v
	}
}
