package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dom/slash-backend/internal/api/middleware"
	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAuditor struct {
	mu      sync.Mutex
	entries []service.AuditInput
}

func (c *captureAuditor) Record(in service.AuditInput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, in)
}

func TestActionName(t *testing.T) {
	tests := []struct {
		method  string
		pattern string
		want    string
	}{
		{http.MethodGet, "/api/v1/snippets/", "get_all_snippets"},
		{http.MethodPost, "/api/v1/snippets/", "create_snippet"},
		{http.MethodPut, "/api/v1/snippets/{id}", "update_snippet"},
		{http.MethodPost, "/api/v1/snippets/{id}/usage", "increment_snippet_usage"},
		{http.MethodDelete, "/api/v1/user/account", "delete_user_account"},
		{http.MethodGet, "/api/v1/things", "read"},
		{http.MethodPatch, "/api/v1/things/{id}", "update"},
		{http.MethodHead, "/api/v1/things", "head"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, middleware.ActionName(tt.method, tt.pattern))
		})
	}
}

func TestResourceName(t *testing.T) {
	assert.Equal(t, "snippet", middleware.ResourceName("/api/v1/snippets/{id}"))
	assert.Equal(t, "user", middleware.ResourceName("/api/v1/user/me"))
	assert.Equal(t, "unknown", middleware.ResourceName("/api/v1/"))
}

func newAuditedRouter(auditor service.Auditor, tokens *service.TokenService) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/snippets", func(r chi.Router) {
		r.Use(middleware.Audit(auditor))
		r.Use(middleware.Auth(tokens))
		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			if !respond.Decode(w, r, &body) {
				return
			}
			respond.OK(w, r, http.StatusOK, map[string]string{
				"id":      chi.URLParam(r, "id"),
				"keyword": body["keyword"],
				"value":   body["value"],
			})
		})
	})
	return r
}

func TestAudit_RecordsRedactedSnapshots(t *testing.T) {
	auditor := &captureAuditor{}
	tokens := service.NewTokenService("secret", time.Minute)
	router := newAuditedRouter(auditor, tokens)

	userID := uuid.New()
	token, err := tokens.MintAccessToken(userID, "user@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/snippets/abc?dry=1", strings.NewReader(`{"keyword":"/pin","value":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// The handler still saw the original body.
	assert.Contains(t, rec.Body.String(), `"value":"1234"`)

	require.Len(t, auditor.entries, 1)
	in := auditor.entries[0]
	assert.Equal(t, "update_snippet", in.Action)
	assert.Equal(t, "snippet", in.Resource)
	assert.Equal(t, "abc", in.ResourceID)
	assert.Equal(t, http.StatusOK, in.StatusCode)
	require.NotNil(t, in.ActorID)
	assert.Equal(t, userID, *in.ActorID)
	assert.Equal(t, "user@example.com", in.ActorEmail)
	assert.Equal(t, map[string]string{"id": "abc"}, in.Details["params"])

	request, err := json.Marshal(in.Request)
	require.NoError(t, err)
	response, err := json.Marshal(in.Response)
	require.NoError(t, err)
	assert.NotContains(t, string(request), "1234")
	assert.NotContains(t, string(response), "1234")
	assert.Contains(t, string(request), "[REDACTED]")
	assert.Contains(t, string(response), "/pin")
}

func TestAudit_RecordsRejectedRequests(t *testing.T) {
	auditor := &captureAuditor{}
	router := newAuditedRouter(auditor, service.NewTokenService("secret", time.Minute))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/snippets/abc", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, auditor.entries, 1)
	assert.Equal(t, http.StatusUnauthorized, auditor.entries[0].StatusCode)
	assert.Nil(t, auditor.entries[0].ActorID)
}

func TestAudit_StatusFollowsResponse(t *testing.T) {
	auditor := &captureAuditor{}
	r := chi.NewRouter()
	r.Route("/api/v1/snippets", func(r chi.Router) {
		r.Use(middleware.Audit(auditor))
		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			respond.OK(w, r, http.StatusOK, nil)
		})
		r.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		})
		r.Get("/bare", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantAction string
	}{
		{name: "method not allowed", method: http.MethodPatch, path: "/api/v1/snippets/abc", wantStatus: http.StatusMethodNotAllowed, wantAction: "update"},
		{name: "no such route", method: http.MethodGet, path: "/api/v1/snippets/abc/history", wantStatus: http.StatusNotFound, wantAction: "read"},
		{name: "plain http.Error", method: http.MethodGet, path: "/api/v1/snippets/plain", wantStatus: http.StatusBadGateway, wantAction: "read"},
		{name: "body without header", method: http.MethodGet, path: "/api/v1/snippets/bare", wantStatus: http.StatusOK, wantAction: "read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor.mu.Lock()
			auditor.entries = nil
			auditor.mu.Unlock()

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			require.Len(t, auditor.entries, 1)
			assert.Equal(t, tt.wantStatus, auditor.entries[0].StatusCode)
			assert.Equal(t, tt.wantAction, auditor.entries[0].Action)
		})
	}
}

func TestAudit_RecordsPanickingHandler(t *testing.T) {
	auditor := &captureAuditor{}
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Route("/api/v1/snippets", func(r chi.Router) {
		r.Use(middleware.Audit(auditor))
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			panic("storage exploded")
		})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/snippets/abc", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, auditor.entries, 1)
	in := auditor.entries[0]
	assert.Equal(t, "delete_snippet", in.Action)
	assert.Equal(t, "abc", in.ResourceID)
	assert.Equal(t, http.StatusInternalServerError, in.StatusCode)
}

func TestAuth(t *testing.T) {
	tokens := service.NewTokenService("secret", time.Minute)
	other := service.NewTokenService("other", time.Minute)
	userID := uuid.New()

	valid, err := tokens.MintAccessToken(userID, "user@example.com")
	require.NoError(t, err)
	forged, err := other.MintAccessToken(userID, "user@example.com")
	require.NoError(t, err)

	handler := middleware.Auth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.GetIdentity(r.Context())
		require.True(t, ok)
		assert.Equal(t, userID, id.UserID)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{name: "valid", header: "Bearer " + valid, wantCode: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer " + valid, wantCode: http.StatusNoContent},
		{name: "missing", header: "", wantCode: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantCode: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + forged, wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, 3)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/exchange", nil)
		req.RemoteAddr = ip + ":4321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.2"), "buckets are per client")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", middleware.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", middleware.ClientIP(req))
}

func TestCORS(t *testing.T) {
	handler := middleware.CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/snippets", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "chrome-extension://abc", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/snippets", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
