package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/identity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	subject     string
	email       string
	displayName string
}

// NewUserBuilder creates a new UserBuilder with unique default values
func NewUserBuilder() *UserBuilder {
	suffix := uuid.New().String()[:8]
	return &UserBuilder{
		subject:     "subject-" + suffix,
		email:       fmt.Sprintf("user_%s@example.com", suffix),
		displayName: "testuser_" + suffix,
	}
}

func (b *UserBuilder) WithSubject(subject string) *UserBuilder {
	b.subject = subject
	return b
}

func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

func (b *UserBuilder) WithDisplayName(name string) *UserBuilder {
	b.displayName = name
	return b
}

// Assertion returns the identity assertion this user would present.
func (b *UserBuilder) Assertion() identity.Assertion {
	return identity.Assertion{
		Subject:       b.subject,
		Email:         b.email,
		EmailVerified: true,
		Name:          b.displayName,
	}
}

// Build inserts the user directly into the database
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) *domain.User {
	t.Helper()

	name := b.displayName
	now := time.Now()
	user := &domain.User{
		ID:                uuid.New(),
		ExternalSubjectID: b.subject,
		Email:             domain.NormalizeEmail(b.email),
		DisplayName:       &name,
		LastLoginAt:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user
}

// SessionResponse matches the API session response
type SessionResponse struct {
	Success          bool   `json:"success"`
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresIn        int64  `json:"expiresIn"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
	User             struct {
		ID          string  `json:"id"`
		Email       string  `json:"email"`
		DisplayName *string `json:"displayName"`
	} `json:"user"`
}

// BuildAndAuthenticate signs the user in through /auth/exchange and returns the session
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) *SessionResponse {
	t.Helper()

	token := ts.Identity.Issue(b.Assertion())

	req := CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/exchange"), nil, token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to exchange token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var session SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	return &session
}

// SnippetResponse matches the API snippet payload
type SnippetResponse struct {
	ID         string     `json:"id"`
	Keyword    string     `json:"keyword"`
	Value      string     `json:"value"`
	UsageCount int        `json:"usageCount"`
	LastUsed   *time.Time `json:"lastUsed"`
}

// CreateSnippet creates a snippet through the API
func CreateSnippet(t *testing.T, ts *TestServer, accessToken, keyword, value string) *SnippetResponse {
	t.Helper()

	req := CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/snippets"), map[string]string{
		"keyword": keyword,
		"value":   value,
	}, accessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to create snippet: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var body struct {
		Data SnippetResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return &body.Data
}

// WaitForAudit polls until at least n audit entries match the where clause.
// Entries are written asynchronously.
func WaitForAudit(t *testing.T, db *gorm.DB, n int, where string, args ...interface{}) []domain.AuditEntry {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		var entries []domain.AuditEntry
		q := db.Order("created_at ASC, id ASC")
		if strings.TrimSpace(where) != "" {
			q = q.Where(where, args...)
		}
		if err := q.Find(&entries).Error; err != nil {
			t.Fatalf("failed to query audit entries: %v", err)
		}
		if len(entries) >= n {
			return entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d audit entries, have %d", n, len(entries))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}
