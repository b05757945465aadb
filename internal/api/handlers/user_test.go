package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dom/slash-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestUserHandler(t *testing.T) {
	ts := testutil.NewTestServer(t)
	session := testutil.NewUserBuilder().WithEmail("me@example.com").BuildAndAuthenticate(t, ts)
	testutil.CreateSnippet(t, ts, session.AccessToken, "/a", "1")
	testutil.CreateSnippet(t, ts, session.AccessToken, "/b", "2")

	t.Run("me and profile", func(t *testing.T) {
		for _, path := range []string{"/user/me", "/user/profile"} {
			resp := do(t, http.MethodGet, ts.APIURL(path), nil, session.AccessToken)
			testutil.AssertStatusCode(t, resp, http.StatusOK)
			var body struct {
				Data struct {
					ID    string `json:"id"`
					Email string `json:"email"`
				} `json:"data"`
			}
			testutil.AssertJSONResponse(t, resp, &body)
			assert.Equal(t, session.User.ID, body.Data.ID)
			assert.Equal(t, "me@example.com", body.Data.Email)
		}
	})

	t.Run("stats", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.APIURL("/user/stats"), nil, session.AccessToken)
		testutil.AssertStatusCode(t, resp, http.StatusOK)
		var body struct {
			Data struct {
				SnippetCount int64 `json:"snippetCount"`
			} `json:"data"`
		}
		testutil.AssertJSONResponse(t, resp, &body)
		assert.Equal(t, int64(2), body.Data.SnippetCount)
	})

	t.Run("update last login", func(t *testing.T) {
		resp := do(t, http.MethodPut, ts.APIURL("/user/login"), nil, session.AccessToken)
		testutil.AssertStatusCode(t, resp, http.StatusOK)
	})

	t.Run("delete account", func(t *testing.T) {
		resp := do(t, http.MethodDelete, ts.APIURL("/user/account"), nil, session.AccessToken)
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		// The access token is still valid until it expires, but the user is gone.
		resp = do(t, http.MethodGet, ts.APIURL("/user/me"), nil, session.AccessToken)
		testutil.AssertErrorResponse(t, resp, http.StatusNotFound, "USER_NOT_FOUND")

		resp = do(t, http.MethodPost, ts.APIURL("/auth/refresh"), nil, session.RefreshToken)
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")

		resp = do(t, http.MethodGet, ts.APIURL("/snippets"), nil, session.AccessToken)
		var body struct {
			Data []testutil.SnippetResponse `json:"data"`
		}
		testutil.AssertJSONResponse(t, resp, &body)
		assert.Empty(t, body.Data)
	})

	testutil.WaitForAudit(t, ts.DB.DB, 1, "action = ?", "delete_user_account")
}

func TestUserHandler_Sync(t *testing.T) {
	ts := testutil.NewTestServer(t)
	session := testutil.NewUserBuilder().WithSubject("sync-subject").WithEmail("sync@example.com").BuildAndAuthenticate(t, ts)
	testutil.NewUserBuilder().WithEmail("taken@example.com").BuildAndAuthenticate(t, ts)

	loginAt := time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)

	tests := []struct {
		name           string
		body           map[string]any
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "other subject",
			body:           map[string]any{"uid": "someone-else", "email": "sync@example.com", "lastLoginAt": loginAt},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "USER_ID_MISMATCH",
		},
		{
			name:           "missing last login",
			body:           map[string]any{"uid": "sync-subject", "email": "sync@example.com"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "malformed email",
			body:           map[string]any{"uid": "sync-subject", "email": "not-an-email", "lastLoginAt": loginAt},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "email owned by another user",
			body:           map[string]any{"uid": "sync-subject", "email": "taken@example.com", "lastLoginAt": loginAt},
			expectedStatus: http.StatusConflict,
			expectedCode:   "EMAIL_CONFLICT",
		},
		{
			name:           "bad timestamp",
			body:           map[string]any{"uid": "sync-subject", "email": "sync@example.com", "lastLoginAt": "yesterday"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_BODY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.APIURL("/user/sync"), tt.body, session.AccessToken)
			testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
		})
	}

	t.Run("updates profile", func(t *testing.T) {
		resp := do(t, http.MethodPost, ts.APIURL("/user/sync"), map[string]any{
			"uid":         "sync-subject",
			"email":       "Sync.New@Example.com",
			"displayName": "Renamed",
			"photoURL":    "https://example.com/a.png",
			"lastLoginAt": loginAt,
		}, session.AccessToken)
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		var body struct {
			Message string `json:"message"`
			Data    struct {
				ID          string    `json:"id"`
				Email       string    `json:"email"`
				DisplayName *string   `json:"displayName"`
				AvatarURL   *string   `json:"avatarUrl"`
				LastLoginAt time.Time `json:"lastLoginAt"`
			} `json:"data"`
		}
		testutil.AssertJSONResponse(t, resp, &body)
		assert.Equal(t, "User synced successfully", body.Message)
		assert.Equal(t, session.User.ID, body.Data.ID)
		assert.Equal(t, "sync.new@example.com", body.Data.Email)
		if assert.NotNil(t, body.Data.DisplayName) {
			assert.Equal(t, "Renamed", *body.Data.DisplayName)
		}
		if assert.NotNil(t, body.Data.AvatarURL) {
			assert.Equal(t, "https://example.com/a.png", *body.Data.AvatarURL)
		}
		assert.Equal(t, loginAt, body.Data.LastLoginAt.UTC().Format(time.RFC3339))
	})

	testutil.WaitForAudit(t, ts.DB.DB, 1, "action = ? AND status_code = ?", "sync_user", http.StatusForbidden)
}
