package handlers_test

import (
	"net/http"
	"testing"

	"github.com/dom/slash-backend/internal/identity"
	"github.com/dom/slash-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_Exchange(t *testing.T) {
	ts := testutil.NewTestServer(t)

	tests := []struct {
		name           string
		token          func() string
		expectedStatus int
		expectedCode   string
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name: "first sign in creates the user",
			token: func() string {
				return ts.Identity.Issue(identity.Assertion{Subject: "sub-1", Email: "First@Example.com", Name: "First"})
			},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result testutil.SessionResponse
				testutil.AssertJSONResponse(t, resp, &result)
				assert.True(t, result.Success)
				assert.Equal(t, "first@example.com", result.User.Email)
				assert.NotEmpty(t, result.AccessToken)
				assert.Regexp(t, `^rtk_[0-9a-f]{64}$`, result.RefreshToken)
				assert.Equal(t, int64(900), result.ExpiresIn)
				assert.Equal(t, int64(900), result.ExpiresInSeconds)
			},
		},
		{
			name:           "missing token",
			token:          func() string { return "" },
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "NO_TOKEN",
		},
		{
			name:           "expired assertion",
			token:          func() string { return ts.Identity.Fail(identity.ErrAssertionExpired) },
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "TOKEN_EXPIRED",
		},
		{
			name:           "revoked assertion",
			token:          func() string { return ts.Identity.Fail(identity.ErrAssertionRevoked) },
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "TOKEN_REVOKED",
		},
		{
			name:           "forged assertion",
			token:          func() string { return "idt_forged" },
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "INVALID_TOKEN",
		},
		{
			name: "assertion without email",
			token: func() string {
				return ts.Identity.Issue(identity.Assertion{Subject: "sub-no-email"})
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "NO_EMAIL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/exchange"), nil, tt.token())
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.expectedCode != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
				return
			}
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}

	// Every attempt, failed or not, is audited.
	entries := testutil.WaitForAudit(t, ts.DB.DB, len(tests), "action = ?", "exchange")
	statuses := map[string]int{}
	for _, e := range entries {
		statuses[string(e.Status)]++
	}
	assert.Equal(t, 1, statuses["success"])
	assert.Equal(t, len(tests)-1, statuses["failure"])
}

func TestAuthHandler_Refresh(t *testing.T) {
	ts := testutil.NewTestServer(t)
	session := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	refresh := func(token string) *http.Response {
		req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/refresh"), nil, token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := refresh(session.RefreshToken)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var rotated testutil.SessionResponse
	testutil.AssertJSONResponse(t, resp, &rotated)
	resp.Body.Close()
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, session.User.ID, rotated.User.ID)

	t.Run("reuse of rotated token", func(t *testing.T) {
		resp := refresh(session.RefreshToken)
		defer resp.Body.Close()
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")
	})

	t.Run("unknown token looks the same", func(t *testing.T) {
		resp := refresh("rtk_unknown")
		defer resp.Body.Close()
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")
	})

	t.Run("missing token", func(t *testing.T) {
		resp := refresh("")
		defer resp.Body.Close()
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "NO_TOKEN")
	})

	t.Run("new token works", func(t *testing.T) {
		resp := refresh(rotated.RefreshToken)
		defer resp.Body.Close()
		testutil.AssertStatusCode(t, resp, http.StatusOK)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	ts := testutil.NewTestServer(t)
	session := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	for _, token := range []string{session.RefreshToken, session.RefreshToken, "", "rtk_garbage"} {
		req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/logout"), nil, token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var body struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		testutil.AssertStatusCode(t, resp, http.StatusOK)
		testutil.AssertJSONResponse(t, resp, &body)
		resp.Body.Close()
		assert.True(t, body.Success)
		assert.NotEmpty(t, body.Message)
	}

	req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/refresh"), nil, session.RefreshToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")
}

func TestAuthHandler_LogoutAll(t *testing.T) {
	ts := testutil.NewTestServer(t)
	builder := testutil.NewUserBuilder()
	first := builder.BuildAndAuthenticate(t, ts)
	second := builder.BuildAndAuthenticate(t, ts)

	req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/user/logout-all"), nil, first.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			RevokedSessions int64 `json:"revokedSessions"`
		} `json:"data"`
	}
	testutil.AssertJSONResponse(t, resp, &body)
	resp.Body.Close()
	assert.Equal(t, int64(2), body.Data.RevokedSessions)

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/auth/refresh"), nil, token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")
		resp.Body.Close()
	}

	t.Run("requires an access token", func(t *testing.T) {
		req := testutil.CreateAuthenticatedRequest(t, http.MethodPost, ts.APIURL("/user/logout-all"), nil, "")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "NO_TOKEN")
	})
}
