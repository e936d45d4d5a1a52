package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/flowboard/apps/api/echo"
)

func Test_authApi_login(t *testing.T) {
	app := setup(t, nil)

	tests := []httpTest{
		{
			name:     "blank credentials",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "this field is required", "password": "this field is required"}`),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"username": "admin", "password": "nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"username": "root", "password": "` + adminPassword + `"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		rec := app.serve(httpTest{
			method: http.MethodPost,
			path:   "/v1/auth/login",
			body:   []byte(`{"username": "  Admin ", "password": "` + adminPassword + `"}`),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		claims := new(echoapi.Claims)
		_, err := jwt.ParseWithClaims(res.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(app.conf.Auth.SecretKey), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Username)
		assert.Equal(t, "admin", claims.Subject)
		assert.Equal(t, "Flowboard", claims.Issuer)
		assert.True(t, claims.IsAdmin)
		assert.Equal(t, claims.IssuedAt, claims.OrigIssuedAt)
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	app := setup(t, nil)
	conf := app.conf

	stale := echoapi.GetAdminClaims(conf, time.Now().Add(-2*time.Hour).Unix())
	notAdmin := echoapi.GetAdminClaims(conf)
	notAdmin.IsAdmin = false
	renamed := echoapi.GetAdminClaims(conf)
	renamed.Subject = "former-admin"

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodPost,
			path:     "/v1/auth/token-refresh",
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, errMissingToken),
		},
		{
			name:     "garbage token",
			method:   http.MethodPost,
			path:     "/v1/auth/token-refresh",
			token:    "not.a.jwt",
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name:     "refresh expired",
			method:   http.MethodPost,
			path:     "/v1/auth/token-refresh",
			token:    getToken(t, conf, stale),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "refresh has expired"}),
		},
		{
			name:     "not an admin",
			method:   http.MethodPost,
			path:     "/v1/auth/token-refresh",
			token:    getToken(t, conf, notAdmin),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "admin renamed",
			method:   http.MethodPost,
			path:     "/v1/auth/token-refresh",
			token:    getToken(t, conf, renamed),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		origIat := time.Now().Add(-30 * time.Minute).Unix()
		rec := app.serve(httpTest{
			method: http.MethodPost,
			path:   "/v1/auth/token-refresh",
			token:  getToken(t, conf, echoapi.GetAdminClaims(conf, origIat)),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		claims := new(echoapi.Claims)
		_, err := jwt.ParseWithClaims(res.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(conf.Auth.SecretKey), nil
		})
		require.NoError(t, err)
		assert.Equal(t, origIat, claims.OrigIssuedAt)
	})
}

func TestServer_protectedRoutes(t *testing.T) {
	app := setup(t, nil)

	tests := []httpTest{
		{name: "workflows", method: http.MethodGet, path: "/v1/workflows"},
		{name: "actions", method: http.MethodGet, path: "/v1/actions"},
		{name: "stage", method: http.MethodGet, path: "/v1/stages/some-id"},
		{name: "transition", method: http.MethodPost, path: "/v1/transitions/some-id/execute"},
		{name: "analytics", method: http.MethodPost, path: "/v1/analytics/some-id/refresh"},
	}
	for _, tt := range tests {
		tt.wantCode = http.StatusUnauthorized
		tt.wantData = marshalObj(t, errMissingToken)
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.serve(tt))
		})
	}
}

func TestServer_mcp(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path": "` + r.URL.Path + `"}`))
	})
	app := setup(t, nil, mcp)

	rec := app.serve(httpTest{method: http.MethodGet, path: "/mcp/sse"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path": "/mcp/sse"}`, rec.Body.String())

	rec = app.serve(httpTest{method: http.MethodGet, path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Flowboard API!", rec.Body.String())
}
