package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/flowboard/apps/api/echo"
	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
	inmemdb "github.com/trezcool/flowboard/storage/database/inmem"
	testutil "github.com/trezcool/flowboard/tests"
)

const adminPassword = "s3cret-pass"

var (
	hashOnce  sync.Once
	adminHash string

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type testApp struct {
	server *echoapi.Server
	conf   *core.Config
	repo   workflow.Repository
	svc    *workflow.Service
	token  string
}

func newTestConfig(t *testing.T) *core.Config {
	hashOnce.Do(func() {
		var err error
		if adminHash, err = core.HashPassword(adminPassword); err != nil {
			t.Fatalf("HashPassword(): %v", err)
		}
	})
	return &core.Config{
		AppName:  "Flowboard",
		Env:      "TEST",
		TestMode: true,
		Server:   core.ServerConfig{DisableReqLogs: true},
		Auth: core.AuthConfig{
			SecretKey:                 "test-secret-key",
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
			AdminUsername:             "admin",
			AdminPasswordHash:         adminHash,
		},
	}
}

func setup(t *testing.T, counter workflow.RecordCounter, mcp ...http.Handler) *testApp {
	conf := newTestConfig(t)

	// set up repos & services
	repo := inmemdb.NewWorkflowRepository(inmemdb.Open())
	validate, translator := core.NewValidator()
	svc := workflow.NewService(repo, workflow.Deps{
		Validate: validate,
		Counter:  counter,
		Clock:    testutil.Clock,
		AppName:  conf.AppName,
	})

	deps := echoapi.ServerDeps{
		Conf:        conf,
		Logger:      nopLogger{},
		WorkflowSvc: svc,
		Validate:    validate,
		Translator:  translator,
	}
	if len(mcp) > 0 {
		deps.MCP = mcp[0]
	}

	// set up server
	app := &testApp{
		server: echoapi.NewServer(deps),
		conf:   conf,
		repo:   repo,
		svc:    svc,
	}
	app.token = getToken(t, conf, echoapi.GetAdminClaims(conf))
	return app
}

func (app *testApp) serve(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.server.ServeHTTP(rec, req)
	return rec
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, claims *echoapi.Claims) string {
	token, err := echoapi.GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		assert.Empty(t, rec.Body.String())
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if assert.NoError(t, err, rec.Body.String()) {
		assert.True(t, ok, "data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.serve(tt))
		})
	}
}
