package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/proofmate/apps/api/echo"
	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/analysis"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
	emailsvc "github.com/trezcool/proofmate/services/email"
	"github.com/trezcool/proofmate/services/filestore"
	logsvc "github.com/trezcool/proofmate/services/logger"
	kvstore "github.com/trezcool/proofmate/storage/kv"
	dummydb "github.com/trezcool/proofmate/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "Not authorized to access this route"}

type testEnv struct {
	app     echoapi.Server
	conf    *core.Config
	usrRepo user.Repository
	asgSvc  assignment.Service
	kv      core.KVStore
	reg     *prometheus.Registry
}

type envOption func(env *testEnv, deps *echoapi.ServerDeps)

func withMailService(mailSvc core.EmailService) envOption {
	return func(env *testEnv, deps *echoapi.ServerDeps) {
		deps.UserSvc = user.NewServiceMock(env.usrRepo, mailSvc, deps.Conf)
	}
}

func setup(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	env := &testEnv{
		conf:    conf,
		usrRepo: dummydb.NewUserRepository(dummydb.Open()),
		kv:      kvstore.NewMemoryStore(),
		reg:     prometheus.NewRegistry(),
	}
	env.asgSvc = assignment.NewService(env.kv, analysis.KeywordAnalyzer{}, filestore.NewMemoryStore(), logger)

	deps := echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       user.NewServiceMock(env.usrRepo, emailsvc.NewConsoleServiceMock(conf), conf),
		AssignmentSvc: env.asgSvc,
		Validate:      validate,
		Translator:    translator,
		Registry:      env.reg,
	}
	for _, opt := range opts {
		opt(env, &deps)
	}
	env.app = echoapi.NewServer(deps)
	return env
}

// seed writes the demo assignments & submissions.
func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	_, err := env.asgSvc.ForceReset(context.Background())
	require.NoError(t, err)
}

func (env *testEnv) do(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type httpErrs struct {
	Success bool              `json:"success"`
	Errors  map[string]string `json:"errors"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
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

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := echoapi.GetUserClaims(conf, usr)
	token, err := echoapi.GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func okData(t *testing.T, data interface{}) []byte {
	return marchallObj(t, map[string]interface{}{"success": true, "data": data})
}

func okList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	return marchallObj(t, map[string]interface{}{"success": true, "count": len(objs), "data": objs})
}

func errData(t *testing.T, msg string) []byte {
	return marchallObj(t, httpErr{Error: msg})
}

func fieldErrs(t *testing.T, errs map[string]string) []byte {
	return marchallObj(t, httpErrs{Errors: errs})
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.do(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
