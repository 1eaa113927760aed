package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	. "github.com/hcanning/homeroom/apps/api/echo"
	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
	logsvc "github.com/hcanning/homeroom/services/logger"
	"github.com/hcanning/homeroom/storage/securefile"
)

var (
	errUnauthorized = httpErr{Error: "Unauthorized"}
	errNotFound     = httpErr{Error: "Not found"}
)

type testEnv struct {
	app   Server
	svc   *school.Service
	codec *auth.SessionCodec
	repo  school.Repository
	dir   string
}

func setup(t *testing.T) *testEnv {
	conf := core.NewTestConfig(t.TempDir())

	repo, err := securefile.Open(conf.DataDir)
	require.NoError(t, err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	hasher := auth.NewHasher(auth.HasherParams{N: 1024, R: 8, P: 1, SaltLen: 16, KeyLen: 32})
	svc := school.NewService(repo, hasher, validate)
	codec := auth.NewSessionCodec(conf.SessionSecret, conf.SessionMaxAge)

	app := NewServer(&Options{
		Conf:           conf,
		Logger:         logsvc.NewTestLogger(log.New(io.Discard, "", 0)),
		Service:        svc,
		Sessions:       codec,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return &testEnv{app: app, svc: svc, codec: codec, repo: repo, dir: conf.DataDir}
}

func (env *testEnv) sessionToken(t *testing.T, subject string, role auth.Role) string {
	token, err := env.codec.Issue(subject, role)
	if err != nil {
		t.Fatalf("sessionToken() failed: %v", err)
	}
	return token
}

func (env *testEnv) adminToken(t *testing.T) string {
	return env.sessionToken(t, auth.AdminSubject, auth.RoleSuperadmin)
}

func (env *testEnv) teacherToken(t *testing.T, teacher school.Teacher) string {
	return env.sessionToken(t, teacher.ID, auth.RoleTeacher)
}

func (env *testEnv) createTeacher(t *testing.T, email, pwd string) school.Teacher {
	teacher, err := env.svc.CreateTeacher(context.Background(), school.NewTeacher{Email: email, Password: pwd, Name: "Teacher " + email})
	require.NoError(t, err)
	return teacher
}

func (env *testEnv) createStudent(t *testing.T, teacherID, name string) school.Student {
	student, err := env.svc.CreateStudent(context.Background(), teacherID, school.NewStudent{Name: name})
	require.NoError(t, err)
	return student
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
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
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// sessionCookie returns the session cookie set on the response, if any.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
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
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
