package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/achievement"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/draft"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/grade"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/student"
	"github.com/trezcool/chuo/core/user"
	"github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

const password = "Pa$$w0rd!"

type (
	testApp struct {
		server  *Server
		auth    *Auth
		usrRepo user.Repository
		store   record.Store
		logger  *testutil.Logger
	}

	// response is the envelope of every answer.
	response struct {
		StatusCode int               `json:"statusCode"`
		Data       json.RawMessage   `json:"data"`
		Message    string            `json:"message"`
		Success    bool              `json:"success"`
		Errors     map[string]string `json:"errors"`
	}

	httpTest struct {
		name      string
		method    string
		path      string
		body      interface{}
		token     string
		wantCode  int
		wantMsg   string
		wantField string // expected key of the field errors
	}
)

func testConfig() *core.Config {
	return &core.Config{
		TestMode:  true,
		AppName:   "Chuo",
		Env:       "TEST",
		Build:     "test",
		SecretKey: "secret",
		Timezone:  "UTC",
		Server: core.ServerConfig{
			BodyLimit:                 "1M",
			RequestTimeout:            time.Minute,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: core.DatabaseConfig{Engine: core.EngineMemory},
	}
}

func setup(t *testing.T, payments ...student.PaymentStatusSource) *testApp {
	conf := testConfig()
	db := inmemdb.Open()
	store := inmemdb.NewRecordStore(db)
	usrRepo := inmemdb.NewUserRepository(db)
	validate, translator := testutil.NewValidator()
	logger := testutil.NewLogger(t)

	var paymentSrc student.PaymentStatusSource
	if len(payments) > 0 {
		paymentSrc = payments[0]
	}

	usrSvc := user.NewService(usrRepo)
	attSvc := attendance.NewService(store, usrSvc, validate, conf.Location())
	resultSvc := examresult.NewService(store, validate)
	achSvc := achievement.NewService(store, usrSvc, validate)
	gradeSvc := grade.NewService(store, usrSvc, validate)

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		DraftSvc:       draft.NewService(store, validate),
		ResultSvc:      resultSvc,
		AttendanceSvc:  attSvc,
		AchievementSvc: achSvc,
		GradeSvc:       gradeSvc,
		StudentSvc:     student.NewService(attSvc, resultSvc, achSvc, gradeSvc, paymentSrc, logger),
	})
	return &testApp{server: server, auth: NewAuth(conf), usrRepo: usrRepo, store: store, logger: logger}
}

func (app *testApp) createUser(t *testing.T, uname string, active bool, roles ...string) user.User {
	return testutil.CreateUser(t, app.usrRepo, uname, uname, uname+"@test.cd", password, roles, active)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := app.auth.Token(app.auth.Claims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func newAuthRequest(t *testing.T, method, path, token string, data interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	switch d := data.(type) {
	case nil:
	case string:
		body.WriteString(d)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(d))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

// do sends the request and decodes the envelope.
func (app *testApp) do(t *testing.T, method, path, token string, data interface{}) (int, response) {
	t.Helper()
	req, rec := newAuthRequest(t, method, path, token, data)
	app.server.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

// run executes table tests and checks the envelope of each answer.
func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			code, resp := app.do(t, method, tt.path, tt.token, tt.body)
			checkEnvelope(t, tt, code, resp)
		})
	}
}

func checkEnvelope(t *testing.T, tt httpTest, code int, resp response) {
	t.Helper()
	if code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v (%s)", code, tt.wantCode, resp.Message)
	}
	if resp.StatusCode != code {
		t.Errorf("failed! statusCode = %v; want %v", resp.StatusCode, code)
	}
	if wantSuccess := code < http.StatusBadRequest; resp.Success != wantSuccess {
		t.Errorf("failed! success = %v; want %v", resp.Success, wantSuccess)
	}
	if tt.wantMsg != "" && resp.Message != tt.wantMsg {
		t.Errorf("failed! message = %q; want %q", resp.Message, tt.wantMsg)
	}
	if tt.wantField != "" {
		if _, ok := resp.Errors[tt.wantField]; !ok {
			t.Errorf("failed! errors = %v; want an error on %q", resp.Errors, tt.wantField)
		}
	}
}

func decodeData(t *testing.T, resp response, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v), string(resp.Data))
}

// recordData is the JSON shape of a stored record.
type recordData struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	User      string          `json:"user"`
	Course    string          `json:"course"`
	Unit      *string         `json:"unit"`
	Lesson    string          `json:"lesson"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
