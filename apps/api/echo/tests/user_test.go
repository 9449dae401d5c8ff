package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/core/user"
)

func TestHome(t *testing.T) {
	app := setup(t)
	app.run(t, []httpTest{
		{name: "home", path: "/", wantCode: http.StatusOK, wantMsg: "Welcome to Chuo API!"},
		{name: "unknown route", path: "/nowhere", wantCode: http.StatusNotFound},
	})
}

func TestLogin(t *testing.T) {
	app := setup(t)
	app.createUser(t, "joe", true)
	app.createUser(t, "inactive", false)

	app.run(t, []httpTest{
		{
			name:      "missing password",
			method:    http.MethodPost,
			path:      "/api/v1/users/login",
			body:      LoginRequest{Username: "joe"},
			wantCode:  http.StatusBadRequest,
			wantField: "password",
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/api/v1/users/login",
			body:     LoginRequest{Username: "nobody", Password: password},
			wantCode: http.StatusBadRequest,
			wantMsg:  "authentication failed",
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/api/v1/users/login",
			body:     LoginRequest{Username: "joe", Password: "wrong"},
			wantCode: http.StatusBadRequest,
			wantMsg:  "authentication failed",
		},
		{
			name:     "inactive user",
			method:   http.MethodPost,
			path:     "/api/v1/users/login",
			body:     LoginRequest{Username: "inactive", Password: password},
			wantCode: http.StatusForbidden,
			wantMsg:  "account deactivated",
		},
		{
			name:     "malformed body",
			method:   http.MethodPost,
			path:     "/api/v1/users/login",
			body:     `{"username":`,
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("by username, case insensitive", func(t *testing.T) {
		code, resp := app.do(t, http.MethodPost, "/api/v1/users/login", "", LoginRequest{Username: "JOE", Password: password})
		assert.Equal(t, http.StatusOK, code)

		var data LoginResponse
		decodeData(t, resp, &data)
		assert.NotEmpty(t, data.Token)

		code, _ = app.do(t, http.MethodGet, "/api/v1/users/me", data.Token, nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("by email", func(t *testing.T) {
		code, _ := app.do(t, http.MethodPost, "/api/v1/users/login", "", LoginRequest{Username: "joe@test.cd", Password: password})
		assert.Equal(t, http.StatusOK, code)
	})
}

func TestMe(t *testing.T) {
	app := setup(t)
	joe := app.createUser(t, "joe", true, user.RoleStudent)
	inactive := app.createUser(t, "inactive", false)

	app.run(t, []httpTest{
		{name: "no token", path: "/api/v1/users/me", wantCode: http.StatusUnauthorized},
		{name: "bad token", path: "/api/v1/users/me", token: "not.a.token", wantCode: http.StatusUnauthorized},
		{name: "inactive user", path: "/api/v1/users/me", token: app.token(t, inactive), wantCode: http.StatusForbidden},
	})

	t.Run("ok", func(t *testing.T) {
		code, resp := app.do(t, http.MethodGet, "/api/v1/users/me", app.token(t, joe), nil)
		assert.Equal(t, http.StatusOK, code)

		var usr user.User
		decodeData(t, resp, &usr)
		assert.Equal(t, joe.ID, usr.ID)
		assert.Equal(t, "joe", usr.Username)
		assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost := joe
		ghost.ID = "ghost"
		code, _ := app.do(t, http.MethodGet, "/api/v1/users/me", app.token(t, ghost), nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})
}

func TestTokenRefresh(t *testing.T) {
	app := setup(t)
	joe := app.createUser(t, "joe", true)

	app.run(t, []httpTest{
		{name: "no token", method: http.MethodPost, path: "/api/v1/users/token-refresh", wantCode: http.StatusUnauthorized},
	})

	t.Run("ok", func(t *testing.T) {
		code, resp := app.do(t, http.MethodPost, "/api/v1/users/token-refresh", app.token(t, joe), nil)
		assert.Equal(t, http.StatusOK, code)

		var data LoginResponse
		decodeData(t, resp, &data)
		assert.NotEmpty(t, data.Token)
	})

	t.Run("refresh expired", func(t *testing.T) {
		claims := app.auth.Claims(joe, 1) // issued in 1970
		token, err := app.auth.Token(claims)
		assert.NoError(t, err)

		code, resp := app.do(t, http.MethodPost, "/api/v1/users/token-refresh", token, nil)
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "refresh has expired", resp.Message)
	})
}
