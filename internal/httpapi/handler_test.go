// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestling/nestling/internal/auth"
	"github.com/nestling/nestling/internal/auth/memory"
	"github.com/nestling/nestling/internal/httpapi"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testTTL = 24 * time.Hour

func newService(t *testing.T) (*auth.Service, *clock) {
	t.Helper()
	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1})
	require.NoError(t, err)
	clk := &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	st := memory.NewStore()
	svc, err := auth.NewAuthService(st.Users(), st.Sessions(), hasher,
		auth.WithClock(clk.Now), auth.WithSessionTTL(testTTL))
	require.NoError(t, err)
	return svc, clk
}

func newAPI(t *testing.T) (http.Handler, *clock) {
	t.Helper()
	svc, clk := newService(t)
	return httpapi.NewHandler(svc), clk
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

const pregnantSignup = `{"email":"  Noa@Example.com ","password":"secret1","full_name":"Noa","user_type":"pregnant","pregnancy_week":12}`

func signup(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, httpapi.RouteSignup, body, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode(t, rr)["token"].(string)
}

func TestSignupThenMe(t *testing.T) {
	h, _ := newAPI(t)

	rr := do(t, h, http.MethodPost, httpapi.RouteSignup, pregnantSignup, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	body := decode(t, rr)
	token := body["token"].(string)
	assert.NotEmpty(t, token)
	assert.Equal(t, "2026-03-03T09:00:00Z", body["expires_at"])

	user := body["user"].(map[string]any)
	assert.Equal(t, "noa@example.com", user["email"])
	assert.Equal(t, "pregnant", user["user_type"])
	assert.InDelta(t, 12, user["pregnancy_week"], 0)
	assert.Equal(t, []any{}, user["children_names"])
	assert.InDelta(t, 0, user["children_count"], 0)
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, rr.Body.String(), "argon2")

	rr = do(t, h, http.MethodGet, httpapi.RouteMe, "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode(t, rr)["user"].(map[string]any)
	assert.Equal(t, user["id"], me["id"])
	assert.NotContains(t, me, "password_hash")
}

func TestSignup_ParentProfile(t *testing.T) {
	h, _ := newAPI(t)

	rr := do(t, h, http.MethodPost, httpapi.RouteSignup,
		`{"email":"dan@example.com","password":"secret1","full_name":"Dan","user_type":"parent","children_names":["Lia"," ","Omer"]}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	user := decode(t, rr)["user"].(map[string]any)
	assert.Nil(t, user["pregnancy_week"])
	assert.Equal(t, []any{"Lia", "Omer"}, user["children_names"])
	assert.InDelta(t, 2, user["children_count"], 0)
}

func TestSignup_Errors(t *testing.T) {
	h, _ := newAPI(t)
	signup(t, h, pregnantSignup)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"duplicate email any case", strings.Replace(pregnantSignup, "Noa@Example.com", "NOA@example.COM", 1), http.StatusConflict, "duplicate_email", "email already registered"},
		{"week 0", `{"email":"a@b.c","password":"secret1","full_name":"A","user_type":"pregnant","pregnancy_week":0}`, http.StatusBadRequest, "validation_error", "pregnancy_week must be between 1 and 45"},
		{"week 46", `{"email":"a@b.c","password":"secret1","full_name":"A","user_type":"pregnant","pregnancy_week":46}`, http.StatusBadRequest, "validation_error", "pregnancy_week must be between 1 and 45"},
		{"fractional week", `{"email":"a@b.c","password":"secret1","full_name":"A","user_type":"pregnant","pregnancy_week":12.5}`, http.StatusBadRequest, "validation_error", "pregnancy_week must be a whole number"},
		{"eleven children", `{"email":"a@b.c","password":"secret1","full_name":"A","user_type":"parent","children_names":["1","2","3","4","5","6","7","8","9","10","11"]}`, http.StatusBadRequest, "validation_error", "children_names must contain between 1 and 10 names"},
		{"short password", `{"email":"a@b.c","password":"12345","full_name":"A","user_type":"parent","children_names":["x"]}`, http.StatusBadRequest, "validation_error", "password must be at least 6 characters"},
		{"empty body", "", http.StatusBadRequest, "validation_error", "email is required"},
		{"not json", `email=a@b.c`, http.StatusBadRequest, "validation_error", "request body must be a JSON object"},
		{"json array", `[1,2]`, http.StatusBadRequest, "validation_error", "request body must be a JSON object"},
		{"trailing data", `{"email":"a@b.c"} {}`, http.StatusBadRequest, "validation_error", "request body must be a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, httpapi.RouteSignup, tt.body, "")
			assert.Equal(t, tt.wantCode, rr.Code)
			body := decode(t, rr)
			assert.Equal(t, tt.wantKind, body["code"])
			assert.Equal(t, tt.wantMsg, body["error"])
			assert.NotContains(t, body, "token")
		})
	}
}

func TestOversizedBody(t *testing.T) {
	h, _ := newAPI(t)
	padding := strings.Repeat("x", 70<<10)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "signup", path: httpapi.RouteSignup, body: `{"email":"a@b.c","full_name":"` + padding + `"}`},
		{name: "login", path: httpapi.RouteLogin, body: `{"email":"a@b.c","password":"` + padding + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tt.path, tt.body, "")
			assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
			assert.JSONEq(t, `{"error":"request body too large","code":"request_too_large"}`, rr.Body.String())
		})
	}
}

func TestSignup_BodyJustUnderLimitIsNotTooLarge(t *testing.T) {
	h, _ := newAPI(t)
	body := `{"email":"a@b.c","full_name":"` + strings.Repeat("x", 60<<10) + `"}`

	rr := do(t, h, http.MethodPost, httpapi.RouteSignup, body, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_error", decode(t, rr)["code"])
}

func TestLogin(t *testing.T) {
	h, _ := newAPI(t)
	signup(t, h, pregnantSignup)

	rr := do(t, h, http.MethodPost, httpapi.RouteLogin, `{"email":"NOA@EXAMPLE.COM","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "noa@example.com", body["user"].(map[string]any)["email"])
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	h, _ := newAPI(t)
	signup(t, h, pregnantSignup)

	unknown := do(t, h, http.MethodPost, httpapi.RouteLogin, `{"email":"nobody@example.com","password":"secret1"}`, "")
	wrong := do(t, h, http.MethodPost, httpapi.RouteLogin, `{"email":"noa@example.com","password":"secret2"}`, "")
	empty := do(t, h, http.MethodPost, httpapi.RouteLogin, `{}`, "")

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.Bytes(), wrong.Body.Bytes())
	assert.Equal(t, unknown.Header(), wrong.Header())
	assert.Equal(t, unknown.Body.Bytes(), empty.Body.Bytes())
	assert.JSONEq(t, `{"error":"invalid email or password","code":"invalid_credentials"}`, unknown.Body.String())
}

func TestLogin_MalformedBody(t *testing.T) {
	h, _ := newAPI(t)

	rr := do(t, h, http.MethodPost, httpapi.RouteLogin, `{"email":42}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_error", decode(t, rr)["code"])
}

func TestMe_ExpiredAndGarbageTokensAreIndistinguishable(t *testing.T) {
	h, clk := newAPI(t)
	token := signup(t, h, pregnantSignup)

	clk.Advance(testTTL)
	expired := do(t, h, http.MethodGet, httpapi.RouteMe, "", token)
	garbage := do(t, h, http.MethodGet, httpapi.RouteMe, "", "not-a-token")
	missing := do(t, h, http.MethodGet, httpapi.RouteMe, "", "")

	assert.Equal(t, http.StatusUnauthorized, expired.Code)
	for _, rr := range []*httptest.ResponseRecorder{garbage, missing} {
		assert.Equal(t, expired.Code, rr.Code)
		assert.Equal(t, expired.Body.Bytes(), rr.Body.Bytes())
	}
	assert.JSONEq(t, `{"error":"unauthenticated","code":"unauthenticated"}`, expired.Body.String())
	assert.Equal(t, `Bearer realm="nestling"`, expired.Header().Get("WWW-Authenticate"))
}

func TestLogoutAndLogoutAll(t *testing.T) {
	h, _ := newAPI(t)
	first := signup(t, h, pregnantSignup)

	login := func() string {
		rr := do(t, h, http.MethodPost, httpapi.RouteLogin, `{"email":"noa@example.com","password":"secret1"}`, "")
		require.Equal(t, http.StatusOK, rr.Code)
		return decode(t, rr)["token"].(string)
	}
	second := login()
	third := login()

	rr := do(t, h, http.MethodPost, httpapi.RouteLogout, "", first)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, httpapi.RouteMe, "", first).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, httpapi.RouteLogout, "", first).Code, "second logout")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, httpapi.RouteMe, "", second).Code)

	rr = do(t, h, http.MethodPost, httpapi.RouteLogoutAll, "", second)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"revoked":2}`, rr.Body.String())

	for _, tok := range []string{second, third} {
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, httpapi.RouteMe, "", tok).Code)
	}
}

func TestLegacyRoutes(t *testing.T) {
	h, _ := newAPI(t)

	rr := do(t, h, http.MethodPost, "/.netlify/functions/signup", pregnantSignup, "")
	require.Equal(t, http.StatusOK, rr.Code)
	token := decode(t, rr)["token"].(string)

	rr = do(t, h, http.MethodPost, "/.netlify/functions/login", `{"email":"noa@example.com","password":"secret1"}`, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/.netlify/functions/me", "", token)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newAPI(t)

	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{http.MethodGet, httpapi.RouteSignup, http.MethodPost},
		{http.MethodPut, httpapi.RouteLogin, http.MethodPost},
		{http.MethodPost, httpapi.RouteMe, http.MethodGet},
		{http.MethodGet, httpapi.RouteLogout, http.MethodPost},
		{http.MethodDelete, httpapi.RouteLogoutAll, http.MethodPost},
		{http.MethodGet, "/.netlify/functions/login", http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, "", "")
			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			assert.Equal(t, tt.allow, rr.Header().Get("Allow"))
			assert.JSONEq(t, `{"error":"method not allowed","code":"method_not_allowed"}`, rr.Body.String())
		})
	}
}

func TestNotFound(t *testing.T) {
	h, _ := newAPI(t)

	rr := do(t, h, http.MethodGet, "/api/auth/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not found","code":"not_found"}`, rr.Body.String())
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"BEARER  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, httpapi.BearerToken(req))
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, httpapi.StatusFor(auth.KindValidation))
	assert.Equal(t, http.StatusConflict, httpapi.StatusFor(auth.KindDuplicateEmail))
	assert.Equal(t, http.StatusUnauthorized, httpapi.StatusFor(auth.KindInvalidCredentials))
	assert.Equal(t, http.StatusUnauthorized, httpapi.StatusFor(auth.KindUnauthenticated))
	assert.Equal(t, http.StatusInternalServerError, httpapi.StatusFor(auth.KindInternal))
	assert.Equal(t, http.StatusInternalServerError, httpapi.StatusFor(""))
}

func TestRoute(t *testing.T) {
	h, _ := newAPI(t)
	handler := h.(*httpapi.Handler)

	assert.Equal(t, httpapi.RouteLogin, handler.Route(httptest.NewRequest(http.MethodPost, httpapi.RouteLogin, nil)))
	assert.Equal(t, "/.netlify/functions/me", handler.Route(httptest.NewRequest(http.MethodGet, "/.netlify/functions/me", nil)))
	assert.Equal(t, httpapi.RouteUnmatched, handler.Route(httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)))
}
