// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nestling/nestling/internal/auth"
	authpg "github.com/nestling/nestling/internal/auth/postgres"
	"github.com/nestling/nestling/internal/httpapi"
	"github.com/nestling/nestling/internal/observability"
	"github.com/nestling/nestling/internal/store"
)

// testEnv holds the database and API server shared by the suite.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	service   *auth.Service
	server    *httptest.Server
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("nestling_e2e"),
		postgres.WithUsername("nestling"),
		postgres.WithPassword("nestling"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	env.pool, err = store.Connect(ctx, connStr, store.ConnectOptions{MaxConns: 4})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1, SaltLen: 16, KeyLen: 32})
	if err != nil {
		env.cleanup()
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(GinkgoWriter, nil))
	env.service, err = auth.NewAuthService(
		authpg.NewUserRepository(env.pool),
		authpg.NewSessionRepository(env.pool),
		hasher,
		auth.WithLogger(logger),
		auth.WithMetrics(observability.NewMetrics(prometheus.NewRegistry())),
	)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.server = httptest.NewServer(httpapi.NewAPI(env.service, httpapi.APIOptions{Logger: logger}))
	return env, nil
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	e.cancel()
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

func (e *testEnv) call(method, path, token, body string) apiResponse {
	GinkgoHelper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(e.ctx, method, e.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return apiResponse{status: resp.StatusCode, header: resp.Header, body: data}
}

type sessionBody struct {
	User  auth.PublicUser `json:"user"`
	Token string          `json:"token"`
}

func decodeSession(r apiResponse) sessionBody {
	GinkgoHelper()
	var s sessionBody
	Expect(json.Unmarshal(r.body, &s)).To(Succeed())
	return s
}

var _ = Describe("Auth flow over PostgreSQL", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	It("signs up a pregnant user and resolves the session", func() {
		resp := env.call(http.MethodPost, httpapi.RouteSignup, "",
			`{"email":"  Maya@Example.COM ","password":"hunter22","full_name":"Maya","user_type":"pregnant","pregnancy_week":24}`)
		Expect(resp.status).To(Equal(http.StatusOK))

		session := decodeSession(resp)
		Expect(session.Token).To(HaveLen(64))
		Expect(session.User.Email).To(Equal("maya@example.com"))
		Expect(session.User.PregnancyWeek).To(HaveValue(Equal(24)))
		Expect(session.User.ChildrenNames).To(BeEmpty())

		me := env.call(http.MethodGet, httpapi.RouteMe, session.Token, "")
		Expect(me.status).To(Equal(http.StatusOK))
		Expect(string(me.body)).To(ContainSubstring(`"email":"maya@example.com"`))
		Expect(string(me.body)).NotTo(ContainSubstring("password"))
	})

	It("rejects a duplicate email regardless of case", func() {
		resp := env.call(http.MethodPost, httpapi.RouteSignup, "",
			`{"email":"MAYA@example.com","password":"another1","full_name":"Other","user_type":"parent","children_names":["Kai"]}`)
		Expect(resp.status).To(Equal(http.StatusConflict))
		Expect(string(resp.body)).To(ContainSubstring(`"code":"duplicate_email"`))
	})

	It("logs in with a normalized email and issues an additional session", func() {
		first := decodeSession(env.call(http.MethodPost, httpapi.RouteLogin, "",
			`{"email":"maya@example.com","password":"hunter22"}`))
		second := decodeSession(env.call(http.MethodPost, httpapi.RouteLogin, "",
			`{"email":" MAYA@EXAMPLE.COM","password":"hunter22"}`))
		Expect(first.Token).NotTo(Equal(second.Token))

		Expect(env.call(http.MethodGet, httpapi.RouteMe, first.Token, "").status).To(Equal(http.StatusOK))
		Expect(env.call(http.MethodGet, httpapi.RouteMe, second.Token, "").status).To(Equal(http.StatusOK))
	})

	It("answers unknown email and wrong password identically", func() {
		unknown := env.call(http.MethodPost, httpapi.RouteLogin, "", `{"email":"nobody@example.com","password":"hunter22"}`)
		wrong := env.call(http.MethodPost, httpapi.RouteLogin, "", `{"email":"maya@example.com","password":"wrong-pass"}`)

		Expect(unknown.status).To(Equal(http.StatusUnauthorized))
		Expect(wrong.status).To(Equal(unknown.status))
		Expect(wrong.body).To(Equal(unknown.body))
	})

	It("revokes one session on logout and the rest on logout-all", func() {
		a := decodeSession(env.call(http.MethodPost, httpapi.RouteLogin, "", `{"email":"maya@example.com","password":"hunter22"}`))
		b := decodeSession(env.call(http.MethodPost, httpapi.RouteLogin, "", `{"email":"maya@example.com","password":"hunter22"}`))

		Expect(env.call(http.MethodPost, httpapi.RouteLogout, a.Token, "").status).To(Equal(http.StatusNoContent))
		Expect(env.call(http.MethodGet, httpapi.RouteMe, a.Token, "").status).To(Equal(http.StatusUnauthorized))
		Expect(env.call(http.MethodGet, httpapi.RouteMe, b.Token, "").status).To(Equal(http.StatusOK))

		resp := env.call(http.MethodPost, httpapi.RouteLogoutAll, b.Token, "")
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(string(resp.body)).To(MatchRegexp(`"revoked":\d+`))
		Expect(env.call(http.MethodGet, httpapi.RouteMe, b.Token, "").status).To(Equal(http.StatusUnauthorized))
	})

	It("sweeps revoked sessions from the database", func() {
		deleted, err := env.service.SweepExpired(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(BeNumerically(">=", 2))

		var remaining int
		Expect(env.pool.QueryRow(env.ctx,
			`SELECT count(*) FROM sessions WHERE revoked_at IS NOT NULL`).Scan(&remaining)).To(Succeed())
		Expect(remaining).To(BeZero())
	})

	It("serves the legacy function paths", func() {
		resp := env.call(http.MethodPost, "/.netlify/functions/signup", "",
			`{"email":"kai.parent@example.com","password":"parent1","full_name":"Kai's Parent","user_type":"parent","children_names":["Kai","  ","Lea"]}`)
		Expect(resp.status).To(Equal(http.StatusOK))
		session := decodeSession(resp)
		Expect(session.User.ChildrenNames).To(Equal([]string{"Kai", "Lea"}))
		Expect(session.User.ChildrenCount).To(Equal(2))

		me := env.call(http.MethodGet, "/.netlify/functions/me", session.Token, "")
		Expect(me.status).To(Equal(http.StatusOK))
	})
})
