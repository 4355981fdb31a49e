// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

// Package httpapi exposes the auth service over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nestling/nestling/internal/auth"
)

// Route paths.
const (
	RouteSignup    = "/api/auth/signup"
	RouteLogin     = "/api/auth/login"
	RouteMe        = "/api/auth/me"
	RouteLogout    = "/api/auth/logout"
	RouteLogoutAll = "/api/auth/logout-all"
)

// legacyRoutes keep clients of the serverless function paths working.
var legacyRoutes = map[string]string{
	"/.netlify/functions/signup": RouteSignup,
	"/.netlify/functions/login":  RouteLogin,
	"/.netlify/functions/me":     RouteMe,
}

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Authenticator is the auth surface the handlers call.
type Authenticator interface {
	Signup(ctx context.Context, payload map[string]any, client auth.ClientInfo) (*auth.Result, error)
	Login(ctx context.Context, email, password string, client auth.ClientInfo) (*auth.Result, error)
	ResolveSession(ctx context.Context, token string) (*auth.PublicUser, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, token string) (int64, error)
}

var _ Authenticator = (*auth.Service)(nil)

// sessionResponse is the body of a successful signup or login.
type sessionResponse struct {
	User      auth.PublicUser `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type meResponse struct {
	User auth.PublicUser `json:"user"`
}

type logoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler routes auth requests to an Authenticator.
type Handler struct {
	auth   Authenticator
	logger *slog.Logger
	mux    *http.ServeMux
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger for request decoding problems.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler registers the auth routes and their legacy aliases.
func NewHandler(a Authenticator, opts ...HandlerOption) *Handler {
	h := &Handler{auth: a, logger: slog.Default(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}

	routes := map[string]struct {
		method string
		fn     http.HandlerFunc
	}{
		RouteSignup:    {http.MethodPost, h.signup},
		RouteLogin:     {http.MethodPost, h.login},
		RouteMe:        {http.MethodGet, h.me},
		RouteLogout:    {http.MethodPost, h.logout},
		RouteLogoutAll: {http.MethodPost, h.logoutAll},
	}
	for path, rt := range routes {
		h.mux.Handle(path, allowMethod(rt.method, rt.fn))
	}
	for alias, target := range legacyRoutes {
		rt := routes[target]
		h.mux.Handle(alias, allowMethod(rt.method, rt.fn))
	}
	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: codeNotFound})
	})
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Route returns the registered path serving r, or RouteUnmatched.
func (h *Handler) Route(r *http.Request) string {
	_, pattern := h.mux.Handler(r)
	if pattern == "" || pattern == "/" {
		return RouteUnmatched
	}
	return pattern
}

// allowMethod rejects every method but method with a JSON 405.
func allowMethod(method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: codeMethodNotAllowed})
			return
		}
		next(w, r)
	})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeObject(w, r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.auth.Signup(r.Context(), payload, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: result.User, Token: result.Token, ExpiresAt: result.ExpiresAt})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeInto(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: result.User, Token: result.Token, ExpiresAt: result.ExpiresAt})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.ResolveSession(r.Context(), BearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: *user})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), BearerToken(r)); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	revoked, err := h.auth.LogoutAll(r.Context(), BearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: revoked})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.DebugContext(r.Context(), "rejected request body", "path", r.URL.Path, "error", err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: msgBodyTooLarge, Code: codeBodyTooLarge})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgBadBody, Code: string(auth.KindValidation)})
}

// decodeObject reads a JSON object body. An empty body is an empty object.
// Numbers are kept as json.Number so whole-number checks stay exact.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	payload := map[string]any{}
	if err := decodeInto(w, r, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func decodeInto(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

var errTrailingData = errors.New("unexpected data after JSON body")

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive; anything else yields "".
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func clientInfo(r *http.Request) auth.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return auth.ClientInfo{UserAgent: r.UserAgent(), IPAddress: ip}
}
