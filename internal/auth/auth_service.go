// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nestling/nestling/pkg/errutil"
)

var tracer = otel.Tracer("github.com/nestling/nestling/internal/auth")

// Operation names reported to the MetricsRecorder.
const (
	OpSignup         = "signup"
	OpLogin          = "login"
	OpResolveSession = "resolve_session"
	OpLogout         = "logout"
	OpLogoutAll      = "logout_all"
)

// OutcomeSuccess is reported for operations that returned no error.
const OutcomeSuccess = "success"

// MetricsRecorder receives the outcome of each service operation.
// Outcome is OutcomeSuccess or the string form of the error Kind.
type MetricsRecorder interface {
	RecordAuthOperation(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthOperation(string, string) {}

// ClientInfo describes the client a session is issued to.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// Result is returned by Signup and Login.
type Result struct {
	User      PublicUser
	Token     string
	ExpiresAt time.Time
}

// Service provides signup, login, and session operations.
type Service struct {
	users      UserRepository
	sessions   SessionRepository
	hasher     PasswordHasher
	logger     *slog.Logger
	metrics    MetricsRecorder
	now        func() time.Time
	sessionTTL time.Duration
	// dummyHash is verified against when the email is unknown. It comes
	// from the injected hasher so both paths pay the same work factor.
	dummyHash string
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger for internal error details.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the recorder for operation outcomes.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) error {
		if m == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("metrics recorder is required")
		}
		s.metrics = m
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("clock is required")
		}
		s.now = now
		return nil
	}
}

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl <= 0 {
			return oops.Code("AUTH_INVALID_CONFIG").With("ttl", ttl.String()).Errorf("session TTL must be positive")
		}
		s.sessionTTL = ttl
		return nil
	}
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}

	s := &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		logger:     slog.Default(),
		metrics:    noopRecorder{},
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	dummy, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Wrapf(err, "derive dummy password hash")
	}
	s.dummyHash = dummy
	return s, nil
}

// Signup validates the payload, creates the user, and issues a session.
func (s *Service) Signup(ctx context.Context, payload map[string]any, client ClientInfo) (result *Result, err error) {
	ctx, span := tracer.Start(ctx, "auth.Signup")
	defer func() { s.finish(span, OpSignup, err) }()

	rec, err := ValidateSignup(payload)
	if err != nil {
		var verr *ValidationError
		errors.As(err, &verr)
		return nil, oops.Code("AUTH_VALIDATION_FAILED").With("field", verr.Field).Wrap(err)
	}

	_, lookupErr := s.users.GetByEmail(ctx, rec.Email)
	switch {
	case lookupErr == nil:
		return nil, duplicateEmail(rec.Email)
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, s.internal(ctx, "AUTH_SIGNUP_FAILED", "get user by email", lookupErr)
	}

	hash, err := s.hasher.Hash(rec.Password)
	if err != nil {
		return nil, s.internal(ctx, "AUTH_SIGNUP_FAILED", "hash password", err)
	}

	user, err := NewUser(rec, hash, s.now())
	if err != nil {
		return nil, s.internal(ctx, "AUTH_SIGNUP_FAILED", "build user", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmail(rec.Email)
		}
		return nil, s.internal(ctx, "AUTH_SIGNUP_FAILED", "create user", err)
	}

	result, err = s.issueSession(ctx, user, client)
	if err != nil {
		s.rollbackUser(ctx, user.ID)
		return nil, s.internal(ctx, "AUTH_SIGNUP_FAILED", "issue session", err)
	}

	s.logger.InfoContext(ctx, "user signed up",
		"user_id", user.ID.String(),
		"user_type", string(user.UserType))
	return result, nil
}

// rollbackUser removes a user whose session could not be created so a failed
// signup leaves no account behind.
func (s *Service) rollbackUser(ctx context.Context, id ulid.ULID) {
	if err := s.users.Delete(context.WithoutCancel(ctx), id); err != nil {
		errutil.LogError(ctx, s.logger, "failed to roll back user after session failure",
			oops.With("user_id", id.String()).Wrap(err))
	}
}

// Login verifies credentials and issues a new session.
// Unknown emails and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (result *Result, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer func() { s.finish(span, OpLogin, err) }()

	email = NormalizeEmail(email)

	var (
		user       *User
		lookupErr  = ErrNotFound
		targetHash = s.dummyHash
	)
	if email != "" {
		user, lookupErr = s.users.GetByEmail(ctx, email)
	}
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, s.internal(ctx, "AUTH_LOGIN_FAILED", "get user by email", lookupErr)
	}
	userExists := lookupErr == nil

	// Always verify, even for unknown users, so timing does not reveal existence.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if userExists {
			errutil.LogError(ctx, s.logger, "stored password hash is unreadable",
				oops.With("user_id", user.ID.String()).Wrap(verifyErr))
		}
		return nil, invalidCredentials()
	}
	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	result, err = s.issueSession(ctx, user, client)
	if err != nil {
		return nil, s.internal(ctx, "AUTH_LOGIN_FAILED", "issue session", err)
	}
	return result, nil
}

// upgradeHash re-derives the stored hash with the current work factor.
// Failures are logged; login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(), "operation", "hash password", "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(), "operation", "update password hash", "error", err)
		return
	}
	user.PasswordHash = newHash
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// ResolveSession returns the owner of an active session token.
func (s *Service) ResolveSession(ctx context.Context, token string) (user *PublicUser, err error) {
	ctx, span := tracer.Start(ctx, "auth.ResolveSession")
	defer func() { s.finish(span, OpResolveSession, err) }()

	session, owner, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", session.ID.String()))

	public := owner.Public()
	return &public, nil
}

// Logout revokes the session identified by token.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.Logout")
	defer func() { s.finish(span, OpLogout, err) }()

	session, _, err := s.authenticate(ctx, token)
	if err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, session.ID, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return unauthenticated()
		}
		return s.internal(ctx, "AUTH_LOGOUT_FAILED", "revoke session", err)
	}
	return nil
}

// LogoutAll revokes every session of the token's owner, including the token's own.
func (s *Service) LogoutAll(ctx context.Context, token string) (revoked int64, err error) {
	ctx, span := tracer.Start(ctx, "auth.LogoutAll")
	defer func() { s.finish(span, OpLogoutAll, err) }()

	session, _, err := s.authenticate(ctx, token)
	if err != nil {
		return 0, err
	}

	revoked, err = s.sessions.RevokeByUser(ctx, session.UserID, s.now())
	if err != nil {
		return 0, s.internal(ctx, "AUTH_LOGOUT_FAILED", "revoke user sessions", err)
	}
	s.logger.InfoContext(ctx, "revoked all sessions",
		"user_id", session.UserID.String(), "count", revoked)
	return revoked, nil
}

// SweepExpired deletes expired and revoked sessions.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("AUTH_SWEEP_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	return deleted, nil
}

// authenticate resolves a token to its active session and owner.
// Every failure other than a store error is Unauthenticated.
func (s *Service) authenticate(ctx context.Context, token string) (*Session, *User, error) {
	if !IsWellFormedToken(token) {
		return nil, nil, unauthenticated()
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, unauthenticated()
		}
		return nil, nil, s.internal(ctx, "AUTH_SESSION_LOOKUP_FAILED", "get session by token hash", err)
	}

	if state := session.StateAt(s.now()); state != SessionActive {
		s.logger.DebugContext(ctx, "rejected inactive session",
			"session_id", session.ID.String(), "state", string(state))
		return nil, nil, unauthenticated()
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "session owner no longer exists",
				"session_id", session.ID.String(), "user_id", session.UserID.String())
			return nil, nil, unauthenticated()
		}
		return nil, nil, s.internal(ctx, "AUTH_SESSION_LOOKUP_FAILED", "get user by id", err)
	}
	return session, user, nil
}

// issueSession creates and persists a session for user. Errors are returned
// unlogged for the caller to classify.
func (s *Service) issueSession(ctx context.Context, user *User, client ClientInfo) (*Result, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	session, err := NewSession(user.ID, tokenHash, client.UserAgent, client.IPAddress, s.now(), s.sessionTTL)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &Result{
		User:      user.Public(),
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// internal wraps a store or crypto failure and logs its detail. The caller
// only ever sees KindInternal for the result.
func (s *Service) internal(ctx context.Context, code, operation string, err error) error {
	wrapped := oops.Code(code).With("operation", operation).Wrap(err)
	trace.SpanFromContext(ctx).RecordError(wrapped)
	errutil.LogError(ctx, s.logger, "auth operation failed", wrapped)
	return wrapped
}

func (s *Service) finish(span trace.Span, operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(KindOf(err))
		if KindOf(err) == KindInternal {
			span.SetStatus(codes.Error, operation+" failed")
		}
	}
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	span.End()
	s.metrics.RecordAuthOperation(operation, outcome)
}

func duplicateEmail(email string) error {
	return oops.Code("AUTH_DUPLICATE_EMAIL").With("email", email).Wrap(ErrDuplicateEmail)
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func unauthenticated() error {
	return oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
}
