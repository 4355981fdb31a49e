// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32                 // 32 bytes = 64 hex chars
	DefaultSessionTTL = 7 * 24 * time.Hour // 7 day expiry
)

// SessionState is the lifecycle state of a session at a point in time.
type SessionState string

// Session states. Expired and Revoked are terminal.
const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
	SessionRevoked SessionState = "revoked"
)

// Session binds a bearer token (stored only as its hash) to a user until ExpiresAt.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// NewSession creates a validated Session that expires ttl after now.
// UserAgent and IPAddress are optional and may be empty.
func NewSession(userID ulid.ULID, tokenHash, userAgent, ipAddress string, now time.Time, ttl time.Duration) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").With("ttl", ttl.String()).Errorf("session TTL must be positive")
	}

	return &Session{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader),
		UserID:    userID,
		TokenHash: tokenHash,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsExpiredAt returns true once t has reached ExpiresAt.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// IsRevoked returns true if the session was explicitly invalidated.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// StateAt returns the lifecycle state at t. Revocation takes precedence over expiry.
func (s *Session) StateAt(t time.Time) SessionState {
	switch {
	case s.IsRevoked():
		return SessionRevoked
	case s.IsExpiredAt(t):
		return SessionExpired
	default:
		return SessionActive
	}
}

// IsActiveAt reports whether the session authenticates requests at t.
func (s *Session) IsActiveAt(t time.Time) bool {
	return s.StateAt(t) == SessionActive
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; the hash is stored in the database.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// IsWellFormedToken reports whether token has the shape GenerateSessionToken produces.
func IsWellFormedToken(token string) bool {
	if len(token) != 2*SessionTokenBytes {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// SessionRepository manages session persistence.
// Lookups return sessions in any state; callers apply IsActiveAt.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Revoke marks a session revoked at the given time.
	Revoke(ctx context.Context, id ulid.ULID, at time.Time) error

	// RevokeByUser revokes every session of a user that is neither revoked nor
	// expired at at, and returns the count.
	RevokeByUser(ctx context.Context, userID ulid.ULID, at time.Time) (int64, error)

	// DeleteExpired removes sessions expired or revoked before now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
