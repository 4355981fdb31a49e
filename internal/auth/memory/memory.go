// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

// Package memory provides in-process auth repositories for development
// and tests. Data does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nestling/nestling/internal/auth"
)

// Store holds users and sessions behind one lock so that deleting a user
// also drops its sessions atomically.
type Store struct {
	mu       sync.RWMutex
	users    map[ulid.ULID]*auth.User
	byEmail  map[string]ulid.ULID
	sessions map[ulid.ULID]*auth.Session
	byToken  map[string]ulid.ULID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[ulid.ULID]*auth.User),
		byEmail:  make(map[string]ulid.ULID),
		sessions: make(map[ulid.ULID]*auth.Session),
		byToken:  make(map[string]ulid.ULID),
	}
}

// Users returns the store's auth.UserRepository view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Sessions returns the store's auth.SessionRepository view.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// UserRepository implements auth.UserRepository in memory.
type UserRepository struct{ s *Store }

// Create stores a copy of user. The email check and insert happen under one lock.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	key := auth.NormalizeEmail(user.Email)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.byEmail[key]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", key).Wrap(auth.ErrDuplicateEmail)
	}
	r.s.users[user.ID] = copyUser(user)
	r.s.byEmail[key] = user.ID
	return nil
}

// GetByID returns a copy of the user with id.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return copyUser(u), nil
}

// GetByEmail returns a copy of the user registered under email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return copyUser(r.s.users[id]), nil
}

// UpdatePasswordHash replaces a user's password hash.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	return nil
}

// Delete removes a user and every session it owns.
func (r *UserRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.s.byEmail, auth.NormalizeEmail(u.Email))
	delete(r.s.users, id)
	for sid, sess := range r.s.sessions {
		if sess.UserID == id {
			r.s.dropSession(sid, sess)
		}
	}
	return nil
}

// SessionRepository implements auth.SessionRepository in memory.
type SessionRepository struct{ s *Store }

// Create stores a copy of session. The owner must exist.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[session.UserID]; !ok {
		return oops.Code("SESSION_CREATE_FAILED").
			With("user_id", session.UserID.String()).
			Errorf("session owner does not exist")
	}
	if _, dup := r.s.byToken[session.TokenHash]; dup {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("token hash already in use")
	}
	cp := *session
	r.s.sessions[session.ID] = &cp
	r.s.byToken[session.TokenHash] = session.ID
	return nil
}

// GetByTokenHash returns a copy of the session with tokenHash, whatever its state.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byToken[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	cp := *r.s.sessions[id]
	return &cp, nil
}

// Revoke marks an unrevoked session revoked at at.
func (r *SessionRepository) Revoke(_ context.Context, id ulid.ULID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	revokedAt := at
	sess.RevokedAt = &revokedAt
	return nil
}

// RevokeByUser revokes every session of userID still active at at.
func (r *SessionRepository) RevokeByUser(_ context.Context, userID ulid.ULID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil && !sess.IsExpiredAt(at) {
			revokedAt := at
			sess.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes sessions expired or revoked at or before now.
func (r *SessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if sess.IsExpiredAt(now) || (sess.RevokedAt != nil && !sess.RevokedAt.After(now)) {
			r.s.dropSession(id, sess)
			n++
		}
	}
	return n, nil
}

// dropSession must be called with mu held.
func (s *Store) dropSession(id ulid.ULID, sess *auth.Session) {
	delete(s.byToken, sess.TokenHash)
	delete(s.sessions, id)
}

func copyUser(u *auth.User) *auth.User {
	cp := *u
	if u.PregnancyWeek != nil {
		w := *u.PregnancyWeek
		cp.PregnancyWeek = &w
	}
	if u.ChildrenNames != nil {
		cp.ChildrenNames = append([]string(nil), u.ChildrenNames...)
	}
	return &cp
}

var (
	_ auth.UserRepository    = (*UserRepository)(nil)
	_ auth.SessionRepository = (*SessionRepository)(nil)
)
