// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package auth

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// UserType is the account profile kind.
type UserType string

// User types.
const (
	UserTypePregnant UserType = "pregnant"
	UserTypeParent   UserType = "parent"
)

// Valid reports whether t is a known user type.
func (t UserType) Valid() bool {
	return t == UserTypePregnant || t == UserTypeParent
}

// User is a registered account. PasswordHash never leaves this package's
// service boundary; callers receive PublicUser.
type User struct {
	ID            ulid.ULID
	Email         string
	PasswordHash  string
	FullName      string
	UserType      UserType
	PregnancyWeek *int
	ChildrenNames []string
	CreatedAt     time.Time
}

// NewUser creates a User from a validated signup record and a password hash.
func NewUser(rec *SignupRecord, passwordHash string, now time.Time) (*User, error) {
	if rec == nil {
		return nil, oops.Code("USER_INVALID").Errorf("signup record is required")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	u := &User{
		ID:           ulid.MustNew(ulid.Timestamp(now), rand.Reader),
		Email:        rec.Email,
		PasswordHash: passwordHash,
		FullName:     rec.FullName,
		UserType:     rec.UserType,
		CreatedAt:    now,
	}
	switch rec.UserType {
	case UserTypePregnant:
		week := rec.PregnancyWeek
		u.PregnancyWeek = &week
	case UserTypeParent:
		u.ChildrenNames = append([]string(nil), rec.ChildrenNames...)
	default:
		return nil, oops.Code("USER_INVALID_TYPE").With("user_type", string(rec.UserType)).Errorf("unknown user type")
	}
	return u, nil
}

// ChildrenCount is derived from ChildrenNames.
func (u *User) ChildrenCount() int {
	return len(u.ChildrenNames)
}

// PublicUser is the outward view of a User.
type PublicUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	UserType      UserType  `json:"user_type"`
	PregnancyWeek *int      `json:"pregnancy_week"`
	ChildrenNames []string  `json:"children_names"`
	ChildrenCount int       `json:"children_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public returns the outward view of u.
func (u *User) Public() PublicUser {
	names := make([]string, len(u.ChildrenNames))
	copy(names, u.ChildrenNames)

	var week *int
	if u.PregnancyWeek != nil {
		w := *u.PregnancyWeek
		week = &w
	}

	return PublicUser{
		ID:            u.ID.String(),
		Email:         u.Email,
		FullName:      u.FullName,
		UserType:      u.UserType,
		PregnancyWeek: week,
		ChildrenNames: names,
		ChildrenCount: len(names),
		CreatedAt:     u.CreatedAt,
	}
}

// UserRepository manages user persistence. Email uniqueness is enforced here.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePasswordHash replaces a user's password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Delete removes a user and, through the store, its sessions.
	Delete(ctx context.Context, id ulid.ULID) error
}
