// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestling/nestling/internal/auth"
	"github.com/nestling/nestling/internal/auth/memory"
)

func newUser(t *testing.T, email string) *auth.User {
	t.Helper()
	week := 12
	return &auth.User{
		ID:            ulid.Make(),
		Email:         email,
		PasswordHash:  "hash",
		FullName:      "Someone",
		UserType:      auth.UserTypePregnant,
		PregnancyWeek: &week,
		CreatedAt:     time.Now(),
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	users := st.Users()

	user := newUser(t, "dana@example.com")
	require.NoError(t, users.Create(ctx, user))

	t.Run("duplicate email ignores case", func(t *testing.T) {
		err := users.Create(ctx, newUser(t, "DANA@example.com"))
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("lookups return copies", func(t *testing.T) {
		got, err := users.GetByEmail(ctx, "Dana@Example.com")
		require.NoError(t, err)
		*got.PregnancyWeek = 40
		got.FullName = "changed"

		again, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 12, *again.PregnancyWeek)
		assert.Equal(t, "Someone", again.FullName)
	})

	t.Run("update password hash", func(t *testing.T) {
		require.NoError(t, users.UpdatePasswordHash(ctx, user.ID, "rehashed"))
		got, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "rehashed", got.PasswordHash)
		assert.ErrorIs(t, users.UpdatePasswordHash(ctx, ulid.Make(), "x"), auth.ErrNotFound)
	})

	t.Run("unknown lookups are not found", func(t *testing.T) {
		_, err := users.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = users.GetByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	users, sessions := st.Users(), st.Sessions()

	owner := newUser(t, "owner@example.com")
	require.NoError(t, users.Create(ctx, owner))

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mk := func(ttl time.Duration) *auth.Session {
		_, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		s, err := auth.NewSession(owner.ID, hash, "", "", now, ttl)
		require.NoError(t, err)
		require.NoError(t, sessions.Create(ctx, s))
		return s
	}

	t.Run("owner must exist", func(t *testing.T) {
		s, err := auth.NewSession(ulid.Make(), "orphan", "", "", now, time.Hour)
		require.NoError(t, err)
		assert.Error(t, sessions.Create(ctx, s))
	})

	t.Run("revoke once", func(t *testing.T) {
		s := mk(time.Hour)
		require.NoError(t, sessions.Revoke(ctx, s.ID, now))
		assert.ErrorIs(t, sessions.Revoke(ctx, s.ID, now), auth.ErrNotFound)

		got, err := sessions.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, auth.SessionRevoked, got.StateAt(now))
	})

	t.Run("sweep removes expired and revoked only", func(t *testing.T) {
		fresh := memory.NewStore()
		require.NoError(t, fresh.Users().Create(ctx, owner))
		repo := fresh.Sessions()

		add := func(ttl time.Duration) *auth.Session {
			_, hash, err := auth.GenerateSessionToken()
			require.NoError(t, err)
			s, err := auth.NewSession(owner.ID, hash, "", "", now, ttl)
			require.NoError(t, err)
			require.NoError(t, repo.Create(ctx, s))
			return s
		}
		expired := add(time.Minute)
		revoked := add(time.Hour)
		active := add(time.Hour)
		require.NoError(t, repo.Revoke(ctx, revoked.ID, now))

		n, err := repo.DeleteExpired(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = repo.GetByTokenHash(ctx, expired.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByTokenHash(ctx, active.TokenHash)
		assert.NoError(t, err)
	})

	t.Run("revoke by user skips expired and revoked sessions", func(t *testing.T) {
		fresh := memory.NewStore()
		require.NoError(t, fresh.Users().Create(ctx, owner))
		repo := fresh.Sessions()

		add := func(ttl time.Duration) *auth.Session {
			_, hash, err := auth.GenerateSessionToken()
			require.NoError(t, err)
			s, err := auth.NewSession(owner.ID, hash, "", "", now, ttl)
			require.NoError(t, err)
			require.NoError(t, repo.Create(ctx, s))
			return s
		}
		expired := add(time.Minute)
		revoked := add(time.Hour)
		first := add(time.Hour)
		second := add(2 * time.Hour)
		require.NoError(t, repo.Revoke(ctx, revoked.ID, now))

		at := now.Add(time.Minute)
		n, err := repo.RevokeByUser(ctx, owner.ID, at)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := repo.GetByTokenHash(ctx, expired.TokenHash)
		require.NoError(t, err)
		assert.Nil(t, got.RevokedAt)
		assert.Equal(t, auth.SessionExpired, got.StateAt(at))

		for _, s := range []*auth.Session{first, second} {
			got, err := repo.GetByTokenHash(ctx, s.TokenHash)
			require.NoError(t, err)
			assert.Equal(t, auth.SessionRevoked, got.StateAt(at))
		}

		n, err = repo.RevokeByUser(ctx, owner.ID, at)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("deleting owner drops sessions", func(t *testing.T) {
		s := mk(time.Hour)
		require.NoError(t, users.Delete(ctx, owner.ID))
		_, err := sessions.GetByTokenHash(ctx, s.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.ErrorIs(t, users.Delete(ctx, owner.ID), auth.ErrNotFound)
	})
}
