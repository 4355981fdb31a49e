// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

// Package auth provides account signup, credential login, and bearer
// session management for Nestling.
//
// # Domain Types
//
// Domain types (User, Session) should be created using their constructors:
//   - NewUser - creates a User from a validated SignupRecord and password hash
//   - NewSession - creates a Session with a validated owner, token hash, and expiry
//
// Raw signup payloads are validated with ValidateSignup, which reports the
// first failing field as a *ValidationError.
//
// # Services
//
// Service coordinates the domain operations: Signup, Login, ResolveSession,
// Logout, LogoutAll, and SweepExpired. Errors returned by Service are
// classified with KindOf and rendered with PublicMessage; anything that is
// not a typed outcome is KindInternal and its detail is only logged.
package auth
