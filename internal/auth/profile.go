// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package auth

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"
)

// Signup field limits.
const (
	MinPasswordLength = 6
	MinPregnancyWeek  = 1
	MaxPregnancyWeek  = 45
	MinChildren       = 1
	MaxChildren       = 10
)

// SignupRecord is a validated, normalized signup payload.
type SignupRecord struct {
	Email         string
	Password      string
	FullName      string
	UserType      UserType
	PregnancyWeek int      // set when UserType is pregnant
	ChildrenNames []string // set when UserType is parent
}

type signupCheck func(payload map[string]any, rec *SignupRecord) *ValidationError

// signupChecks run in order; the first failure wins.
var signupChecks = []signupCheck{
	checkEmail,
	checkPassword,
	checkFullName,
	checkUserType,
	checkProfileDetails,
}

// ValidateSignup validates and normalizes a raw signup payload.
// Fields not named by a check are ignored.
func ValidateSignup(payload map[string]any) (*SignupRecord, error) {
	rec := &SignupRecord{}
	for _, check := range signupChecks {
		if verr := check(payload, rec); verr != nil {
			return nil, verr
		}
	}
	return rec, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(payload map[string]any, rec *SignupRecord) *ValidationError {
	raw, ok := stringField(payload, "email")
	if !ok {
		return invalidField("email", "email must be a string")
	}
	email := NormalizeEmail(raw)
	if email == "" {
		return invalidField("email", "email is required")
	}
	if !strings.Contains(email, "@") {
		return invalidField("email", "email must contain @")
	}
	rec.Email = email
	return nil
}

func checkPassword(payload map[string]any, rec *SignupRecord) *ValidationError {
	password, ok := stringField(payload, "password")
	if !ok {
		return invalidField("password", "password must be a string")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return invalidField("password", "password must be at least %d characters", MinPasswordLength)
	}
	rec.Password = password
	return nil
}

func checkFullName(payload map[string]any, rec *SignupRecord) *ValidationError {
	raw, ok := stringField(payload, "full_name")
	if !ok {
		return invalidField("full_name", "full_name must be a string")
	}
	name := strings.TrimSpace(raw)
	if name == "" {
		return invalidField("full_name", "full_name is required")
	}
	rec.FullName = name
	return nil
}

func checkUserType(payload map[string]any, rec *SignupRecord) *ValidationError {
	raw, _ := stringField(payload, "user_type")
	userType := UserType(raw)
	if !userType.Valid() {
		return invalidField("user_type", "user_type must be %q or %q", UserTypePregnant, UserTypeParent)
	}
	rec.UserType = userType
	return nil
}

func checkProfileDetails(payload map[string]any, rec *SignupRecord) *ValidationError {
	switch rec.UserType {
	case UserTypePregnant:
		return checkPregnancyWeek(payload, rec)
	case UserTypeParent:
		return checkChildrenNames(payload, rec)
	default:
		return invalidField("user_type", "user_type must be %q or %q", UserTypePregnant, UserTypeParent)
	}
}

func checkPregnancyWeek(payload map[string]any, rec *SignupRecord) *ValidationError {
	week, ok := integerField(payload["pregnancy_week"])
	if !ok {
		return invalidField("pregnancy_week", "pregnancy_week must be a whole number")
	}
	if week < MinPregnancyWeek || week > MaxPregnancyWeek {
		return invalidField("pregnancy_week", "pregnancy_week must be between %d and %d", MinPregnancyWeek, MaxPregnancyWeek)
	}
	rec.PregnancyWeek = int(week)
	return nil
}

func checkChildrenNames(payload map[string]any, rec *SignupRecord) *ValidationError {
	var raw []any
	switch v := payload["children_names"].(type) {
	case []any:
		raw = v
	case []string:
		raw = make([]any, len(v))
		for i, s := range v {
			raw[i] = s
		}
	default:
		return invalidField("children_names", "children_names must be a list of names")
	}

	names := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return invalidField("children_names", "children_names must be a list of names")
		}
		if name := strings.TrimSpace(s); name != "" {
			names = append(names, name)
		}
	}
	if len(names) < MinChildren || len(names) > MaxChildren {
		return invalidField("children_names", "children_names must contain between %d and %d names", MinChildren, MaxChildren)
	}
	rec.ChildrenNames = names
	return nil
}

// stringField returns ("", true) for a missing key so that presence is
// reported by the emptiness checks.
func stringField(payload map[string]any, key string) (string, bool) {
	v, present := payload[key]
	if !present || v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

// integerField accepts JSON numbers and Go integers with no fractional part.
// Numeric strings are rejected.
func integerField(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integerField(f)
	default:
		return 0, false
	}
}
