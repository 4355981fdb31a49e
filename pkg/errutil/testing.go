// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails unless err carries code. oops reports the
// innermost code, so wrappers that add only context keep it.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertErrorContext fails unless key is set to value anywhere in err's chain.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	got, present := oopsErr.Context()[key]
	require.True(t, present, "context key %q missing from %v", key, oopsErr.Context())
	assert.Equal(t, value, got)
}
