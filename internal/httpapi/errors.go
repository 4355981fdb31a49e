// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nestling/nestling/internal/auth"
)

// Codes for failures raised by the HTTP layer itself.
const (
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codeBodyTooLarge     = "request_too_large"
)

const (
	msgBadBody      = "request body must be a JSON object"
	msgBodyTooLarge = "request body too large"
)

// RouteUnmatched labels requests that matched no route.
const RouteUnmatched = "unmatched"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an auth error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindDuplicateEmail:
		return http.StatusConflict
	case auth.KindInvalidCredentials, auth.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err using only its public message. The service has
// already logged internal detail.
func writeError(w http.ResponseWriter, err error) {
	kind := auth.KindOf(err)
	if kind == "" {
		kind = auth.KindInternal
	}
	if kind == auth.KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", `Bearer realm="nestling"`)
	}
	writeJSON(w, StatusFor(kind), errorResponse{Error: auth.PublicMessage(err), Code: string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}
