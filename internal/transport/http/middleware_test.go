// Copyright 2026 The AppForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/appforge/internal/deployment"
)

func authTestHandler(t *testing.T) (*Handler, *TokenIssuer) {
	t.Helper()
	issuer := NewTokenIssuer("test-secret", time.Hour)
	return NewHandler(nil, nil, nil, nil, nil, nil, issuer, nil), issuer
}

// TestPurpose: Validates that requests without a bearer token are rejected
// before reaching any handler.
// Scope: Unit Test
// Security: Fail-closed authentication boundary
func TestAuthMiddleware_MissingToken(t *testing.T) {
	h, _ := authTestHandler(t)

	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil)
	w := httptest.NewRecorder()
	h.AuthMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached)
}

// TestPurpose: Validates that a malformed bearer token is rejected.
// Scope: Unit Test
// Security: Token verification boundary
func TestAuthMiddleware_InvalidToken(t *testing.T) {
	h, _ := authTestHandler(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	h.AuthMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestPurpose: Validates that a valid token injects the tenant scope into the
// request context.
// Scope: Unit Test
// Security: Tenant scope comes from the token, never from the request body.
func TestAuthMiddleware_ValidTokenInjectsTenant(t *testing.T) {
	h, issuer := authTestHandler(t)

	raw, err := issuer.Issue("ten-1", "user-1")
	require.NoError(t, err)

	var gotTenant, gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = GetTenantID(r.Context())
		gotSubject = GetSubject(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	h.AuthMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ten-1", gotTenant)
	assert.Equal(t, "user-1", gotSubject)
}

func TestRequireTenant_BlocksEmptyContext(t *testing.T) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil)
	w := httptest.NewRecorder()
	RequireTenant(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached)
}

// TestPurpose: Validates the engine error taxonomy maps onto the documented
// HTTP statuses, and that the structured error body survives the mapping.
// Scope: Unit Test
func TestRespondEngineError_StatusMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{deployment.CodeNotFound, http.StatusNotFound},
		{deployment.CodeConflict, http.StatusConflict},
		{deployment.CodeValidation, http.StatusBadRequest},
		{deployment.CodeQuotaExceeded, http.StatusBadRequest},
		{deployment.CodeRemoteTransient, http.StatusBadGateway},
		{deployment.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondEngineError(w, deployment.NewError(tt.code, "boom"))
			assert.Equal(t, tt.want, w.Code)

			var body deployment.Error
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, "boom", body.Message)
		})
	}
}

func TestRespondEngineError_PlainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	respondEngineError(w, errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// Raw error text never leaks to the client.
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestHealthCheck(t *testing.T) {
	h, _ := authTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "appforge")
}
