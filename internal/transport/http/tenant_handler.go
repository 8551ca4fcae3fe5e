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
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appforge/appforge/internal/observability/logger"
	"github.com/appforge/appforge/internal/tenant"
)

// CreateTenantRequest represents tenant registration data
type CreateTenantRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// CreateTenantResponse carries the new tenant and its first access token
type CreateTenantResponse struct {
	Tenant *tenant.Tenant `json:"tenant"`
	Token  string         `json:"token"`
}

// CreateTenant registers a tenant with its default workspace and issues the
// tenant's first access token.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	t, err := h.tenantService.CreateTenant(r.Context(), req.Name, req.Slug)
	if err != nil {
		if errors.Is(err, tenant.ErrSlugTaken) {
			respondError(w, http.StatusConflict, "slug already in use")
			return
		}
		slog.ErrorContext(r.Context(), "failed to create tenant", logger.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.tokens.Issue(t.ID, "owner")
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	respondJSON(w, http.StatusCreated, CreateTenantResponse{Tenant: t, Token: token})
}

// GetCurrentTenant returns the authenticated tenant.
func (h *Handler) GetCurrentTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenantService.GetTenant(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found")
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// DeleteCurrentTenant removes the authenticated tenant and everything in it.
func (h *Handler) DeleteCurrentTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	if err := h.tenantService.DeleteTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to delete tenant",
			logger.TenantID(tenantID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to delete tenant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateWorkspaceRequest represents workspace creation data
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// CreateWorkspace adds a workspace to the authenticated tenant.
func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	ws, err := h.tenantService.CreateWorkspace(r.Context(), GetTenantID(r.Context()), req.Name, req.Slug)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrSlugTaken):
			respondError(w, http.StatusConflict, "slug already in use")
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusCreated, ws)
}

// ListWorkspaces returns the tenant's workspaces.
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	wss, err := h.tenantService.ListWorkspaces(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list workspaces", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list workspaces")
		return
	}
	respondJSON(w, http.StatusOK, wss)
}

// GetWorkspace returns one workspace.
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.tenantService.GetWorkspace(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found")
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

// DeleteWorkspace tears a workspace down.
func (h *Handler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	err := h.tenantService.DeleteWorkspace(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "workspaceID"))
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrWorkspaceNotFound), errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "workspace not found")
		case errors.Is(err, tenant.ErrLastWorkspace):
			respondError(w, http.StatusConflict, "cannot delete the last active workspace")
		default:
			slog.ErrorContext(r.Context(), "failed to delete workspace", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to delete workspace")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
