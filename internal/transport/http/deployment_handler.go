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

	"github.com/go-chi/chi/v5"

	"github.com/appforge/appforge/internal/deployment"
	"github.com/appforge/appforge/internal/recipe"
)

// InstallDeploymentRequest represents an install command
type InstallDeploymentRequest struct {
	Recipe  string            `json:"recipe"`
	Name    string            `json:"name,omitempty"`
	Config  map[string]any    `json:"config,omitempty"`
	Secrets map[string]string `json:"secrets,omitempty"`
}

// InstallDeployment queues an install into the workspace. Responds 202 with
// the PENDING record; clients poll for the terminal state.
func (h *Handler) InstallDeployment(w http.ResponseWriter, r *http.Request) {
	var req InstallDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recipe == "" {
		respondError(w, http.StatusBadRequest, "recipe is required")
		return
	}

	d, err := h.engine.Install(r.Context(), GetTenantID(r.Context()), deployment.InstallRequest{
		WorkspaceID: chi.URLParam(r, "workspaceID"),
		RecipeSlug:  req.Recipe,
		Name:        req.Name,
		Config:      req.Config,
		Secrets:     req.Secrets,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, d)
}

// ListDeployments returns the workspace's deployments.
func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	ds, err := h.engine.List(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ds)
}

// GetDeployment returns one deployment.
func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "deploymentID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// UpgradeDeploymentRequest represents an upgrade command
type UpgradeDeploymentRequest struct {
	Config map[string]any `json:"config"`
}

// UpgradeDeployment queues a config change and redeploy.
func (h *Handler) UpgradeDeployment(w http.ResponseWriter, r *http.Request) {
	var req UpgradeDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := h.engine.Upgrade(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "deploymentID"), req.Config)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, d)
}

// RestartDeployment queues a redeploy with the current config.
func (h *Handler) RestartDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Restart(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "deploymentID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, d)
}

// RemoveDeployment queues the deployment's teardown.
func (h *Handler) RemoveDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Remove(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "deploymentID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, d)
}

// ListRecipes returns the recipe catalog.
func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list recipes")
		return
	}
	respondJSON(w, http.StatusOK, recipes)
}

// GetRecipe returns one catalog entry.
func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recipes.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, recipe.ErrRecipeNotFound) {
			respondError(w, http.StatusNotFound, "recipe not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load recipe")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
