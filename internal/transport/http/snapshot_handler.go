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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appforge/appforge/internal/snapshot"
)

// ExportSnapshot serializes the workspace topology. Never includes secret
// material.
func (h *Handler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, err := h.exporter.Export(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "workspaceID"), GetSubject(r.Context()))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// ImportSnapshot replays an exported document into the workspace. With
// ?overwrite=true, name collisions upgrade the existing deployment instead
// of being skipped.
func (h *Handler) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	var doc snapshot.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid snapshot document")
		return
	}

	overwrite := r.URL.Query().Get("overwrite") == "true"
	result, err := h.importer.Import(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "workspaceID"), &doc, overwrite)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}
