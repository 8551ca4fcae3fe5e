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

package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/deployment"
	"github.com/appforge/appforge/internal/observability/logger"
	"github.com/appforge/appforge/internal/recipe"
	"github.com/appforge/appforge/internal/tenant"
)

// Exporter builds snapshot documents from live workspaces.
type Exporter struct {
	deployments deployment.Repository
	workspaces  tenant.WorkspaceRepository
	recipes     recipe.Repository
	auditLogger audit.Logger
}

// NewExporter creates an exporter.
func NewExporter(deployments deployment.Repository, workspaces tenant.WorkspaceRepository, recipes recipe.Repository, auditLogger audit.Logger) *Exporter {
	return &Exporter{
		deployments: deployments,
		workspaces:  workspaces,
		recipes:     recipes,
		auditLogger: auditLogger,
	}
}

// Export captures the workspace's non-stopped deployments. Dependency ids
// are translated to names; edges pointing at deployments outside the export
// set are dropped. Config drift against the current recipe schema is logged
// but never blocks an export.
func (e *Exporter) Export(ctx context.Context, tenantID, workspaceID, exportedBy string) (*Document, error) {
	ws, err := e.workspaces.GetByID(ctx, workspaceID)
	if err != nil || ws.TenantID != tenantID {
		return nil, deployment.NewError(deployment.CodeNotFound, "workspace not found")
	}

	ds, err := e.deployments.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, deployment.NewError(deployment.CodeInternal, "failed to list deployments")
	}

	nameByID := make(map[string]string, len(ds))
	for _, d := range ds {
		nameByID[d.ID] = d.Name
	}

	doc := &Document{
		Version:    CurrentVersion,
		ExportedAt: time.Now().UTC(),
		ExportedBy: exportedBy,
		Workspace:  WorkspaceMeta{Slug: ws.Slug, Name: ws.Name},
		Services:   make([]Service, 0, len(ds)),
	}

	for _, d := range ds {
		e.checkDrift(ctx, d)

		var deps []string
		for _, depID := range d.DependsOn {
			name, ok := nameByID[depID]
			if !ok {
				slog.WarnContext(ctx, "dropping dependency edge outside export set",
					logger.DeploymentID(d.ID), logger.String("dependency_id", depID))
				continue
			}
			deps = append(deps, name)
		}
		doc.Services = append(doc.Services, Service{
			Recipe:    d.RecipeSlug,
			Name:      d.Name,
			Config:    d.Config,
			DependsOn: deps,
			Status:    d.Status,
		})
	}

	e.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSnapshotExported,
		TenantID: tenantID,
		Resource: ws.ID,
		Metadata: map[string]any{"services": len(doc.Services)},
	})
	return doc, nil
}

func (e *Exporter) checkDrift(ctx context.Context, d *deployment.Deployment) {
	rec, err := e.recipes.GetBySlug(ctx, d.RecipeSlug)
	if err != nil {
		slog.WarnContext(ctx, "exported deployment references an unknown recipe",
			logger.DeploymentID(d.ID), logger.Recipe(d.RecipeSlug))
		return
	}
	if _, fieldErrs := rec.ConfigSchema.Validate(d.Config); fieldErrs != nil {
		slog.WarnContext(ctx, "exported config no longer satisfies the recipe schema",
			logger.DeploymentID(d.ID), logger.Recipe(d.RecipeSlug))
	}
}
