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
	"errors"
	"fmt"
	"time"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/deployment"
)

// Outcome codes for a single service in an import.
const (
	OutcomeQueued  = "queued"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// ServiceResult reports what happened to one snapshot service.
type ServiceResult struct {
	Name    string `json:"name"`
	Recipe  string `json:"recipe"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Result is the import report. Queued services deploy asynchronously; callers
// poll the deployments themselves for terminal states.
type Result struct {
	Queued  int             `json:"queued"`
	Skipped int             `json:"skipped"`
	Errors  int             `json:"errors"`
	Results []ServiceResult `json:"results"`
}

// Engine is the slice of the deployment service the importer drives.
type Engine interface {
	Install(ctx context.Context, tenantID string, req deployment.InstallRequest) (*deployment.Deployment, error)
	Remove(ctx context.Context, tenantID, deploymentID string) (*deployment.Deployment, error)
}

// Importer replays a snapshot document into a workspace.
type Importer struct {
	engine      Engine
	deployments deployment.Repository
	auditLogger audit.Logger

	removeWait time.Duration
	removePoll time.Duration
}

// NewImporter creates an importer.
func NewImporter(engine Engine, deployments deployment.Repository, auditLogger audit.Logger) *Importer {
	return &Importer{
		engine:      engine,
		deployments: deployments,
		auditLogger: auditLogger,
		removeWait:  2 * time.Minute,
		removePoll:  200 * time.Millisecond,
	}
}

// Import queues the document's services into the target workspace in
// dependency order. Name collisions are skipped unless overwrite is set, in
// which case the existing deployment is removed first and the service is
// reinstalled from the document, so recipe, config and secrets all come from
// the snapshot. One failing service never aborts the rest.
func (i *Importer) Import(ctx context.Context, tenantID, workspaceID string, doc *Document, overwrite bool) (*Result, error) {
	if doc.Version != CurrentVersion {
		return nil, deployment.NewError(deployment.CodeValidation,
			fmt.Sprintf("unsupported snapshot version %d, this build reads version %d", doc.Version, CurrentVersion))
	}

	ordered, err := topoOrder(doc.Services)
	if err != nil {
		return nil, deployment.NewError(deployment.CodeValidation, err.Error())
	}

	result := &Result{}
	// Name to created/existing deployment id, for pinning dependency edges.
	idByName := make(map[string]string)

	record := func(svc Service, outcome, detail string) {
		result.Results = append(result.Results, ServiceResult{
			Name: svc.Name, Recipe: svc.Recipe, Outcome: outcome, Detail: detail,
		})
		switch outcome {
		case OutcomeQueued:
			result.Queued++
		case OutcomeSkipped:
			result.Skipped++
		case OutcomeError:
			result.Errors++
		}
	}

	for _, svc := range ordered {
		depIDs, missing := resolveEdges(svc.DependsOn, idByName)
		if missing != "" {
			record(svc, OutcomeError, fmt.Sprintf("dependency %q was not imported", missing))
			continue
		}

		replaced := false
		existing, err := i.deployments.GetByName(ctx, workspaceID, svc.Name)
		switch {
		case err == nil && existing != nil && !overwrite:
			idByName[svc.Name] = existing.ID
			record(svc, OutcomeSkipped, "a deployment with this name already exists")
			continue
		case err == nil && existing != nil && overwrite:
			// The snapshot wins: the colliding deployment may run a different
			// recipe, so it is removed outright and the install below rebuilds
			// it from the document, secrets regenerated.
			if _, rmErr := i.engine.Remove(ctx, tenantID, existing.ID); rmErr != nil {
				record(svc, OutcomeError, rmErr.Error())
				continue
			}
			if waitErr := i.waitRemoved(ctx, existing.ID); waitErr != nil {
				record(svc, OutcomeError, waitErr.Error())
				continue
			}
			replaced = true
		case err != nil && !errors.Is(err, deployment.ErrDeploymentNotFound):
			record(svc, OutcomeError, "failed to check for an existing deployment")
			continue
		}

		created, err := i.engine.Install(ctx, tenantID, deployment.InstallRequest{
			WorkspaceID: workspaceID,
			RecipeSlug:  svc.Recipe,
			Name:        svc.Name,
			Config:      svc.Config,
			DependsOn:   depIDs,
		})
		if err != nil {
			record(svc, OutcomeError, err.Error())
			continue
		}
		idByName[svc.Name] = created.ID
		if replaced {
			record(svc, OutcomeQueued, "replaced an existing deployment")
		} else {
			record(svc, OutcomeQueued, "")
		}
	}

	i.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSnapshotImported,
		TenantID: tenantID,
		Resource: workspaceID,
		Metadata: map[string]any{
			"queued": result.Queued, "skipped": result.Skipped, "errors": result.Errors,
		},
	})
	return result, nil
}

// waitRemoved blocks until the removal workflow settles the deployment as
// STOPPED (or the row is gone entirely). The reinstall cannot start earlier:
// the name is only free once the old row reads as removed.
func (i *Importer) waitRemoved(ctx context.Context, id string) error {
	deadline := time.NewTimer(i.removeWait)
	defer deadline.Stop()
	ticker := time.NewTicker(i.removePoll)
	defer ticker.Stop()

	for {
		d, err := i.deployments.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, deployment.ErrDeploymentNotFound) {
				return nil
			}
			return fmt.Errorf("failed to read deployment while waiting for removal: %w", err)
		}
		switch d.Status {
		case deployment.StatusStopped:
			return nil
		case deployment.StatusFailed:
			return fmt.Errorf("removal of the existing deployment failed: %s", d.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for the existing deployment to be removed")
		case <-ticker.C:
		}
	}
}

func resolveEdges(names []string, idByName map[string]string) ([]string, string) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := idByName[name]
		if !ok {
			return nil, name
		}
		ids = append(ids, id)
	}
	return ids, ""
}

// topoOrder sorts services so dependencies come before dependents. Edges to
// names outside the document are tolerated here and surface per-service
// during import.
func topoOrder(services []Service) ([]Service, error) {
	byName := make(map[string]Service, len(services))
	for _, svc := range services {
		if _, dup := byName[svc.Name]; dup {
			return nil, fmt.Errorf("snapshot contains two services named %q", svc.Name)
		}
		byName[svc.Name] = svc
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(services))
	ordered := make([]Service, 0, len(services))

	var visit func(name string) error
	visit = func(name string) error {
		svc, ok := byName[name]
		if !ok {
			return nil
		}
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("snapshot has a dependency cycle through %q", name)
		}
		state[name] = visiting
		for _, dep := range svc.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, svc)
		return nil
	}

	for _, svc := range services {
		if err := visit(svc.Name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
