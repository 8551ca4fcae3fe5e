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

package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appforge/appforge/internal/cluster"
	"github.com/appforge/appforge/internal/observability/logger"
	"github.com/appforge/appforge/internal/recipe"
	"github.com/appforge/appforge/internal/tenant"
)

// resolution is the outcome of resolving a recipe's dependency list: the ids
// the parent must record as edges, and the combined resource footprint of the
// deployments this resolution created (reused deployments already hold their
// resources, so they do not count against the parent's admission check).
type resolution struct {
	reused           []*Deployment
	created          []*Deployment
	createdFootprint cluster.ResourceBundle
}

func (r *resolution) ids() []string {
	ids := make([]string, 0, len(r.reused)+len(r.created))
	for _, d := range r.reused {
		ids = append(ids, d.ID)
	}
	for _, d := range r.created {
		ids = append(ids, d.ID)
	}
	return ids
}

// resolveDependencies reuses an existing deployment per dependency alias when
// one is live in the workspace, and otherwise creates and launches one. The
// chain carries the recipe slugs already being installed on this path; a
// dependency whose recipe appears in it is a cycle and is rejected.
func (s *Service) resolveDependencies(ctx context.Context, ws *tenant.Workspace, rec *recipe.Recipe, chain []string) (*resolution, error) {
	res := &resolution{}
	for _, dep := range rec.Dependencies {
		for _, ancestor := range chain {
			if ancestor == dep.Recipe {
				return nil, NewError(CodeValidation, fmt.Sprintf(
					"recipe %q depends on %q, which is already being installed above it", rec.Slug, dep.Recipe))
			}
		}

		alias := dep.Alias
		if alias == "" {
			alias = dep.Recipe
		}

		existing, err := s.repo.GetByName(ctx, ws.ID, alias)
		if err == nil && existing != nil {
			if existing.RecipeSlug != dep.Recipe {
				return nil, NewError(CodeConflict, fmt.Sprintf(
					"deployment %q exists but runs recipe %q, not the required %q", alias, existing.RecipeSlug, dep.Recipe))
			}
			if existing.Status == StatusFailed {
				return nil, NewError(CodeConflict, fmt.Sprintf(
					"dependency %q exists but is in a failed state; remove or repair it first", alias))
			}
			res.reused = append(res.reused, existing)
			continue
		}
		if err != nil && !errors.Is(err, ErrDeploymentNotFound) {
			return nil, NewError(CodeInternal, "failed to look up dependency deployment")
		}

		child, childRec, err := s.createDependency(ctx, ws, dep, alias)
		if err != nil {
			return nil, err
		}
		res.created = append(res.created, child)
		res.createdFootprint, err = res.createdFootprint.Add(bundleFromResources(childRec.Resources))
		if err != nil {
			return nil, NewError(CodeInternal, "failed to compute dependency footprint")
		}

		if !s.tryAcquire(child.ID) {
			return nil, NewError(CodeInternal, "workflow already in flight for new dependency")
		}
		childChain := append(append([]string{}, chain...), childRec.Slug)
		s.spawn(func(ctx context.Context) {
			defer s.release(child.ID)
			s.runInstall(ctx, child, childRec, ws, nil, childChain)
		}, "install")

		slog.InfoContext(ctx, "dependency deployment created",
			logger.Component("resolver"), logger.DeploymentName(alias),
			logger.Recipe(dep.Recipe), logger.WorkspaceID(ws.ID))
	}
	return res, nil
}

func (s *Service) createDependency(ctx context.Context, ws *tenant.Workspace, dep recipe.Dependency, alias string) (*Deployment, *recipe.Recipe, error) {
	childRec, err := s.recipes.GetBySlug(ctx, dep.Recipe)
	if err != nil {
		if errors.Is(err, recipe.ErrRecipeNotFound) {
			return nil, nil, NewError(CodeNotFound, fmt.Sprintf("dependency recipe %q not found", dep.Recipe))
		}
		return nil, nil, NewError(CodeInternal, "failed to load dependency recipe")
	}

	resolved, fieldErrs := childRec.ConfigSchema.Validate(dep.Config)
	if fieldErrs != nil {
		return nil, nil, NewError(CodeValidation, fmt.Sprintf(
			"dependency %q carries invalid pinned config", dep.Recipe))
	}

	now := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, NewError(CodeInternal, "failed to generate deployment id")
	}
	child := &Deployment{
		ID:            id.String(),
		WorkspaceID:   ws.ID,
		Name:          alias,
		RecipeSlug:    childRec.Slug,
		RecipeVersion: childRec.Version,
		Config:        resolved,
		SecretRef:     alias + "-credentials",
		Status:        StatusPending,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, child); err != nil {
		return nil, nil, NewError(CodeInternal, "failed to persist dependency deployment")
	}
	return child, childRec, nil
}
