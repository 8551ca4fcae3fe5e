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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/deployment"
	"github.com/appforge/appforge/internal/recipe"
	"github.com/appforge/appforge/internal/tenant"
)

type stubDeployments struct {
	rows []*deployment.Deployment
}

func (s *stubDeployments) Create(ctx context.Context, d *deployment.Deployment) error { return nil }

func (s *stubDeployments) GetByID(ctx context.Context, id string) (*deployment.Deployment, error) {
	for _, d := range s.rows {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, deployment.ErrDeploymentNotFound
}

func (s *stubDeployments) GetByName(ctx context.Context, workspaceID, name string) (*deployment.Deployment, error) {
	for _, d := range s.rows {
		if d.WorkspaceID == workspaceID && d.Name == name && d.Status != deployment.StatusStopped {
			return d, nil
		}
	}
	return nil, deployment.ErrDeploymentNotFound
}

func (s *stubDeployments) Update(ctx context.Context, d *deployment.Deployment) error { return nil }
func (s *stubDeployments) Delete(ctx context.Context, id string) error                { return nil }

func (s *stubDeployments) ListByWorkspace(ctx context.Context, workspaceID string) ([]*deployment.Deployment, error) {
	var out []*deployment.Deployment
	for _, d := range s.rows {
		if d.WorkspaceID == workspaceID && d.Status != deployment.StatusStopped {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubDeployments) ListAllByWorkspace(ctx context.Context, workspaceID string) ([]*deployment.Deployment, error) {
	return s.ListByWorkspace(ctx, workspaceID)
}

func (s *stubDeployments) ListDependents(ctx context.Context, id string) ([]*deployment.Deployment, error) {
	return nil, nil
}

type stubWorkspaces struct {
	ws *tenant.Workspace
}

func (s *stubWorkspaces) Create(ctx context.Context, ws *tenant.Workspace) error { return nil }

func (s *stubWorkspaces) GetByID(ctx context.Context, id string) (*tenant.Workspace, error) {
	if s.ws != nil && s.ws.ID == id {
		return s.ws, nil
	}
	return nil, tenant.ErrWorkspaceNotFound
}

func (s *stubWorkspaces) GetBySlug(ctx context.Context, tenantID, slug string) (*tenant.Workspace, error) {
	return nil, tenant.ErrWorkspaceNotFound
}

func (s *stubWorkspaces) Update(ctx context.Context, ws *tenant.Workspace) error { return nil }

func (s *stubWorkspaces) ListByTenant(ctx context.Context, tenantID string) ([]*tenant.Workspace, error) {
	return nil, nil
}

func (s *stubWorkspaces) CountActive(ctx context.Context, tenantID string) (int, error) {
	return 0, nil
}

type stubRecipes struct {
	recipes map[string]*recipe.Recipe
}

func (s *stubRecipes) GetBySlug(ctx context.Context, slug string) (*recipe.Recipe, error) {
	r, ok := s.recipes[slug]
	if !ok {
		return nil, recipe.ErrRecipeNotFound
	}
	return r, nil
}

func (s *stubRecipes) List(ctx context.Context) ([]*recipe.Recipe, error) { return nil, nil }

type fakeEngine struct {
	repo     *stubDeployments
	installs []deployment.InstallRequest
	removed  []string
	failOn   string // service name that Install rejects
	nextID   int
}

func (f *fakeEngine) Install(ctx context.Context, tenantID string, req deployment.InstallRequest) (*deployment.Deployment, error) {
	if req.Name == f.failOn {
		return nil, deployment.NewError(deployment.CodeQuotaExceeded, "insufficient quota")
	}
	f.installs = append(f.installs, req)
	f.nextID++
	return &deployment.Deployment{
		ID:          fmt.Sprintf("dep-%d", f.nextID),
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		RecipeSlug:  req.RecipeSlug,
		Status:      deployment.StatusPending,
	}, nil
}

func (f *fakeEngine) Remove(ctx context.Context, tenantID, deploymentID string) (*deployment.Deployment, error) {
	f.removed = append(f.removed, deploymentID)
	if f.repo != nil {
		for _, d := range f.repo.rows {
			if d.ID == deploymentID {
				d.Status = deployment.StatusStopped
				return d, nil
			}
		}
	}
	return nil, deployment.NewError(deployment.CodeNotFound, "deployment not found")
}

type nopAudit struct{}

func (nopAudit) Log(ctx context.Context, event audit.Event) {}

func testWorkspace() *tenant.Workspace {
	return &tenant.Workspace{
		ID: "ws-1", TenantID: "ten-1", Slug: "staging", Name: "Staging",
		Namespace: "acme-staging", Status: tenant.WorkspaceActive,
	}
}

func TestExporter_TranslatesDependencyIDsToNames(t *testing.T) {
	repo := &stubDeployments{rows: []*deployment.Deployment{
		{ID: "id-db", WorkspaceID: "ws-1", Name: "db", RecipeSlug: "postgres",
			Config: map[string]any{"database": "app"}, Status: deployment.StatusRunning},
		{ID: "id-app", WorkspaceID: "ws-1", Name: "webapp", RecipeSlug: "webapp",
			Config:    map[string]any{"image": "ghcr.io/acme/app:v1"},
			DependsOn: []string{"id-db"}, Status: deployment.StatusRunning},
	}}
	e := NewExporter(repo, &stubWorkspaces{ws: testWorkspace()}, &stubRecipes{}, nopAudit{})

	doc, err := e.Export(context.Background(), "ten-1", "ws-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Equal(t, "user-1", doc.ExportedBy)
	assert.Equal(t, "staging", doc.Workspace.Slug)
	require.Len(t, doc.Services, 2)

	byName := make(map[string]Service)
	for _, svc := range doc.Services {
		byName[svc.Name] = svc
	}
	assert.Equal(t, []string{"db"}, byName["webapp"].DependsOn)
	assert.Empty(t, byName["db"].DependsOn)
}

func TestExporter_DropsEdgesOutsideExportSet(t *testing.T) {
	repo := &stubDeployments{rows: []*deployment.Deployment{
		{ID: "id-app", WorkspaceID: "ws-1", Name: "webapp", RecipeSlug: "webapp",
			DependsOn: []string{"id-vanished"}, Status: deployment.StatusRunning},
	}}
	e := NewExporter(repo, &stubWorkspaces{ws: testWorkspace()}, &stubRecipes{}, nopAudit{})

	doc, err := e.Export(context.Background(), "ten-1", "ws-1", "user-1")
	require.NoError(t, err)
	require.Len(t, doc.Services, 1)
	assert.Empty(t, doc.Services[0].DependsOn)
}

func TestExporter_ForeignTenant(t *testing.T) {
	e := NewExporter(&stubDeployments{}, &stubWorkspaces{ws: testWorkspace()}, &stubRecipes{}, nopAudit{})

	_, err := e.Export(context.Background(), "ten-2", "ws-1", "user-1")
	require.Error(t, err)
	assert.Equal(t, deployment.CodeNotFound, deployment.CodeOf(err))
}

func TestImporter_QueuesInDependencyOrder(t *testing.T) {
	engine := &fakeEngine{}
	imp := NewImporter(engine, &stubDeployments{}, nopAudit{})

	doc := &Document{
		Version: CurrentVersion,
		Services: []Service{
			// Listed dependent-first on purpose; the importer reorders.
			{Recipe: "webapp", Name: "webapp", DependsOn: []string{"db", "cache"}},
			{Recipe: "redis", Name: "cache"},
			{Recipe: "postgres", Name: "db"},
		},
	}

	res, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Queued)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Errors)

	require.Len(t, engine.installs, 3)
	assert.Equal(t, "webapp", engine.installs[2].Name)
	// The dependent carries the ids its dependencies were created with.
	assert.Len(t, engine.installs[2].DependsOn, 2)
}

func TestImporter_VersionMismatch(t *testing.T) {
	imp := NewImporter(&fakeEngine{}, &stubDeployments{}, nopAudit{})

	_, err := imp.Import(context.Background(), "ten-1", "ws-1", &Document{Version: 99}, false)
	require.Error(t, err)
	assert.Equal(t, deployment.CodeValidation, deployment.CodeOf(err))
}

func TestImporter_CycleRejected(t *testing.T) {
	imp := NewImporter(&fakeEngine{}, &stubDeployments{}, nopAudit{})

	doc := &Document{
		Version: CurrentVersion,
		Services: []Service{
			{Recipe: "a", Name: "a", DependsOn: []string{"b"}},
			{Recipe: "b", Name: "b", DependsOn: []string{"a"}},
		},
	}
	_, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, false)
	require.Error(t, err)
	assert.Equal(t, deployment.CodeValidation, deployment.CodeOf(err))
	assert.Contains(t, err.Error(), "cycle")
}

func TestImporter_DuplicateNamesRejected(t *testing.T) {
	imp := NewImporter(&fakeEngine{}, &stubDeployments{}, nopAudit{})

	doc := &Document{
		Version: CurrentVersion,
		Services: []Service{
			{Recipe: "postgres", Name: "db"},
			{Recipe: "redis", Name: "db"},
		},
	}
	_, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, false)
	require.Error(t, err)
	assert.Equal(t, deployment.CodeValidation, deployment.CodeOf(err))
}

func TestImporter_CollisionSkippedWithoutOverwrite(t *testing.T) {
	engine := &fakeEngine{}
	repo := &stubDeployments{rows: []*deployment.Deployment{
		{ID: "id-db", WorkspaceID: "ws-1", Name: "db", RecipeSlug: "postgres", Status: deployment.StatusRunning},
	}}
	imp := NewImporter(engine, repo, nopAudit{})

	doc := &Document{
		Version: CurrentVersion,
		Services: []Service{
			{Recipe: "postgres", Name: "db"},
			{Recipe: "webapp", Name: "webapp", DependsOn: []string{"db"}},
		},
	}
	res, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Errors)

	// The dependent still resolves its edge to the existing deployment.
	require.Len(t, engine.installs, 1)
	assert.Equal(t, []string{"id-db"}, engine.installs[0].DependsOn)
}

func TestImporter_CollisionReplacedWithOverwrite(t *testing.T) {
	// The colliding deployment runs a different recipe than the snapshot
	// service; overwrite must remove it and reinstall from the document, not
	// patch the live deployment in place.
	repo := &stubDeployments{rows: []*deployment.Deployment{
		{ID: "id-db", WorkspaceID: "ws-1", Name: "db", RecipeSlug: "redis", Status: deployment.StatusRunning},
	}}
	engine := &fakeEngine{repo: repo}
	imp := NewImporter(engine, repo, nopAudit{})

	doc := &Document{
		Version:  CurrentVersion,
		Services: []Service{{Recipe: "postgres", Name: "db", Config: map[string]any{"database": "restored"}}},
	}
	res, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Zero(t, res.Errors)

	assert.Equal(t, []string{"id-db"}, engine.removed)
	require.Len(t, engine.installs, 1)
	assert.Equal(t, "postgres", engine.installs[0].RecipeSlug)
	assert.Equal(t, "db", engine.installs[0].Name)
	assert.Equal(t, map[string]any{"database": "restored"}, engine.installs[0].Config)
	assert.Equal(t, OutcomeQueued, res.Results[0].Outcome)
	assert.Contains(t, res.Results[0].Detail, "replaced")
}

func TestImporter_OverwriteRemovalConflictIsPerService(t *testing.T) {
	// Remove fails (for example the collision still has dependents); the
	// service reports an error outcome and the rest of the import continues.
	repo := &stubDeployments{rows: []*deployment.Deployment{
		{ID: "id-db", WorkspaceID: "ws-1", Name: "db", RecipeSlug: "postgres", Status: deployment.StatusRunning},
	}}
	engine := &fakeEngine{} // no repo: Remove reports the deployment as unremovable
	imp := NewImporter(engine, repo, nopAudit{})

	doc := &Document{
		Version: CurrentVersion,
		Services: []Service{
			{Recipe: "postgres", Name: "db"},
			{Recipe: "redis", Name: "cache"},
		},
	}
	res, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Queued)
	require.Len(t, engine.installs, 1)
	assert.Equal(t, "cache", engine.installs[0].Name)
}

func TestImporter_OneFailureDoesNotAbortTheRest(t *testing.T) {
	engine := &fakeEngine{failOn: "cache"}
	imp := NewImporter(engine, &stubDeployments{}, nopAudit{})

	doc := &Document{
		Version: CurrentVersion,
		Services: []Service{
			{Recipe: "postgres", Name: "db"},
			{Recipe: "redis", Name: "cache"},
			{Recipe: "webapp", Name: "webapp", DependsOn: []string{"db"}},
		},
	}
	res, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, 1, res.Errors)

	var cache ServiceResult
	for _, r := range res.Results {
		if r.Name == "cache" {
			cache = r
		}
	}
	assert.Equal(t, OutcomeError, cache.Outcome)
	assert.Contains(t, cache.Detail, "insufficient quota")
}

func TestImporter_MissingDependencySurfacesPerService(t *testing.T) {
	imp := NewImporter(&fakeEngine{}, &stubDeployments{}, nopAudit{})

	doc := &Document{
		Version:  CurrentVersion,
		Services: []Service{{Recipe: "webapp", Name: "webapp", DependsOn: []string{"db"}}},
	}
	res, err := imp.Import(context.Background(), "ten-1", "ws-1", doc, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Contains(t, res.Results[0].Detail, `dependency "db" was not imported`)
}
