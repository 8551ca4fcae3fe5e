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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/cluster"
	"github.com/appforge/appforge/internal/recipe"
	"github.com/appforge/appforge/internal/tenant"
)

// --- in-memory fakes ---

type memDeployments struct {
	mu   sync.Mutex
	rows map[string]*Deployment
}

func newMemDeployments() *memDeployments {
	return &memDeployments{rows: make(map[string]*Deployment)}
}

func (m *memDeployments) clone(d *Deployment) *Deployment {
	cp := *d
	cp.DependsOn = append([]string{}, d.DependsOn...)
	return &cp
}

func (m *memDeployments) Create(ctx context.Context, d *Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[d.ID] = m.clone(d)
	return nil
}

func (m *memDeployments) GetByID(ctx context.Context, id string) (*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	return m.clone(d), nil
}

func (m *memDeployments) GetByName(ctx context.Context, workspaceID, name string) (*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.WorkspaceID == workspaceID && d.Name == name && d.Status != StatusStopped {
			return m.clone(d), nil
		}
	}
	return nil, ErrDeploymentNotFound
}

func (m *memDeployments) Update(ctx context.Context, d *Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[d.ID]; !ok {
		return ErrDeploymentNotFound
	}
	m.rows[d.ID] = m.clone(d)
	return nil
}

func (m *memDeployments) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memDeployments) ListByWorkspace(ctx context.Context, workspaceID string) ([]*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Deployment
	for _, d := range m.rows {
		if d.WorkspaceID == workspaceID && d.Status != StatusStopped {
			out = append(out, m.clone(d))
		}
	}
	return out, nil
}

func (m *memDeployments) ListAllByWorkspace(ctx context.Context, workspaceID string) ([]*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Deployment
	for _, d := range m.rows {
		if d.WorkspaceID == workspaceID {
			out = append(out, m.clone(d))
		}
	}
	return out, nil
}

func (m *memDeployments) ListDependents(ctx context.Context, id string) ([]*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Deployment
	for _, d := range m.rows {
		if d.Status == StatusStopped {
			continue
		}
		for _, dep := range d.DependsOn {
			if dep == id {
				out = append(out, m.clone(d))
			}
		}
	}
	return out, nil
}

type memRecipes struct {
	recipes map[string]*recipe.Recipe
}

func (m *memRecipes) GetBySlug(ctx context.Context, slug string) (*recipe.Recipe, error) {
	r, ok := m.recipes[slug]
	if !ok {
		return nil, recipe.ErrRecipeNotFound
	}
	return r, nil
}

func (m *memRecipes) List(ctx context.Context) ([]*recipe.Recipe, error) {
	var out []*recipe.Recipe
	for _, r := range m.recipes {
		out = append(out, r)
	}
	return out, nil
}

type memWorkspaces struct {
	rows map[string]*tenant.Workspace
}

func (m *memWorkspaces) Create(ctx context.Context, ws *tenant.Workspace) error {
	m.rows[ws.ID] = ws
	return nil
}

func (m *memWorkspaces) GetByID(ctx context.Context, id string) (*tenant.Workspace, error) {
	ws, ok := m.rows[id]
	if !ok {
		return nil, tenant.ErrWorkspaceNotFound
	}
	return ws, nil
}

func (m *memWorkspaces) GetBySlug(ctx context.Context, tenantID, slug string) (*tenant.Workspace, error) {
	for _, ws := range m.rows {
		if ws.TenantID == tenantID && ws.Slug == slug {
			return ws, nil
		}
	}
	return nil, tenant.ErrWorkspaceNotFound
}

func (m *memWorkspaces) Update(ctx context.Context, ws *tenant.Workspace) error {
	m.rows[ws.ID] = ws
	return nil
}

func (m *memWorkspaces) ListByTenant(ctx context.Context, tenantID string) ([]*tenant.Workspace, error) {
	var out []*tenant.Workspace
	for _, ws := range m.rows {
		if ws.TenantID == tenantID {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (m *memWorkspaces) CountActive(ctx context.Context, tenantID string) (int, error) {
	n := 0
	for _, ws := range m.rows {
		if ws.TenantID == tenantID && ws.Status == tenant.WorkspaceActive {
			n++
		}
	}
	return n, nil
}

type fakeQuota struct {
	mu         sync.Mutex
	decision   *cluster.Decision
	err        error
	blockOnCtx bool // park in the check until the workflow context ends
	requests   []cluster.ResourceBundle
}

func (f *fakeQuota) Check(ctx context.Context, namespace string, req cluster.ResourceBundle) (*cluster.Decision, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	decision, err, block := f.decision, f.err, f.blockOnCtx
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if decision != nil {
		return decision, nil
	}
	return &cluster.Decision{Available: true}, nil
}

type fakeProvisioner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeProvisioner) Provision(ctx context.Context, namespace string, labels map[string]string, quota cluster.ResourceBundle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakeVault struct {
	mu      sync.Mutex
	ensured []string
	deleted []string
	err     error
}

func (f *fakeVault) Ensure(ctx context.Context, namespace, ref string, schema []recipe.SecretField, supplied map[string]string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.ensured = append(f.ensured, ref)
	return map[string]string{}, nil
}

func (f *fakeVault) Delete(ctx context.Context, namespace, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

type fakeReleases struct {
	mu          sync.Mutex
	installed   []cluster.Release
	uninstalled []string
	installErr  error
	readyErr    error
	readyGate   chan struct{} // when set, WaitReady blocks until closed
}

func (f *fakeReleases) Install(ctx context.Context, rel cluster.Release) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installErr != nil {
		return f.installErr
	}
	f.installed = append(f.installed, rel)
	return nil
}

func (f *fakeReleases) Uninstall(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalled = append(f.uninstalled, name)
	return nil
}

func (f *fakeReleases) WaitReady(ctx context.Context, namespace, name string, timeout time.Duration) error {
	f.mu.Lock()
	gate := f.readyGate
	err := f.readyErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type fakeForwarder struct {
	mu      sync.Mutex
	ensured []string
	dropped []string
}

func (f *fakeForwarder) Ensure(deploymentID, namespace, service string, port int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, deploymentID)
	return 30001, nil
}

func (f *fakeForwarder) Drop(deploymentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, deploymentID)
}

type nopAudit struct{}

func (nopAudit) Log(ctx context.Context, event audit.Event) {}

// --- fixture ---

type engineFixture struct {
	svc        *Service
	repo       *memDeployments
	recipes    *memRecipes
	workspaces *memWorkspaces
	quota      *fakeQuota
	vault      *fakeVault
	releases   *fakeReleases
	forwards   *fakeForwarder
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		repo: newMemDeployments(),
		recipes: &memRecipes{recipes: map[string]*recipe.Recipe{
			"postgres": {
				Slug: "postgres", Version: "16.4",
				ConfigSchema: recipe.Schema{Fields: []recipe.Field{
					{Name: "database", Type: recipe.TypeString, Default: "app"},
				}},
				Secrets:   []recipe.SecretField{{Key: "POSTGRES_PASSWORD", Generate: true}},
				Resources: recipe.Resources{CPU: "500m", Memory: "512Mi"},
				Template:  recipe.Template{Image: "postgres:16.4", Port: 5432, Replicas: 1},
			},
			"webapp": {
				Slug: "webapp", Version: "1.0.0",
				ConfigSchema: recipe.Schema{Fields: []recipe.Field{
					{Name: "image", Type: recipe.TypeString, Required: true},
				}},
				Dependencies: []recipe.Dependency{{Recipe: "postgres", Alias: "db"}},
				Resources:    recipe.Resources{CPU: "250m", Memory: "256Mi"},
				Template: recipe.Template{
					Image: "{{config.image}}", Port: 8080, Replicas: 1,
					Env: map[string]string{
						"DATABASE_HOST": "{{dep.db.host}}",
						"DATABASE_PORT": "{{dep.db.port}}",
					},
				},
			},
		}},
		workspaces: &memWorkspaces{rows: map[string]*tenant.Workspace{
			"ws-1": {
				ID: "ws-1", TenantID: "ten-1", Slug: "default",
				Namespace: "acme-default",
				Quota:     tenant.Quota{CPU: "4", Memory: "8Gi"},
				Status:    tenant.WorkspaceActive,
			},
		}},
		quota:    &fakeQuota{},
		vault:    &fakeVault{},
		releases: &fakeReleases{},
		forwards: &fakeForwarder{},
	}
	f.svc = NewService(
		f.repo, f.recipes, f.workspaces,
		f.quota, &fakeProvisioner{}, f.vault, f.releases, f.forwards,
		nopAudit{}, nil,
		Config{
			ReadyTimeout:          time.Second,
			DependencyWaitTimeout: 2 * time.Second,
			DependencyPollEvery:   5 * time.Millisecond,
		},
	)
	t.Cleanup(f.svc.Close)
	return f
}

func (f *engineFixture) waitStatus(t *testing.T, id, status string) *Deployment {
	t.Helper()
	var last *Deployment
	require.Eventually(t, func() bool {
		d, err := f.repo.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		last = d
		return d.Status == status
	}, 3*time.Second, 5*time.Millisecond, "deployment %s never reached %s (last: %+v)", id, status, last)
	return last
}

// waitIdle blocks until the deployment's workflow slot is free, so a
// follow-up command cannot race the goroutine that just settled the status.
func (f *engineFixture) waitIdle(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.svc.mu.Lock()
		defer f.svc.mu.Unlock()
		_, busy := f.svc.inflight[id]
		return !busy
	}, time.Second, 2*time.Millisecond)
}

// --- tests ---

func TestEngine_Install_HappyPath(t *testing.T) {
	f := newEngineFixture(t)

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1",
		RecipeSlug:  "postgres",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	assert.Equal(t, "postgres", d.Name)
	assert.Equal(t, "postgres-credentials", d.SecretRef)
	assert.Equal(t, 1, d.Revision)
	assert.Equal(t, "app", d.Config["database"])

	final := f.waitStatus(t, d.ID, StatusRunning)
	assert.Empty(t, final.Error)

	require.Len(t, f.releases.installed, 1)
	rel := f.releases.installed[0]
	assert.Equal(t, "acme-default", rel.Namespace)
	assert.Equal(t, "postgres:16.4", rel.Image)
	assert.Equal(t, "postgres-credentials", rel.SecretRef)
	assert.Equal(t, []string{"postgres-credentials"}, f.vault.ensured)

	// The forward is established after the status flip, so settle on it.
	require.Eventually(t, func() bool {
		f.forwards.mu.Lock()
		defer f.forwards.mu.Unlock()
		return len(f.forwards.ensured) == 1 && f.forwards.ensured[0] == d.ID
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_Install_DuplicateNameConflict(t *testing.T) {
	f := newEngineFixture(t)

	first, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)
	f.waitStatus(t, first.ID, StatusRunning)

	_, err = f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.Error(t, err)
	assert.Equal(t, CodeConflict, CodeOf(err))
}

func TestEngine_Install_UnknownRecipe(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "mystery",
	})
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestEngine_Install_InvalidConfig(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "webapp",
		Config: map[string]any{"bogus": true},
	})
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.NotEmpty(t, e.Fields)
}

func TestEngine_Install_ForeignTenantWorkspace(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.svc.Install(context.Background(), "ten-2", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestEngine_Install_QuotaExceededFails(t *testing.T) {
	f := newEngineFixture(t)
	f.quota.decision = &cluster.Decision{
		Available: false,
		Reasons:   []string{"cpu: need 500m, only 250m available"},
	}

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)

	final := f.waitStatus(t, d.ID, StatusFailed)
	assert.Contains(t, final.Error, "insufficient quota")
	assert.Contains(t, final.Error, "cpu: need 500m, only 250m available")
	// Nothing was applied to the cluster.
	assert.Empty(t, f.releases.installed)
}

func TestEngine_Install_RemoteErrorsAreClassified(t *testing.T) {
	f := newEngineFixture(t)
	f.releases.installErr = errors.New("dial tcp 10.0.0.1:443: connection refused")

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)

	final := f.waitStatus(t, d.ID, StatusFailed)
	// The stored error is a plain-language category, never raw remote text.
	assert.NotContains(t, final.Error, "dial tcp")
	assert.Contains(t, final.Error, "network error")
}

func TestEngine_Close_LeavesSettlingRecordIntact(t *testing.T) {
	f := newEngineFixture(t)
	f.quota.blockOnCtx = true

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)

	// The workflow is parked inside the admission check; shutting down cancels
	// it there. The record must keep its in-flight status, never FAILED.
	f.svc.Close()

	final, err := f.repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, final.Status)
	assert.Empty(t, final.Error)
}

func TestEngine_Install_ResolvesDependencies(t *testing.T) {
	f := newEngineFixture(t)

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "webapp",
		Config: map[string]any{"image": "ghcr.io/acme/app:v1"},
	})
	require.NoError(t, err)

	final := f.waitStatus(t, d.ID, StatusRunning)
	require.Len(t, final.DependsOn, 1)

	dep, err := f.repo.GetByName(context.Background(), "ws-1", "db")
	require.NoError(t, err)
	assert.Equal(t, "postgres", dep.RecipeSlug)
	assert.Equal(t, StatusRunning, dep.Status)
	assert.Equal(t, dep.ID, final.DependsOn[0])

	// Dependency addresses were rendered into the parent's env.
	var parentRel cluster.Release
	for _, rel := range f.releases.installed {
		if rel.Name == "webapp" {
			parentRel = rel
		}
	}
	assert.Equal(t, "db", parentRel.Env["DATABASE_HOST"])
	assert.Equal(t, "5432", parentRel.Env["DATABASE_PORT"])
}

func TestEngine_Install_DependentNeverDeploysBeforeDependency(t *testing.T) {
	f := newEngineFixture(t)
	gate := make(chan struct{})
	f.releases.readyGate = gate

	app, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "webapp",
		Config: map[string]any{"image": "ghcr.io/acme/app:v1"},
	})
	require.NoError(t, err)

	// The dependency reaches DEPLOYING and parks in readiness polling.
	require.Eventually(t, func() bool {
		dep, err := f.repo.GetByName(context.Background(), "ws-1", "db")
		return err == nil && dep.Status == StatusDeploying
	}, 3*time.Second, 5*time.Millisecond)

	// While it settles, the dependent never leaves PENDING.
	assert.Never(t, func() bool {
		d, err := f.repo.GetByID(context.Background(), app.ID)
		return err == nil && d.Status != StatusPending
	}, 300*time.Millisecond, 10*time.Millisecond)

	close(gate)
	f.waitStatus(t, app.ID, StatusRunning)
}

func TestEngine_Install_ReusesExistingDependency(t *testing.T) {
	f := newEngineFixture(t)

	db, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres", Name: "db",
	})
	require.NoError(t, err)
	f.waitStatus(t, db.ID, StatusRunning)

	app, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "webapp",
		Config: map[string]any{"image": "ghcr.io/acme/app:v1"},
	})
	require.NoError(t, err)
	final := f.waitStatus(t, app.ID, StatusRunning)

	assert.Equal(t, []string{db.ID}, final.DependsOn)
	// One postgres release and one webapp release, no duplicate dependency.
	assert.Len(t, f.releases.installed, 2)
}

func TestEngine_Install_DependencyCycleFails(t *testing.T) {
	f := newEngineFixture(t)
	f.recipes.recipes["a"] = &recipe.Recipe{
		Slug:         "a",
		Dependencies: []recipe.Dependency{{Recipe: "b"}},
		Template:     recipe.Template{Image: "a:1", Port: 1, Replicas: 1},
	}
	f.recipes.recipes["b"] = &recipe.Recipe{
		Slug:         "b",
		Dependencies: []recipe.Dependency{{Recipe: "a"}},
		Template:     recipe.Template{Image: "b:1", Port: 1, Replicas: 1},
	}

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "a",
	})
	require.NoError(t, err)

	// Somewhere down the chain the cycle is detected and the failure
	// propagates to the root via the failed dependency.
	final := f.waitStatus(t, d.ID, StatusFailed)
	assert.NotEmpty(t, final.Error)
}

func TestEngine_Upgrade_IncrementsRevision(t *testing.T) {
	f := newEngineFixture(t)

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)
	f.waitStatus(t, d.ID, StatusRunning)
	f.waitIdle(t, d.ID)

	up, err := f.svc.Upgrade(context.Background(), "ten-1", d.ID, map[string]any{"database": "analytics"})
	require.NoError(t, err)
	assert.Equal(t, StatusDeploying, up.Status)

	final := f.waitStatus(t, d.ID, StatusRunning)
	assert.Equal(t, 2, final.Revision)
	assert.Equal(t, "analytics", final.Config["database"])
	// The secret reference survives upgrades; credentials are not rotated.
	assert.Equal(t, "postgres-credentials", final.SecretRef)
}

func TestEngine_Upgrade_ConflictWhileInFlight(t *testing.T) {
	f := newEngineFixture(t)
	gate := make(chan struct{})
	f.releases.readyGate = gate

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)
	f.waitStatus(t, d.ID, StatusDeploying)

	_, err = f.svc.Upgrade(context.Background(), "ten-1", d.ID, nil)
	require.Error(t, err)
	assert.Equal(t, CodeConflict, CodeOf(err))

	close(gate)
	f.waitStatus(t, d.ID, StatusRunning)
}

func TestEngine_Restart_KeepsStoredConfig(t *testing.T) {
	f := newEngineFixture(t)

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
		Config: map[string]any{"database": "orders"},
	})
	require.NoError(t, err)
	f.waitStatus(t, d.ID, StatusRunning)
	f.waitIdle(t, d.ID)

	_, err = f.svc.Restart(context.Background(), "ten-1", d.ID)
	require.NoError(t, err)

	final := f.waitStatus(t, d.ID, StatusRunning)
	assert.Equal(t, 2, final.Revision)
	assert.Equal(t, "orders", final.Config["database"])
}

func TestEngine_Remove_SoftRemovesAndTearsDown(t *testing.T) {
	f := newEngineFixture(t)

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)
	f.waitStatus(t, d.ID, StatusRunning)
	f.waitIdle(t, d.ID)

	removed, err := f.svc.Remove(context.Background(), "ten-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleting, removed.Status)

	f.waitStatus(t, d.ID, StatusStopped)
	assert.Equal(t, []string{"postgres"}, f.releases.uninstalled)
	assert.Equal(t, []string{"postgres-credentials"}, f.vault.deleted)
	assert.Equal(t, []string{d.ID}, f.forwards.dropped)

	// A stopped deployment reads as gone.
	_, err = f.svc.Get(context.Background(), "ten-1", d.ID)
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	// And its name is free for reuse.
	again, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)
	f.waitStatus(t, again.ID, StatusRunning)
}

func TestEngine_Remove_RejectedWhileDependentsExist(t *testing.T) {
	f := newEngineFixture(t)

	app, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "webapp",
		Config: map[string]any{"image": "ghcr.io/acme/app:v1"},
	})
	require.NoError(t, err)
	f.waitStatus(t, app.ID, StatusRunning)

	db, err := f.repo.GetByName(context.Background(), "ws-1", "db")
	require.NoError(t, err)
	f.waitIdle(t, db.ID)

	_, err = f.svc.Remove(context.Background(), "ten-1", db.ID)
	require.Error(t, err)
	assert.Equal(t, CodeConflict, CodeOf(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Message, "webapp")

	// Removing the dependent first unblocks the dependency.
	f.waitIdle(t, app.ID)
	_, err = f.svc.Remove(context.Background(), "ten-1", app.ID)
	require.NoError(t, err)
	f.waitStatus(t, app.ID, StatusStopped)

	_, err = f.svc.Remove(context.Background(), "ten-1", db.ID)
	require.NoError(t, err)
	f.waitStatus(t, db.ID, StatusStopped)
}

func TestEngine_List_ExcludesStopped(t *testing.T) {
	f := newEngineFixture(t)

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)
	f.waitStatus(t, d.ID, StatusRunning)

	ds, err := f.svc.List(context.Background(), "ten-1", "ws-1")
	require.NoError(t, err)
	assert.Len(t, ds, 1)

	f.waitIdle(t, d.ID)
	_, err = f.svc.Remove(context.Background(), "ten-1", d.ID)
	require.NoError(t, err)
	f.waitStatus(t, d.ID, StatusStopped)

	ds, err = f.svc.List(context.Background(), "ten-1", "ws-1")
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestEngine_PurgeWorkspace(t *testing.T) {
	f := newEngineFixture(t)

	d, err := f.svc.Install(context.Background(), "ten-1", InstallRequest{
		WorkspaceID: "ws-1", RecipeSlug: "postgres",
	})
	require.NoError(t, err)
	f.waitStatus(t, d.ID, StatusRunning)

	require.NoError(t, f.svc.PurgeWorkspace(context.Background(), "ws-1"))

	all, err := f.repo.ListAllByWorkspace(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Contains(t, f.releases.uninstalled, "postgres")
}
