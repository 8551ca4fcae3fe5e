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
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/cluster"
	"github.com/appforge/appforge/internal/observability/logger"
	"github.com/appforge/appforge/internal/observability/metrics"
	"github.com/appforge/appforge/internal/recipe"
	"github.com/appforge/appforge/internal/tenant"
)

// QuotaChecker answers admission checks against a namespace's limits.
type QuotaChecker interface {
	Check(ctx context.Context, namespace string, req cluster.ResourceBundle) (*cluster.Decision, error)
}

// NamespaceProvisioner ensures the workspace namespace exists with quota and
// isolation applied.
type NamespaceProvisioner interface {
	Provision(ctx context.Context, namespace string, labels map[string]string, quota cluster.ResourceBundle) error
}

// SecretVault generates and stores per-deployment secret material.
type SecretVault interface {
	Ensure(ctx context.Context, namespace, ref string, schema []recipe.SecretField, supplied map[string]string) (map[string]string, error)
	Delete(ctx context.Context, namespace, ref string) error
}

// PortForwarder keeps local access channels alive for running deployments.
// Nil in non-local topologies.
type PortForwarder interface {
	Ensure(deploymentID, namespace, service string, port int) (int, error)
	Drop(deploymentID string)
}

// InstallRequest carries a user's install command.
type InstallRequest struct {
	WorkspaceID string            `json:"workspace_id"`
	RecipeSlug  string            `json:"recipe"`
	Name        string            `json:"name,omitempty"`
	Config      map[string]any    `json:"config,omitempty"`
	Secrets     map[string]string `json:"secrets,omitempty"`
	// DependsOn carries pre-resolved dependency ids; used by snapshot import
	// to pin exported dependency edges onto the re-created deployments.
	DependsOn []string `json:"-"`
}

// Config tunes the engine's workflow timeouts.
type Config struct {
	ReadyTimeout          time.Duration
	DependencyWaitTimeout time.Duration
	DependencyPollEvery   time.Duration
}

// Service drives deployments through their lifecycle. Each install, upgrade
// and remove is an independent asynchronous workflow; workflows for different
// deployments run concurrently, while per deployment only one may be in
// flight at a time.
type Service struct {
	repo        Repository
	recipes     recipe.Repository
	workspaces  tenant.WorkspaceRepository
	quota       QuotaChecker
	provisioner NamespaceProvisioner
	vault       SecretVault
	releases    cluster.ReleaseManager
	forwards    PortForwarder
	auditLogger audit.Logger
	metrics     *metrics.EngineMetrics
	cfg         Config

	// Workflows run on baseCtx, not the request context, so an HTTP timeout
	// cannot abort a half-applied install. Close cancels them for shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService creates the deployment engine service.
func NewService(
	repo Repository,
	recipes recipe.Repository,
	workspaces tenant.WorkspaceRepository,
	quota QuotaChecker,
	provisioner NamespaceProvisioner,
	vault SecretVault,
	releases cluster.ReleaseManager,
	forwards PortForwarder,
	auditLogger audit.Logger,
	engineMetrics *metrics.EngineMetrics,
	cfg Config,
) *Service {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Minute
	}
	if cfg.DependencyWaitTimeout <= 0 {
		cfg.DependencyWaitTimeout = 10 * time.Minute
	}
	if cfg.DependencyPollEvery <= 0 {
		cfg.DependencyPollEvery = 2 * time.Second
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:        repo,
		recipes:     recipes,
		workspaces:  workspaces,
		quota:       quota,
		provisioner: provisioner,
		vault:       vault,
		releases:    releases,
		forwards:    forwards,
		auditLogger: auditLogger,
		metrics:     engineMetrics,
		cfg:         cfg,
		baseCtx:     baseCtx,
		cancel:      cancel,
		inflight:    make(map[string]struct{}),
	}
}

// Close cancels running workflows and waits for them to unwind. A workflow
// interrupted mid-DEPLOYING leaves the record as DEPLOYING for compensating
// recovery; it is never silently marked RUNNING.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Install validates the request, creates the PENDING record and kicks off the
// asynchronous install workflow. It returns immediately with the PENDING
// record; callers poll for the terminal state.
func (s *Service) Install(ctx context.Context, tenantID string, req InstallRequest) (*Deployment, error) {
	ws, err := s.workspace(ctx, tenantID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	rec, err := s.recipes.GetBySlug(ctx, req.RecipeSlug)
	if err != nil {
		if errors.Is(err, recipe.ErrRecipeNotFound) {
			return nil, NewError(CodeNotFound, fmt.Sprintf("recipe %q not found", req.RecipeSlug))
		}
		return nil, NewError(CodeInternal, "failed to load recipe")
	}

	resolved, fieldErrs := rec.ConfigSchema.Validate(req.Config)
	if fieldErrs != nil {
		return nil, NewValidationError(fieldErrs)
	}

	name := req.Name
	if name == "" {
		name = rec.Slug
	}
	if existing, err := s.repo.GetByName(ctx, ws.ID, name); err == nil && existing != nil {
		return nil, NewError(CodeConflict, fmt.Sprintf("a deployment named %q already exists in this workspace", name))
	} else if err != nil && !errors.Is(err, ErrDeploymentNotFound) {
		return nil, NewError(CodeInternal, "failed to check deployment name")
	}

	now := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, NewError(CodeInternal, "failed to generate deployment id")
	}
	d := &Deployment{
		ID:            id.String(),
		WorkspaceID:   ws.ID,
		Name:          name,
		RecipeSlug:    rec.Slug,
		RecipeVersion: rec.Version,
		Config:        resolved,
		SecretRef:     name + "-credentials",
		DependsOn:     req.DependsOn,
		Status:        StatusPending,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, NewError(CodeInternal, "failed to persist deployment")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDeployRequested,
		TenantID: tenantID,
		Resource: d.ID,
		Metadata: map[string]any{"recipe": rec.Slug, "name": d.Name, "workspace": ws.ID},
	})

	if !s.tryAcquire(d.ID) {
		// Freshly created id, cannot collide unless ids do.
		return nil, NewError(CodeInternal, "workflow already in flight for new deployment")
	}
	s.spawn(func(ctx context.Context) {
		defer s.release(d.ID)
		s.runInstall(ctx, d, rec, ws, req.Secrets, nil)
	}, "install")

	return d, nil
}

// Upgrade re-validates the config and re-applies the release, reusing the
// existing secret reference. Revision increments on success.
func (s *Service) Upgrade(ctx context.Context, tenantID, deploymentID string, newConfig map[string]any) (*Deployment, error) {
	return s.upgrade(ctx, tenantID, deploymentID, newConfig, false)
}

// Restart re-applies the deployment's current stored config. Used by data
// import flows that need a process restart to pick up new state.
func (s *Service) Restart(ctx context.Context, tenantID, deploymentID string) (*Deployment, error) {
	return s.upgrade(ctx, tenantID, deploymentID, nil, true)
}

func (s *Service) upgrade(ctx context.Context, tenantID, deploymentID string, newConfig map[string]any, restart bool) (*Deployment, error) {
	d, ws, err := s.deployment(ctx, tenantID, deploymentID)
	if err != nil {
		return nil, err
	}
	if d.InFlight() {
		return nil, NewError(CodeConflict, "another operation is in progress for this deployment")
	}

	rec, err := s.recipes.GetBySlug(ctx, d.RecipeSlug)
	if err != nil {
		return nil, NewError(CodeInternal, "failed to load recipe")
	}

	if restart {
		newConfig = d.Config
	}
	resolved, fieldErrs := rec.ConfigSchema.Validate(newConfig)
	if fieldErrs != nil {
		return nil, NewValidationError(fieldErrs)
	}

	if !s.tryAcquire(d.ID) {
		return nil, NewError(CodeConflict, "another operation is in progress for this deployment")
	}

	d.Config = resolved
	d.Status = StatusDeploying
	d.Error = ""
	if err := s.repo.Update(ctx, d); err != nil {
		s.release(d.ID)
		return nil, NewError(CodeInternal, "failed to persist deployment")
	}

	s.spawn(func(ctx context.Context) {
		defer s.release(d.ID)
		s.runUpgrade(ctx, d, rec, ws)
	}, "upgrade")

	return d, nil
}

// Remove rejects when other non-stopped deployments depend on this one, then
// transitions to DELETING and tears the release down asynchronously. The row
// settles as STOPPED, which every read treats as gone.
func (s *Service) Remove(ctx context.Context, tenantID, deploymentID string) (*Deployment, error) {
	d, ws, err := s.deployment(ctx, tenantID, deploymentID)
	if err != nil {
		return nil, err
	}

	dependents, err := s.repo.ListDependents(ctx, d.ID)
	if err != nil {
		return nil, NewError(CodeInternal, "failed to check dependents")
	}
	if len(dependents) > 0 {
		names := make([]string, len(dependents))
		for i, dep := range dependents {
			names[i] = dep.Name
		}
		return nil, NewError(CodeConflict, fmt.Sprintf(
			"deployment is still required by: %s", strings.Join(names, ", ")))
	}

	if !s.tryAcquire(d.ID) {
		return nil, NewError(CodeConflict, "another operation is in progress for this deployment")
	}

	d.Status = StatusDeleting
	if err := s.repo.Update(ctx, d); err != nil {
		s.release(d.ID)
		return nil, NewError(CodeInternal, "failed to persist deployment")
	}

	s.spawn(func(ctx context.Context) {
		defer s.release(d.ID)
		s.runRemove(ctx, d, ws, tenantID)
	}, "remove")

	return d, nil
}

// Get returns the deployment scoped to the caller's tenant. STOPPED rows are
// not found.
func (s *Service) Get(ctx context.Context, tenantID, deploymentID string) (*Deployment, error) {
	d, _, err := s.deployment(ctx, tenantID, deploymentID)
	return d, err
}

// List returns the workspace's non-stopped deployments.
func (s *Service) List(ctx context.Context, tenantID, workspaceID string) ([]*Deployment, error) {
	ws, err := s.workspace(ctx, tenantID, workspaceID)
	if err != nil {
		return nil, err
	}
	ds, err := s.repo.ListByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, NewError(CodeInternal, "failed to list deployments")
	}
	return ds, nil
}

// PurgeWorkspace hard-removes every deployment in the workspace as part of
// workspace deletion. Release teardown is best effort: namespace deletion
// cascades the real cleanup.
func (s *Service) PurgeWorkspace(ctx context.Context, workspaceID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	ds, err := s.repo.ListAllByWorkspace(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to list deployments for purge: %w", err)
	}
	for _, d := range ds {
		if s.forwards != nil {
			s.forwards.Drop(d.ID)
		}
		if err := s.releases.Uninstall(ctx, ws.Namespace, d.Name); err != nil {
			slog.WarnContext(ctx, "release teardown failed during purge, namespace cascade will clean up",
				logger.DeploymentID(d.ID), logger.Error(err))
		}
		if err := s.repo.Delete(ctx, d.ID); err != nil {
			return fmt.Errorf("failed to delete deployment %s: %w", d.ID, err)
		}
	}
	return nil
}

// --- workflow bodies ---

func (s *Service) runInstall(ctx context.Context, d *Deployment, rec *recipe.Recipe, ws *tenant.Workspace, supplied map[string]string, chain []string) {
	start := time.Now()
	failed := false
	defer func() {
		s.metrics.RecordWorkflow(ctx, "install", time.Since(start).Seconds(), failed)
	}()

	fail := func(code, message string, cause error) {
		failed = true
		s.fail(ctx, d, code, message, cause)
	}

	// Prerequisite deployments first; a dependent never reaches DEPLOYING
	// while a dependency is still settling.
	resolution, err := s.resolveDependencies(ctx, ws, rec, append(chain, rec.Slug))
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			fail(e.Code, e.Message, err)
		} else {
			fail(CodeInternal, "failed to resolve dependencies", err)
		}
		return
	}
	d.DependsOn = mergeIDs(d.DependsOn, resolution.ids())
	if err := s.repo.Update(ctx, d); err != nil {
		fail(CodeInternal, "failed to persist dependency edges", err)
		return
	}

	// Admission check covers this deployment plus the dependencies this
	// install just created.
	footprint, err := bundleFromResources(rec.Resources).Add(resolution.createdFootprint)
	if err != nil {
		fail(CodeInternal, "failed to compute resource footprint", err)
		return
	}
	decision, err := s.quota.Check(ctx, ws.Namespace, footprint)
	if err != nil {
		fail(CodeRemoteTransient, ClassifyRemote(err), err)
		return
	}
	if !decision.Available {
		fail(CodeQuotaExceeded, "insufficient quota: "+strings.Join(decision.Reasons, "; "), nil)
		return
	}

	// Namespace existence is load-bearing; quota/policy sub-steps inside
	// Provision fail soft and reconcile later.
	labels := map[string]string{"appforge.io/workspace": ws.Slug, "appforge.io/tenant": ws.TenantID}
	if err := s.provisioner.Provision(ctx, ws.Namespace, labels, bundleFromQuota(ws.Quota)); err != nil {
		fail(CodeRemoteTransient, ClassifyRemote(err), err)
		return
	}

	if _, err := s.vault.Ensure(ctx, ws.Namespace, d.SecretRef, rec.Secrets, supplied); err != nil {
		if errors.Is(err, cluster.ErrSecretValueRequired) {
			fail(CodeValidation, err.Error(), err)
		} else {
			fail(CodeRemoteTransient, ClassifyRemote(err), err)
		}
		return
	}
	if len(rec.Secrets) > 0 {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeSecretGenerated,
			TenantID: ws.TenantID,
			Resource: d.ID,
			Metadata: map[string]any{"secret_ref": d.SecretRef},
		})
	}

	if err := s.waitForDependencies(ctx, d); err != nil {
		var e *Error
		if errors.As(err, &e) {
			fail(e.Code, e.Message, err)
		} else {
			fail(CodeInternal, "failed waiting for dependencies", err)
		}
		return
	}

	rel, err := s.render(ctx, d, rec, ws)
	if err != nil {
		fail(CodeValidation, err.Error(), err)
		return
	}

	d.Status = StatusDeploying
	if err := s.repo.Update(ctx, d); err != nil {
		fail(CodeInternal, "failed to persist status", err)
		return
	}
	slog.InfoContext(ctx, "installing release",
		logger.Component("engine"), logger.DeploymentID(d.ID), logger.Recipe(rec.Slug), logger.Namespace(ws.Namespace))

	if err := s.releases.Install(ctx, rel); err != nil {
		fail(CodeRemoteTransient, ClassifyRemote(err), err)
		return
	}
	if err := s.releases.WaitReady(ctx, ws.Namespace, d.Name, s.cfg.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-flight: leave the record DEPLOYING for recovery.
			return
		}
		fail(CodeRemoteTransient, ClassifyRemote(err), err)
		return
	}

	d.Status = StatusRunning
	d.Error = ""
	if err := s.repo.Update(ctx, d); err != nil {
		fail(CodeInternal, "failed to persist status", err)
		return
	}

	s.ensureForward(ctx, d, ws, rec)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDeploySucceeded,
		TenantID: ws.TenantID,
		Resource: d.ID,
		Metadata: map[string]any{"recipe": rec.Slug, "name": d.Name},
	})
}

func (s *Service) runUpgrade(ctx context.Context, d *Deployment, rec *recipe.Recipe, ws *tenant.Workspace) {
	start := time.Now()
	failed := false
	defer func() {
		s.metrics.RecordWorkflow(ctx, "upgrade", time.Since(start).Seconds(), failed)
	}()

	rel, err := s.render(ctx, d, rec, ws)
	if err != nil {
		failed = true
		s.fail(ctx, d, CodeValidation, err.Error(), err)
		return
	}

	if err := s.releases.Install(ctx, rel); err != nil {
		failed = true
		s.fail(ctx, d, CodeRemoteTransient, ClassifyRemote(err), err)
		return
	}
	if err := s.releases.WaitReady(ctx, ws.Namespace, d.Name, s.cfg.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			return
		}
		failed = true
		s.fail(ctx, d, CodeRemoteTransient, ClassifyRemote(err), err)
		return
	}

	d.Status = StatusRunning
	d.Error = ""
	d.Revision++
	if err := s.repo.Update(ctx, d); err != nil {
		failed = true
		s.fail(ctx, d, CodeInternal, "failed to persist status", err)
		return
	}

	s.ensureForward(ctx, d, ws, rec)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDeployUpgraded,
		TenantID: ws.TenantID,
		Resource: d.ID,
		Metadata: map[string]any{"revision": d.Revision},
	})
}

func (s *Service) runRemove(ctx context.Context, d *Deployment, ws *tenant.Workspace, tenantID string) {
	start := time.Now()
	failed := false
	defer func() {
		s.metrics.RecordWorkflow(ctx, "remove", time.Since(start).Seconds(), failed)
	}()

	if s.forwards != nil {
		s.forwards.Drop(d.ID)
	}
	if err := s.releases.Uninstall(ctx, ws.Namespace, d.Name); err != nil {
		failed = true
		s.fail(ctx, d, CodeRemoteTransient, ClassifyRemote(err), err)
		return
	}
	if err := s.vault.Delete(ctx, ws.Namespace, d.SecretRef); err != nil {
		slog.WarnContext(ctx, "failed to delete deployment secret",
			logger.DeploymentID(d.ID), logger.Error(err))
	}

	d.Status = StatusStopped
	d.Error = ""
	if err := s.repo.Update(ctx, d); err != nil {
		failed = true
		s.fail(ctx, d, CodeInternal, "failed to persist status", err)
		return
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDeployRemoved,
		TenantID: tenantID,
		Resource: d.ID,
		Metadata: map[string]any{"name": d.Name},
	})
}

// --- helpers ---

func (s *Service) fail(ctx context.Context, d *Deployment, code, message string, cause error) {
	if ctx.Err() != nil {
		// Shutdown, not a workflow failure: the record keeps its in-flight
		// status so recovery can pick it up, it is never marked FAILED.
		return
	}
	if cause != nil {
		slog.ErrorContext(ctx, "deployment workflow failed",
			logger.Component("engine"), logger.DeploymentID(d.ID),
			logger.String("code", code), logger.Error(cause))
	} else {
		slog.ErrorContext(ctx, "deployment workflow failed",
			logger.Component("engine"), logger.DeploymentID(d.ID),
			logger.String("code", code), logger.String("reason", message))
	}

	d.Status = StatusFailed
	d.Error = message
	if err := s.repo.Update(ctx, d); err != nil {
		slog.ErrorContext(ctx, "failed to persist failed status",
			logger.DeploymentID(d.ID), logger.Error(err))
	}

	ws, err := s.workspaces.GetByID(ctx, d.WorkspaceID)
	tenantID := ""
	if err == nil {
		tenantID = ws.TenantID
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDeployFailed,
		TenantID: tenantID,
		Resource: d.ID,
		Metadata: map[string]any{"code": code, "reason": message},
	})
}

func (s *Service) render(ctx context.Context, d *Deployment, rec *recipe.Recipe, ws *tenant.Workspace) (cluster.Release, error) {
	deps := make(map[string]recipe.DependencyAddr)
	for _, depID := range d.DependsOn {
		dep, err := s.repo.GetByID(ctx, depID)
		if err != nil {
			continue // dropped dependency edges render without an address
		}
		depRec, err := s.recipes.GetBySlug(ctx, dep.RecipeSlug)
		if err != nil {
			continue
		}
		// Dependency services resolve by name within the shared namespace.
		deps[dep.Name] = recipe.DependencyAddr{Host: dep.Name, Port: depRec.Template.Port}
	}

	env, err := rec.Template.RenderEnv(d.Config, deps)
	if err != nil {
		return cluster.Release{}, err
	}
	image, err := rec.Template.RenderImage(d.Config)
	if err != nil {
		return cluster.Release{}, err
	}

	return cluster.Release{
		Name:       d.Name,
		Namespace:  ws.Namespace,
		Image:      image,
		Port:       rec.Template.Port,
		Env:        env,
		SecretRef:  d.SecretRef,
		Resources:  bundleFromResources(rec.Resources),
		HealthPath: rec.Template.HealthPath,
		Replicas:   rec.Template.Replicas,
		Labels:     map[string]string{"appforge.io/recipe": rec.Slug},
	}, nil
}

func (s *Service) ensureForward(ctx context.Context, d *Deployment, ws *tenant.Workspace, rec *recipe.Recipe) {
	if s.forwards == nil || rec.Template.Port <= 0 {
		return
	}
	localPort, err := s.forwards.Ensure(d.ID, ws.Namespace, d.Name, rec.Template.Port)
	if err != nil {
		slog.WarnContext(ctx, "failed to establish port-forward",
			logger.DeploymentID(d.ID), logger.Error(err))
		return
	}
	slog.InfoContext(ctx, "port-forward established",
		logger.DeploymentID(d.ID), logger.LocalPort(localPort))
}

// waitForDependencies blocks until every dependency is RUNNING, failing the
// parent if any dependency settles as FAILED.
func (s *Service) waitForDependencies(ctx context.Context, d *Deployment) error {
	if len(d.DependsOn) == 0 {
		return nil
	}
	deadline := time.NewTimer(s.cfg.DependencyWaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.DependencyPollEvery)
	defer ticker.Stop()

	for {
		allRunning := true
		for _, depID := range d.DependsOn {
			dep, err := s.repo.GetByID(ctx, depID)
			if err != nil {
				return NewError(CodeInternal, fmt.Sprintf("dependency %s disappeared", depID))
			}
			switch dep.Status {
			case StatusRunning:
			case StatusFailed:
				return NewError(CodeRemoteTransient, fmt.Sprintf("dependency %q failed to deploy", dep.Name))
			default:
				allRunning = false
			}
		}
		if allRunning {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return NewError(CodeRemoteTransient, "timed out waiting for dependencies to become ready")
		case <-ticker.C:
		}
	}
}

func (s *Service) workspace(ctx context.Context, tenantID, workspaceID string) (*tenant.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil || ws.TenantID != tenantID || ws.Status != tenant.WorkspaceActive {
		return nil, NewError(CodeNotFound, "workspace not found")
	}
	return ws, nil
}

func (s *Service) deployment(ctx context.Context, tenantID, deploymentID string) (*Deployment, *tenant.Workspace, error) {
	d, err := s.repo.GetByID(ctx, deploymentID)
	if err != nil || d.Status == StatusStopped {
		return nil, nil, NewError(CodeNotFound, "deployment not found")
	}
	ws, err := s.workspaces.GetByID(ctx, d.WorkspaceID)
	if err != nil || ws.TenantID != tenantID {
		return nil, nil, NewError(CodeNotFound, "deployment not found")
	}
	return d, ws, nil
}

func (s *Service) tryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *Service) spawn(fn func(ctx context.Context), operation string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("workflow panicked", logger.Operation(operation), slog.Any("panic", r))
			}
		}()
		fn(s.baseCtx)
	}()
}

func bundleFromResources(r recipe.Resources) cluster.ResourceBundle {
	return cluster.ResourceBundle{CPU: r.CPU, Memory: r.Memory, Storage: r.Storage}
}

func bundleFromQuota(q tenant.Quota) cluster.ResourceBundle {
	return cluster.ResourceBundle{CPU: q.CPU, Memory: q.Memory, Storage: q.Storage}
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range append(append([]string{}, a...), b...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
