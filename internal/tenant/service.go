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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/cluster"
	"github.com/appforge/appforge/internal/observability/logger"
)

// Provisioner manages the cluster namespace behind a workspace.
type Provisioner interface {
	Provision(ctx context.Context, namespace string, labels map[string]string, quota cluster.ResourceBundle) error
	Deprovision(ctx context.Context, namespace string) error
}

// DeploymentPurger hard-removes every deployment in a workspace. Implemented
// by the deployment engine; declared here to keep the dependency pointing one
// way.
type DeploymentPurger interface {
	PurgeWorkspace(ctx context.Context, workspaceID string) error
}

// Service manages tenants and their workspaces.
type Service struct {
	repo         Repository
	workspaces   WorkspaceRepository
	provisioner  Provisioner
	purger       DeploymentPurger
	auditLogger  audit.Logger
	defaultQuota Quota
}

// NewService creates the tenant service.
func NewService(repo Repository, workspaces WorkspaceRepository, provisioner Provisioner, purger DeploymentPurger, auditLogger audit.Logger, defaultQuota Quota) *Service {
	return &Service{
		repo:         repo,
		workspaces:   workspaces,
		provisioner:  provisioner,
		purger:       purger,
		auditLogger:  auditLogger,
		defaultQuota: defaultQuota,
	}
}

// CreateTenant registers a tenant together with its default workspace. The
// workspace namespace is provisioned in the background; deployments into a
// namespace that is still settling re-apply it on install.
func (s *Service) CreateTenant(ctx context.Context, name, slug string) (*Tenant, error) {
	if slug == "" {
		slug = Slugify(name)
	}
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if existing, err := s.repo.GetBySlug(ctx, slug); err == nil && existing != nil {
		return nil, ErrSlugTaken
	} else if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check tenant slug: %w", err)
	}

	now := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tenant id: %w", err)
	}
	t := &Tenant{
		ID:        id.String(),
		Slug:      slug,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	ws, err := s.createWorkspace(ctx, t, "Default", "default")
	if err != nil {
		return nil, err
	}
	t.DefaultWorkspaceID = ws.ID
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to set default workspace: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		Resource: t.ID,
		Metadata: map[string]any{"slug": t.Slug},
	})
	return t, nil
}

// GetTenant returns a tenant by id.
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil || t.Status != StatusActive {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// CreateWorkspace adds a workspace to the tenant.
func (s *Service) CreateWorkspace(ctx context.Context, tenantID, name, slug string) (*Workspace, error) {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if slug == "" {
		slug = Slugify(name)
	}
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	return s.createWorkspace(ctx, t, name, slug)
}

func (s *Service) createWorkspace(ctx context.Context, t *Tenant, name, slug string) (*Workspace, error) {
	if existing, err := s.workspaces.GetBySlug(ctx, t.ID, slug); err == nil && existing != nil {
		return nil, ErrSlugTaken
	} else if err != nil && !errors.Is(err, ErrWorkspaceNotFound) {
		return nil, fmt.Errorf("failed to check workspace slug: %w", err)
	}

	now := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workspace id: %w", err)
	}
	ws := &Workspace{
		ID:        id.String(),
		TenantID:  t.ID,
		Slug:      slug,
		Name:      name,
		Namespace: t.Slug + "-" + slug,
		Quota:     s.defaultQuota,
		Status:    WorkspaceActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.workspaces.Create(ctx, ws); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	// Provision off the request path; the record is usable immediately and
	// namespace setup is re-applied before every install anyway.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		labels := map[string]string{"appforge.io/workspace": ws.Slug, "appforge.io/tenant": t.ID}
		if err := s.provisioner.Provision(ctx, ws.Namespace, labels, cluster.ResourceBundle{
			CPU: ws.Quota.CPU, Memory: ws.Quota.Memory, Storage: ws.Quota.Storage,
		}); err != nil {
			slog.ErrorContext(ctx, "workspace namespace provisioning failed",
				logger.WorkspaceID(ws.ID), logger.Namespace(ws.Namespace), logger.Error(err))
		}
	}()

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeWorkspaceCreated,
		TenantID: t.ID,
		Resource: ws.ID,
		Metadata: map[string]any{"slug": ws.Slug, "namespace": ws.Namespace},
	})
	return ws, nil
}

// GetWorkspace returns a workspace scoped to the tenant.
func (s *Service) GetWorkspace(ctx context.Context, tenantID, workspaceID string) (*Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil || ws.TenantID != tenantID || ws.Status == WorkspaceDeleted {
		return nil, ErrWorkspaceNotFound
	}
	return ws, nil
}

// ListWorkspaces returns the tenant's workspaces, deleted ones excluded.
func (s *Service) ListWorkspaces(ctx context.Context, tenantID string) ([]*Workspace, error) {
	all, err := s.workspaces.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	out := make([]*Workspace, 0, len(all))
	for _, ws := range all {
		if ws.Status != WorkspaceDeleted {
			out = append(out, ws)
		}
	}
	return out, nil
}

// DeleteWorkspace tears a workspace down: purge deployments, delete the
// namespace, mark the record deleted. A tenant's last active workspace cannot
// be deleted. If the deleted workspace was the tenant's default, the default
// moves to the oldest surviving workspace.
func (s *Service) DeleteWorkspace(ctx context.Context, tenantID, workspaceID string) error {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	ws, err := s.GetWorkspace(ctx, tenantID, workspaceID)
	if err != nil {
		return err
	}

	active, err := s.workspaces.CountActive(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to count workspaces: %w", err)
	}
	if active <= 1 {
		return ErrLastWorkspace
	}

	ws.Status = WorkspaceDeleting
	if err := s.workspaces.Update(ctx, ws); err != nil {
		return fmt.Errorf("failed to mark workspace deleting: %w", err)
	}

	if err := s.purger.PurgeWorkspace(ctx, ws.ID); err != nil {
		return fmt.Errorf("failed to purge deployments: %w", err)
	}
	if err := s.provisioner.Deprovision(ctx, ws.Namespace); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}

	ws.Status = WorkspaceDeleted
	if err := s.workspaces.Update(ctx, ws); err != nil {
		return fmt.Errorf("failed to mark workspace deleted: %w", err)
	}

	if t.DefaultWorkspaceID == ws.ID {
		if err := s.reassignDefault(ctx, t); err != nil {
			return err
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeWorkspaceDeleted,
		TenantID: tenantID,
		Resource: ws.ID,
		Metadata: map[string]any{"slug": ws.Slug},
	})
	return nil
}

// DeleteTenant cascades over every workspace, last-workspace rule excepted,
// then marks the tenant deleted.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) error {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	wss, err := s.ListWorkspaces(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, ws := range wss {
		if err := s.purger.PurgeWorkspace(ctx, ws.ID); err != nil {
			return fmt.Errorf("failed to purge workspace %s: %w", ws.ID, err)
		}
		if err := s.provisioner.Deprovision(ctx, ws.Namespace); err != nil {
			return fmt.Errorf("failed to delete namespace %s: %w", ws.Namespace, err)
		}
		ws.Status = WorkspaceDeleted
		if err := s.workspaces.Update(ctx, ws); err != nil {
			return fmt.Errorf("failed to mark workspace deleted: %w", err)
		}
	}

	t.Status = StatusDeleted
	t.DefaultWorkspaceID = ""
	if err := s.repo.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to mark tenant deleted: %w", err)
	}
	return nil
}

func (s *Service) reassignDefault(ctx context.Context, t *Tenant) error {
	wss, err := s.ListWorkspaces(ctx, t.ID)
	if err != nil {
		return err
	}
	t.DefaultWorkspaceID = ""
	for _, ws := range wss {
		if ws.Status == WorkspaceActive {
			t.DefaultWorkspaceID = ws.ID
			break
		}
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to reassign default workspace: %w", err)
	}
	return nil
}

// Slugify lowercases the name and collapses runs of non-alphanumerics into
// single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func validateSlug(slug string) error {
	if len(slug) < 2 || len(slug) > 40 {
		return fmt.Errorf("slug must be between 2 and 40 characters")
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return fmt.Errorf("slug may only contain lowercase letters, digits and hyphens")
		}
	}
	return nil
}
