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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/appforge/appforge/internal/tenant"
)

// WorkspaceRepository implements tenant.WorkspaceRepository
type WorkspaceRepository struct {
	db *DB
}

// NewWorkspaceRepository creates a new workspace repository
func NewWorkspaceRepository(db *DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

const workspaceColumns = `id, tenant_id, slug, name, namespace,
	quota_cpu, quota_memory, quota_storage, status, created_at, updated_at`

// Create creates a new workspace
func (r *WorkspaceRepository) Create(ctx context.Context, ws *tenant.Workspace) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO workspaces (
			id, tenant_id, slug, name, namespace,
			quota_cpu, quota_memory, quota_storage, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		ws.ID, ws.TenantID, ws.Slug, ws.Name, ws.Namespace,
		ws.Quota.CPU, ws.Quota.Memory, ws.Quota.Storage, ws.Status, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workspace: %w", err)
	}
	return nil
}

// GetByID retrieves a workspace by ID
func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*tenant.Workspace, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces WHERE id = $1
	`, id)
	return scanWorkspace(row)
}

// GetBySlug retrieves a workspace by tenant and slug
func (r *WorkspaceRepository) GetBySlug(ctx context.Context, tenantID, slug string) (*tenant.Workspace, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces WHERE tenant_id = $1 AND slug = $2 AND status <> 'deleted'
	`, tenantID, slug)
	return scanWorkspace(row)
}

// Update updates a workspace
func (r *WorkspaceRepository) Update(ctx context.Context, ws *tenant.Workspace) error {
	ws.UpdatedAt = time.Now()
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE workspaces
		SET name = $2, quota_cpu = $3, quota_memory = $4, quota_storage = $5,
			status = $6, updated_at = $7
		WHERE id = $1
	`, ws.ID, ws.Name, ws.Quota.CPU, ws.Quota.Memory, ws.Quota.Storage, ws.Status, ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrWorkspaceNotFound
	}
	return nil
}

// ListByTenant retrieves all workspaces for a tenant
func (r *WorkspaceRepository) ListByTenant(ctx context.Context, tenantID string) ([]*tenant.Workspace, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*tenant.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// CountActive counts a tenant's active workspaces
func (r *WorkspaceRepository) CountActive(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM workspaces WHERE tenant_id = $1 AND status = 'active'
	`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count workspaces: %w", err)
	}
	return count, nil
}

func scanWorkspace(row pgx.Row) (*tenant.Workspace, error) {
	var ws tenant.Workspace
	err := row.Scan(
		&ws.ID, &ws.TenantID, &ws.Slug, &ws.Name, &ws.Namespace,
		&ws.Quota.CPU, &ws.Quota.Memory, &ws.Quota.Storage, &ws.Status,
		&ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	return &ws, nil
}
