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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/appforge/appforge/internal/deployment"
)

// DeploymentRepository implements deployment.Repository. Config is stored as
// JSONB and dependency edges as a TEXT[] of deployment ids.
type DeploymentRepository struct {
	db *DB
}

// NewDeploymentRepository creates a new deployment repository
func NewDeploymentRepository(db *DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

const deploymentColumns = `id, workspace_id, name, recipe_slug, recipe_version,
	config, secret_ref, depends_on, status, error, revision, created_at, updated_at`

// Create creates a new deployment record
func (r *DeploymentRepository) Create(ctx context.Context, d *deployment.Deployment) error {
	configJSON, err := json.Marshal(d.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO deployments (
			id, workspace_id, name, recipe_slug, recipe_version,
			config, secret_ref, depends_on, status, error, revision, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		d.ID, d.WorkspaceID, d.Name, d.RecipeSlug, d.RecipeVersion,
		configJSON, d.SecretRef, d.DependsOn, d.Status, d.Error, d.Revision,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deployment: %w", err)
	}
	return nil
}

// GetByID retrieves a deployment by ID
func (r *DeploymentRepository) GetByID(ctx context.Context, id string) (*deployment.Deployment, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments WHERE id = $1
	`, id)
	return scanDeployment(row)
}

// GetByName retrieves a workspace's live deployment by name
func (r *DeploymentRepository) GetByName(ctx context.Context, workspaceID, name string) (*deployment.Deployment, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments
		WHERE workspace_id = $1 AND name = $2 AND status <> 'stopped'
	`, workspaceID, name)
	return scanDeployment(row)
}

// Update updates a deployment record
func (r *DeploymentRepository) Update(ctx context.Context, d *deployment.Deployment) error {
	d.UpdatedAt = time.Now()
	configJSON, err := json.Marshal(d.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE deployments
		SET config = $2, depends_on = $3, status = $4, error = $5,
			revision = $6, updated_at = $7
		WHERE id = $1
	`, d.ID, configJSON, d.DependsOn, d.Status, d.Error, d.Revision, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update deployment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return deployment.ErrDeploymentNotFound
	}
	return nil
}

// Delete hard-deletes a deployment record
func (r *DeploymentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM deployments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}
	return nil
}

// ListByWorkspace retrieves a workspace's non-stopped deployments
func (r *DeploymentRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*deployment.Deployment, error) {
	return r.list(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments
		WHERE workspace_id = $1 AND status <> 'stopped'
		ORDER BY created_at
	`, workspaceID)
}

// ListAllByWorkspace retrieves every deployment in a workspace, stopped ones
// included
func (r *DeploymentRepository) ListAllByWorkspace(ctx context.Context, workspaceID string) ([]*deployment.Deployment, error) {
	return r.list(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments
		WHERE workspace_id = $1
		ORDER BY created_at
	`, workspaceID)
}

// ListDependents retrieves non-stopped deployments that depend on the given
// deployment
func (r *DeploymentRepository) ListDependents(ctx context.Context, id string) ([]*deployment.Deployment, error) {
	return r.list(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments
		WHERE $1 = ANY(depends_on) AND status <> 'stopped'
		ORDER BY created_at
	`, id)
}

func (r *DeploymentRepository) list(ctx context.Context, query string, args ...any) ([]*deployment.Deployment, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*deployment.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

func scanDeployment(row pgx.Row) (*deployment.Deployment, error) {
	var d deployment.Deployment
	var configJSON []byte
	err := row.Scan(
		&d.ID, &d.WorkspaceID, &d.Name, &d.RecipeSlug, &d.RecipeVersion,
		&configJSON, &d.SecretRef, &d.DependsOn, &d.Status, &d.Error, &d.Revision,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, deployment.ErrDeploymentNotFound
		}
		return nil, fmt.Errorf("failed to scan deployment: %w", err)
	}
	if err := json.Unmarshal(configJSON, &d.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &d, nil
}
