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

	"github.com/jackc/pgx/v5"

	"github.com/appforge/appforge/internal/recipe"
)

// RecipeRepository implements recipe.Repository over the catalog table.
// Recipe sub-documents are stored as JSONB.
type RecipeRepository struct {
	db *DB
}

// NewRecipeRepository creates a new recipe repository
func NewRecipeRepository(db *DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

const recipeColumns = `slug, version, name, description,
	config_schema, secrets, dependencies, resources, template, created_at`

// GetBySlug retrieves a recipe by slug
func (r *RecipeRepository) GetBySlug(ctx context.Context, slug string) (*recipe.Recipe, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+recipeColumns+`
		FROM recipes WHERE slug = $1
	`, slug)
	rec, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recipe.ErrRecipeNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves the whole catalog
func (r *RecipeRepository) List(ctx context.Context) ([]*recipe.Recipe, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+recipeColumns+`
		FROM recipes ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipes: %w", err)
	}
	defer rows.Close()

	var recipes []*recipe.Recipe
	for rows.Next() {
		rec, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, rec)
	}
	return recipes, rows.Err()
}

// Upsert inserts or replaces a catalog entry. Used by catalog seeding.
func (r *RecipeRepository) Upsert(ctx context.Context, rec *recipe.Recipe) error {
	schemaJSON, err := json.Marshal(rec.ConfigSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal config schema: %w", err)
	}
	secretsJSON, err := json.Marshal(rec.Secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	depsJSON, err := json.Marshal(rec.Dependencies)
	if err != nil {
		return fmt.Errorf("failed to marshal dependencies: %w", err)
	}
	resourcesJSON, err := json.Marshal(rec.Resources)
	if err != nil {
		return fmt.Errorf("failed to marshal resources: %w", err)
	}
	templateJSON, err := json.Marshal(rec.Template)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO recipes (
			slug, version, name, description,
			config_schema, secrets, dependencies, resources, template
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			version = EXCLUDED.version,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			config_schema = EXCLUDED.config_schema,
			secrets = EXCLUDED.secrets,
			dependencies = EXCLUDED.dependencies,
			resources = EXCLUDED.resources,
			template = EXCLUDED.template
	`,
		rec.Slug, rec.Version, rec.Name, rec.Description,
		schemaJSON, secretsJSON, depsJSON, resourcesJSON, templateJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert recipe: %w", err)
	}
	return nil
}

func scanRecipe(row pgx.Row) (*recipe.Recipe, error) {
	var rec recipe.Recipe
	var schemaJSON, secretsJSON, depsJSON, resourcesJSON, templateJSON []byte
	err := row.Scan(
		&rec.Slug, &rec.Version, &rec.Name, &rec.Description,
		&schemaJSON, &secretsJSON, &depsJSON, &resourcesJSON, &templateJSON,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan recipe: %w", err)
	}

	if err := json.Unmarshal(schemaJSON, &rec.ConfigSchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config schema: %w", err)
	}
	if err := json.Unmarshal(secretsJSON, &rec.Secrets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secrets: %w", err)
	}
	if err := json.Unmarshal(depsJSON, &rec.Dependencies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dependencies: %w", err)
	}
	if err := json.Unmarshal(resourcesJSON, &rec.Resources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resources: %w", err)
	}
	if err := json.Unmarshal(templateJSON, &rec.Template); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return &rec, nil
}
