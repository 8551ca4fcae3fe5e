package recipe

import (
	"context"
	"errors"
	"time"
)

var ErrRecipeNotFound = errors.New("recipe not found")

// Recipe is an immutable-per-version template describing how to run one kind
// of service. Recipes come from the catalog; the engine treats them as
// read-only input.
type Recipe struct {
	Slug         string        `json:"slug"`
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	ConfigSchema Schema        `json:"config_schema"`
	Secrets      []SecretField `json:"secrets,omitempty"`
	Dependencies []Dependency  `json:"dependencies,omitempty"`
	Resources    Resources     `json:"resources"`
	Template     Template      `json:"template"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SecretField describes one entry in a recipe's secret schema. Fields with
// Generate set are auto-generated at install time; others must be supplied by
// the caller.
type SecretField struct {
	Key      string `json:"key"`
	Generate bool   `json:"generate"`
	Length   int    `json:"length,omitempty"`
}

// Dependency declares another recipe this one requires. The alias doubles as
// the deployment name the resolver looks for (and creates) in the workspace.
type Dependency struct {
	Recipe string         `json:"recipe"`
	Alias  string         `json:"alias"`
	Config map[string]any `json:"config,omitempty"`
}

// Resources holds the default resource footprint requested for a deployment
// of this recipe, in standard unit strings ("500m", "256Mi").
type Resources struct {
	CPU     string `json:"cpu"`
	Memory  string `json:"memory"`
	Storage string `json:"storage"`
}

// Template is the release template rendered at install time. Env values may
// reference resolved config and dependency addresses, see Render.
type Template struct {
	Image       string            `json:"image"`
	Port        int               `json:"port"`
	Env         map[string]string `json:"env,omitempty"`
	HealthPath  string            `json:"health_path,omitempty"`
	Replicas    int32             `json:"replicas,omitempty"`
}

// Repository defines the read-only interface to the recipe catalog
type Repository interface {
	GetBySlug(ctx context.Context, slug string) (*Recipe, error)
	List(ctx context.Context) ([]*Recipe, error)
}
