package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_RenderEnv_ExpandsReferences(t *testing.T) {
	tmpl := Template{
		Env: map[string]string{
			"DATABASE_URL": "postgres://user@{{dep.db.host}}:{{dep.db.port}}/{{config.database}}",
			"DEBUG":        "{{config.debug}}",
			"WORKERS":      "{{config.workers}}",
			"STATIC":       "unchanged",
		},
	}
	config := map[string]any{"database": "app", "debug": true, "workers": float64(4)}
	deps := map[string]DependencyAddr{"db": {Host: "db", Port: 5432}}

	env, err := tmpl.RenderEnv(config, deps)
	require.NoError(t, err)

	assert.Equal(t, "postgres://user@db:5432/app", env["DATABASE_URL"])
	assert.Equal(t, "true", env["DEBUG"])
	assert.Equal(t, "4", env["WORKERS"])
	assert.Equal(t, "unchanged", env["STATIC"])
}

func TestTemplate_RenderEnv_UnknownConfigReference(t *testing.T) {
	tmpl := Template{Env: map[string]string{"X": "{{config.missing}}"}}

	_, err := tmpl.RenderEnv(map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestTemplate_RenderEnv_UnknownDependencyReference(t *testing.T) {
	tmpl := Template{Env: map[string]string{"X": "{{dep.cache.host}}"}}

	_, err := tmpl.RenderEnv(nil, map[string]DependencyAddr{"db": {Host: "db", Port: 5432}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache")
}

func TestTemplate_RenderImage(t *testing.T) {
	tmpl := Template{Image: "{{config.image}}"}

	image, err := tmpl.RenderImage(map[string]any{"image": "ghcr.io/acme/app:v3"})
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/acme/app:v3", image)

	fixed := Template{Image: "redis:7.4"}
	image, err = fixed.RenderImage(nil)
	require.NoError(t, err)
	assert.Equal(t, "redis:7.4", image)
}
