package deployment

import (
	"context"
	"time"
)

// Deployment is one running (or attempted) instance of a recipe inside a
// workspace. The row is the single source of truth for lifecycle status; the
// cluster is the source of truth for "is it actually running", reconciled in
// by the install workflow's polling.
type Deployment struct {
	ID            string         `json:"id"`
	WorkspaceID   string         `json:"workspace_id"`
	Name          string         `json:"name"`
	RecipeSlug    string         `json:"recipe"`
	RecipeVersion string         `json:"recipe_version"`
	Config        map[string]any `json:"config"`
	SecretRef     string         `json:"secret_ref,omitempty"`
	DependsOn     []string       `json:"depends_on,omitempty"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
	Revision      int            `json:"revision"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Lifecycle states. PENDING -> DEPLOYING -> RUNNING, FAILED reachable from
// PENDING/DEPLOYING, DELETING on the way out, STOPPED terminal soft-removed.
// RUNNING -> DEPLOYING again on upgrade/restart.
const (
	StatusPending   = "pending"
	StatusDeploying = "deploying"
	StatusRunning   = "running"
	StatusFailed    = "failed"
	StatusDeleting  = "deleting"
	StatusStopped   = "stopped"
)

// InFlight reports whether a lifecycle workflow is still settling this
// deployment. Callers poll while this holds.
func (d *Deployment) InFlight() bool {
	return d.Status == StatusPending || d.Status == StatusDeploying || d.Status == StatusDeleting
}

// Repository defines the interface for deployment storage. Name lookups and
// listings exclude STOPPED rows: a soft-removed deployment is observable as
// gone.
type Repository interface {
	Create(ctx context.Context, d *Deployment) error
	GetByID(ctx context.Context, id string) (*Deployment, error)
	GetByName(ctx context.Context, workspaceID, name string) (*Deployment, error)
	Update(ctx context.Context, d *Deployment) error
	Delete(ctx context.Context, id string) error
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Deployment, error)
	ListAllByWorkspace(ctx context.Context, workspaceID string) ([]*Deployment, error)
	ListDependents(ctx context.Context, id string) ([]*Deployment, error)
}
