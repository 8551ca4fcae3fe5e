package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrSlugTaken         = errors.New("slug already in use")
	ErrLastWorkspace     = errors.New("cannot delete the last active workspace of a tenant")
)

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
}

// WorkspaceRepository defines the interface for workspace storage
type WorkspaceRepository interface {
	Create(ctx context.Context, ws *Workspace) error
	GetByID(ctx context.Context, id string) (*Workspace, error)
	GetBySlug(ctx context.Context, tenantID, slug string) (*Workspace, error)
	Update(ctx context.Context, ws *Workspace) error
	ListByTenant(ctx context.Context, tenantID string) ([]*Workspace, error)
	CountActive(ctx context.Context, tenantID string) (int, error)
}
