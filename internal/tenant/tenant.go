package tenant

import (
	"time"
)

// Tenant is the top-level billing and isolation boundary. A tenant owns one
// or more workspaces and always keeps at least one active workspace.
type Tenant struct {
	ID                 string    `json:"id"`
	Slug               string    `json:"slug"`
	Name               string    `json:"name"`
	Status             string    `json:"status"`
	DefaultWorkspaceID string    `json:"default_workspace_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Workspace is an isolated deployment environment within a tenant, mapped
// 1:1 to a cluster namespace named {tenantSlug}-{workspaceSlug}.
type Workspace struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	Quota     Quota     `json:"quota"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quota is a workspace's admission ceiling in standard unit strings.
type Quota struct {
	CPU     string `json:"cpu"`
	Memory  string `json:"memory"`
	Storage string `json:"storage"`
}

// Tenant status constants
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Workspace status constants
const (
	WorkspaceActive   = "active"
	WorkspaceDeleting = "deleting"
	WorkspaceDeleted  = "deleted"
)
