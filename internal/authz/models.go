package authz

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrAssignmentNotFound      = errors.New("assignment not found")
	ErrAssignmentAlreadyExists = errors.New("assignment already exists")
	ErrRoleNotFound            = errors.New("role not found")
	ErrRoleAlreadyExists       = errors.New("role already exists")
	ErrAccessDenied            = errors.New("access denied")
	ErrInvalidPermission       = errors.New("invalid permission")
	ErrInvalidScope            = errors.New("invalid scope")
)

// Scope defines the level at which a role is assigned
type Scope string

const (
	ScopePlatform Scope = "platform"
	ScopeTenant   Scope = "tenant"
	ScopeClient   Scope = "client"
)

// Role represents a scoped role with associated permission names
type Role struct {
	ID          string
	Name        string
	Scope       Scope
	Description string
	Permissions []string // Names of permissions
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission checks if the role has a specific permission
func (r *Role) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == "*" || p == permission {
			return true
		}
	}
	return false
}

// Assignment represents a role granted to a user at a specific scope
type Assignment struct {
	ID             string
	UserID         string
	RoleID         string
	Scope          Scope
	ScopeContextID *string // NULL for platform, tenant_id for tenant, etc.
	GrantedAt      time.Time
	GrantedBy      string
}

// AssignmentRepository defines the interface for RBAC assignments
type AssignmentRepository interface {
	// Grant assigns a role to a user
	Grant(assignment *Assignment) error

	// Revoke removes a role assignment
	Revoke(userID, roleID string, scope Scope, scopeContextID *string) error

	// ListForUser retrieves all assignments for a user
	ListForUser(userID string) ([]*Assignment, error)

	// ListByRole retrieves all users assigned a specific role at a scope
	ListByRole(roleID string, scope Scope, scopeContextID *string) ([]string, error)

	// CheckExists checks if a specific assignment exists
	CheckExists(roleID string, scope Scope, scopeContextID *string) (bool, error)
}

// RoleRepository defines the interface for role persistence
type RoleRepository interface {
	// Create creates a new role
	Create(role *Role) error

	// GetByID retrieves a role by ID
	GetByID(id string) (*Role, error)

	// GetByName retrieves a role by name and scope
	GetByName(name string, scope Scope) (*Role, error)

	// Update updates role information
	Update(role *Role) error

	// Delete deletes a role
	Delete(id string) error

	// List retrieves all roles, optionally filtered by scope
	List(scope *Scope) ([]*Role, error)
}
