// Copyright 2026 The OpenTrusty Authors
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

// Package rbac is the policy decision point: it answers "may user U
// perform permission P in organization O" by walking the bipartite grant
// graph (user -> group membership -> group -> permission grant) and caches
// the answer in two tiers.
package rbac

import (
	"context"
	"errors"
	"time"
)

var (
	ErrGroupNotFound      = errors.New("group not found")
	ErrPermissionNotFound = errors.New("permission not found")
)

// Group is a named collection of permissions that users are added to.
type Group struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// GroupMembership links a user to a group.
type GroupMembership struct {
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	GrantedAt time.Time `json:"granted_at"`
}

// Permission is a single grantable action, e.g. "user:manage".
type Permission struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GroupPermissionGrant links a group to a permission it confers on its members.
type GroupPermissionGrant struct {
	GroupID      string    `json:"group_id"`
	PermissionID string    `json:"permission_id"`
	GrantedAt    time.Time `json:"granted_at"`
}

// Repository is the storage interface the PDP reads the grant graph
// through. It never sees the cache; caching is layered on top in Service.
type Repository interface {
	// IsOrgMember reports whether userID belongs to orgID at all, checked
	// before permission resolution so a non-member is rejected with its own
	// reason rather than a generic "no permission".
	IsOrgMember(ctx context.Context, userID, orgID string) (bool, error)

	// ResolvePermissions returns every permission name a user holds in an
	// organization by walking group memberships -> groups -> grants.
	ResolvePermissions(ctx context.Context, userID, orgID string) ([]string, error)

	// ResolveGroupsForPermission returns the names of every group through
	// which userID holds permission in orgID, used to populate
	// Decision.MatchedGroups.
	ResolveGroupsForPermission(ctx context.Context, userID, orgID, permission string) ([]string, error)

	CreateGroup(ctx context.Context, group *Group) error
	AddUserToGroup(ctx context.Context, groupID, userID string) error
	RemoveUserFromGroup(ctx context.Context, groupID, userID string) error
	GrantPermissionToGroup(ctx context.Context, groupID, permissionID string) error
	RevokePermissionFromGroup(ctx context.Context, groupID, permissionID string) error
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
}
