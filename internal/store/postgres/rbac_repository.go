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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty/internal/rbac"
)

// RBACRepository implements rbac.Repository by walking the
// rbac_groups -> rbac_group_memberships -> rbac_group_permission_grants ->
// rbac_grant_permissions grant graph.
type RBACRepository struct {
	db *DB
}

func NewRBACRepository(db *DB) *RBACRepository {
	return &RBACRepository{db: db}
}

func (r *RBACRepository) IsOrgMember(ctx context.Context, userID, orgID string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM memberships WHERE user_id = $1 AND organization_id = $2)
	`, userID, orgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check organization membership: %w", err)
	}
	return exists, nil
}

func (r *RBACRepository) ResolveGroupsForPermission(ctx context.Context, userID, orgID, permission string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT DISTINCT g.name
		FROM rbac_group_memberships gm
		JOIN rbac_groups g ON gm.group_id = g.id
		JOIN rbac_group_permission_grants gpg ON g.id = gpg.group_id
		JOIN rbac_grant_permissions p ON gpg.permission_id = p.id
		WHERE gm.user_id = $1 AND g.organization_id = $2 AND p.name = $3
	`, userID, orgID, permission)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve matched groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan group name: %w", err)
		}
		groups = append(groups, name)
	}
	return groups, nil
}

func (r *RBACRepository) ResolvePermissions(ctx context.Context, userID, orgID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM rbac_group_memberships gm
		JOIN rbac_groups g ON gm.group_id = g.id
		JOIN rbac_group_permission_grants gpg ON g.id = gpg.group_id
		JOIN rbac_grant_permissions p ON gpg.permission_id = p.id
		WHERE gm.user_id = $1 AND g.organization_id = $2
	`, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, name)
	}
	return perms, nil
}

func (r *RBACRepository) CreateGroup(ctx context.Context, group *rbac.Group) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO rbac_groups (id, organization_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, group.ID, group.OrganizationID, group.Name, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (r *RBACRepository) AddUserToGroup(ctx context.Context, groupID, userID string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO rbac_group_memberships (group_id, user_id, granted_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	return nil
}

func (r *RBACRepository) RemoveUserFromGroup(ctx context.Context, groupID, userID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM rbac_group_memberships WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove user from group: %w", err)
	}
	return nil
}

func (r *RBACRepository) GrantPermissionToGroup(ctx context.Context, groupID, permissionID string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO rbac_group_permission_grants (group_id, permission_id, granted_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_id, permission_id) DO NOTHING
	`, groupID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to grant permission to group: %w", err)
	}
	return nil
}

func (r *RBACRepository) RevokePermissionFromGroup(ctx context.Context, groupID, permissionID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM rbac_group_permission_grants WHERE group_id = $1 AND permission_id = $2
	`, groupID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to revoke permission from group: %w", err)
	}
	return nil
}

func (r *RBACRepository) GetPermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	var p rbac.Permission
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name FROM rbac_grant_permissions WHERE name = $1
	`, name).Scan(&p.ID, &p.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, rbac.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}
