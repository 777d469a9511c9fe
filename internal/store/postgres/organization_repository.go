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
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty/internal/organization"
)

// OrganizationRepository implements organization.Repository.
type OrganizationRepository struct {
	db *DB
}

func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *organization.Organization) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, org.ID, org.Name, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*organization.Organization, error) {
	var org organization.Organization
	var deletedAt sql.NullTime
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM organizations WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt, &deletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, organization.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) GetByName(ctx context.Context, name string) (*organization.Organization, error) {
	var org organization.Organization
	var deletedAt sql.NullTime
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM organizations WHERE name = $1 AND deleted_at IS NULL
	`, name).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt, &deletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, organization.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*organization.Organization, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM organizations WHERE deleted_at IS NULL ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*organization.Organization
	for rows.Next() {
		var org organization.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}
	return orgs, nil
}

func (r *OrganizationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE organizations SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if result.RowsAffected() == 0 {
		return organization.ErrOrganizationNotFound
	}
	return nil
}

// MembershipRepository implements organization.MembershipRepository.
type MembershipRepository struct {
	db *DB
}

func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) Create(ctx context.Context, m *organization.Membership) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO memberships (id, organization_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, m.ID, m.OrganizationID, m.UserID, m.Role, m.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (r *MembershipRepository) Get(ctx context.Context, orgID, userID string) (*organization.Membership, error) {
	var m organization.Membership
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, organization_id, user_id, role, created_at
		FROM memberships WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.GrantedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, organization.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (r *MembershipRepository) UpdateRole(ctx context.Context, orgID, userID, role string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE memberships SET role = $3, updated_at = NOW()
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return organization.ErrMembershipNotFound
	}
	return nil
}

func (r *MembershipRepository) Delete(ctx context.Context, orgID, userID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM memberships WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return organization.ErrMembershipNotFound
	}
	return nil
}

func (r *MembershipRepository) ListByOrganization(ctx context.Context, orgID string) ([]*organization.Membership, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, organization_id, user_id, role, created_at
		FROM memberships WHERE organization_id = $1 ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*organization.Membership
	for rows.Next() {
		var m organization.Membership
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*organization.Membership, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, organization_id, user_id, role, created_at
		FROM memberships WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*organization.Membership
	for rows.Next() {
		var m organization.Membership
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *MembershipRepository) CountByRole(ctx context.Context, orgID, role string) (int, error) {
	var count int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM memberships WHERE organization_id = $1 AND role = $2
	`, orgID, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memberships by role: %w", err)
	}
	return count, nil
}
