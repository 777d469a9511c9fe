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

package organization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/id"
)

// Service provides organization and membership business logic.
type Service struct {
	repo        Repository
	memberRepo  MembershipRepository
	auditLogger audit.Logger
}

// NewService creates a new organization service.
func NewService(repo Repository, memberRepo MembershipRepository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, memberRepo: memberRepo, auditLogger: auditLogger}
}

// CreateOrganization creates a new organization and grants the creator the
// owner role, so every organization is born with exactly one owner.
func (s *Service) CreateOrganization(ctx context.Context, name, creatorUserID string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if len(name) < 3 || len(name) > 100 {
		return nil, ErrInvalidName
	}

	if existing, err := s.repo.GetByName(ctx, name); err == nil && existing != nil {
		return nil, fmt.Errorf("organization %q already exists", name)
	}

	now := time.Now()
	org := &Organization{
		ID:        id.NewUUIDv7(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	membership := &Membership{
		ID:             id.NewUUIDv7(),
		OrganizationID: org.ID,
		UserID:         creatorUserID,
		Role:           RoleOwner,
		GrantedAt:      now,
		GrantedBy:      audit.ActorSystemBootstrap,
	}
	if err := s.memberRepo.Create(ctx, membership); err != nil {
		return nil, fmt.Errorf("failed to grant owner membership: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		ActorID:  creatorUserID,
		Resource: audit.ResourceTenant,
		Metadata: map[string]any{"organization_id": org.ID, audit.AttrTenantName: org.Name},
	})

	return org, nil
}

// GetOrganization retrieves an organization by ID.
func (s *Service) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	return s.repo.GetByID(ctx, orgID)
}

// AddMember grants a role to a user in an organization.
func (s *Service) AddMember(ctx context.Context, orgID, userID, role, grantedBy string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}
	m := &Membership{
		ID:             id.NewUUIDv7(),
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		GrantedAt:      time.Now(),
		GrantedBy:      grantedBy,
	}
	if err := s.memberRepo.Create(ctx, m); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		ActorID:  grantedBy,
		Resource: role,
		Metadata: map[string]any{audit.AttrActorID: userID, "organization_id": orgID},
	})
	return nil
}

// ChangeRole updates a member's role, refusing to demote the last owner.
func (s *Service) ChangeRole(ctx context.Context, orgID, userID, newRole string) error {
	if !ValidRole(newRole) {
		return ErrInvalidRole
	}
	current, err := s.memberRepo.Get(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if current.Role == RoleOwner && newRole != RoleOwner {
		if err := s.assertNotLastOwner(ctx, orgID); err != nil {
			return err
		}
	}
	return s.memberRepo.UpdateRole(ctx, orgID, userID, newRole)
}

// RemoveMember removes a membership, refusing to remove the last owner.
func (s *Service) RemoveMember(ctx context.Context, orgID, userID string) error {
	current, err := s.memberRepo.Get(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if current.Role == RoleOwner {
		if err := s.assertNotLastOwner(ctx, orgID); err != nil {
			return err
		}
	}
	if err := s.memberRepo.Delete(ctx, orgID, userID); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		Resource: current.Role,
		Metadata: map[string]any{audit.AttrActorID: userID, "organization_id": orgID},
	})
	return nil
}

// assertNotLastOwner returns ErrLastOwner if removing/demoting the caller's
// target would leave the organization without any owner.
func (s *Service) assertNotLastOwner(ctx context.Context, orgID string) error {
	n, err := s.memberRepo.CountByRole(ctx, orgID, RoleOwner)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastOwner
	}
	return nil
}

// ListMemberships returns every organization a user belongs to.
func (s *Service) ListMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	return s.memberRepo.ListByUser(ctx, userID)
}

// ListMembers returns every member of an organization.
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]*Membership, error) {
	return s.memberRepo.ListByOrganization(ctx, orgID)
}
