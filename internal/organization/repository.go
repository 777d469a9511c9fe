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
	"errors"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrMembershipExists     = errors.New("membership already exists")
	ErrLastOwner            = errors.New("organization must retain at least one owner")
	ErrInvalidName          = errors.New("invalid organization name")
	ErrInvalidRole          = errors.New("invalid membership role")
)

// Repository stores organizations.
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetByName(ctx context.Context, name string) (*Organization, error)
	List(ctx context.Context, limit, offset int) ([]*Organization, error)
	Delete(ctx context.Context, id string) error
}

// MembershipRepository stores organization memberships.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, orgID, userID string) (*Membership, error)
	UpdateRole(ctx context.Context, orgID, userID, role string) error
	Delete(ctx context.Context, orgID, userID string) error
	ListByOrganization(ctx context.Context, orgID string) ([]*Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
	// CountByRole is used to enforce the at-least-one-owner invariant
	// before a role change or removal is allowed to proceed.
	CountByRole(ctx context.Context, orgID, role string) (int, error)
}
