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

package authz

import (
	"context"
	"fmt"
)

// Service provides authorization business logic
type Service struct {
	roleRepo       RoleRepository
	assignmentRepo AssignmentRepository
}

// NewService creates a new authorization service
func NewService(
	roleRepo RoleRepository,
	assignmentRepo AssignmentRepository,
) *Service {
	return &Service{
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
	}
}

// HasPermission checks if a user has a specific permission at a scope
func (s *Service) HasPermission(ctx context.Context, userID string, scope Scope, scopeContextID *string, permission string) (bool, error) {
	assignments, err := s.assignmentRepo.ListForUser(userID)
	if err != nil {
		return false, fmt.Errorf("failed to get user assignments: %w", err)
	}

	for _, a := range assignments {
		// Scope check: assignment scope must be same as requested, OR assignment is platform scope
		// (Platform admin has all permissions at all scopes? Or explicit?
		// Requirement: "Use scoped authorization (platform scope)".
		// Let's stick to explicit match or platform-to-any if that's the model.
		// For now: exact match or platform scope.
		match := false
		if a.Scope == ScopePlatform {
			match = true
		} else if a.Scope == scope {
			if a.ScopeContextID != nil && scopeContextID != nil && *a.ScopeContextID == *scopeContextID {
				match = true
			} else if a.ScopeContextID == nil && scopeContextID == nil {
				match = true
			}
		}

		if !match {
			continue
		}

		role, err := s.roleRepo.GetByID(a.RoleID)
		if err != nil {
			continue
		}

		if role.HasPermission(permission) {
			return true, nil
		}
	}

	return false, nil
}
