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

package oauth2

import (
	"context"
	"strings"
)

// reservedScopes are protocol-level scopes that don't correspond to an RBAC
// permission and so pass the permission-intersection step unconditionally.
var reservedScopes = map[string]bool{
	ScopeOpenID:         true,
	ScopeRoles:          true,
	"profile":           true,
	"email":             true,
	"offline_access":    true,
}

// PermissionChecker is the subset of internal/rbac.Service the scope
// service depends on, kept local so this package has no import-time
// dependency on the RBAC package's cache/repository wiring.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, orgID, permission string) (bool, error)
}

// ScopeService narrows a requested OAuth2 scope down to what the client is
// registered to request AND what the user actually holds as RBAC
// permissions, so a minted token's scope never outruns the user's current
// authorization. A scope token of the form "resource:action" is treated as
// an RBAC permission name and checked directly; reserved protocol scopes
// (openid, profile, ...) are exempt.
type ScopeService struct {
	checker PermissionChecker
}

// NewScopeService constructs a scope narrower. checker may be nil, in which
// case Grant only enforces the client's AllowedScopes, skipping the
// permission-intersection step entirely (used where RBAC isn't wired, such
// as client-credentials flows with no resource owner).
func NewScopeService(checker PermissionChecker) *ScopeService {
	return &ScopeService{checker: checker}
}

// Grant computes the scope actually granted for userID in orgID: the
// intersection of requestedScope, client.AllowedScopes, and (for
// non-reserved scopes) the permissions userID holds in orgID.
func (s *ScopeService) Grant(ctx context.Context, client *Client, userID, orgID, requestedScope string) (string, error) {
	requested := strings.Fields(requestedScope)
	if len(requested) == 0 {
		return "", nil
	}

	var granted []string
	for _, scope := range requested {
		if !clientAllows(client, scope) {
			continue
		}
		if reservedScopes[scope] {
			granted = append(granted, scope)
			continue
		}
		if s.checker == nil {
			granted = append(granted, scope)
			continue
		}
		ok, err := s.checker.HasPermission(ctx, userID, orgID, scope)
		if err != nil {
			return "", err
		}
		if ok {
			granted = append(granted, scope)
		}
	}

	return strings.Join(granted, " "), nil
}

func clientAllows(client *Client, scope string) bool {
	for _, allowed := range client.AllowedScopes {
		if allowed == scope || allowed == "*" {
			return true
		}
	}
	return false
}
