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
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
)

// ConsentRecord tracks a user's prior grant of a scope set to a client, so
// the authorize endpoint can skip the consent screen on return visits and
// so a user can review/revoke what they've granted.
type ConsentRecord struct {
	ID        string
	UserID    string
	ClientID  string
	Scope     string
	GrantedAt time.Time
	RevokedAt *time.Time
}

// ConsentRepository persists consent grants, one row per (user, client).
type ConsentRepository interface {
	Upsert(ctx context.Context, record *ConsentRecord) error
	Get(ctx context.Context, userID, clientID string) (*ConsentRecord, error)
	Revoke(ctx context.Context, userID, clientID string) error
	ListByUser(ctx context.Context, userID string) ([]*ConsentRecord, error)
}

// ConsentService decides whether an authorization request needs to show
// the user a consent screen, and records the outcome when it does.
type ConsentService struct {
	repo        ConsentRepository
	auditLogger audit.Logger
}

func NewConsentService(repo ConsentRepository, auditLogger audit.Logger) *ConsentService {
	return &ConsentService{repo: repo, auditLogger: auditLogger}
}

// NeedsConsent reports whether the user must be shown a consent screen
// before requestedScope is granted to clientID: true unless a prior,
// unrevoked grant already covers every requested scope. Trusted
// (first-party) clients never need consent.
func (s *ConsentService) NeedsConsent(ctx context.Context, userID, clientID, requestedScope string, clientIsTrusted bool) (bool, error) {
	if clientIsTrusted {
		return false, nil
	}
	record, err := s.repo.Get(ctx, userID, clientID)
	if err != nil {
		return true, nil
	}
	if record.RevokedAt != nil {
		return true, nil
	}
	return !scopeIsSubset(requestedScope, record.Scope), nil
}

// Grant records that userID consented to scope for clientID, merging with
// any previously granted scopes so a later narrower request doesn't shrink
// what was already approved.
func (s *ConsentService) Grant(ctx context.Context, userID, clientID, scope string) error {
	existing, err := s.repo.Get(ctx, userID, clientID)
	merged := scope
	if err == nil && existing.RevokedAt == nil {
		merged = mergeScopes(existing.Scope, scope)
	}

	record := &ConsentRecord{
		ID:        generateID(),
		UserID:    userID,
		ClientID:  clientID,
		Scope:     merged,
		GrantedAt: time.Now(),
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return err
	}

	if s.auditLogger != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeConsentGranted,
			ActorID:  userID,
			Resource: clientID,
			Metadata: map[string]any{"scope": merged},
		})
	}
	return nil
}

// Revoke withdraws a user's consent for a client, forcing the next
// authorization request to show the consent screen again.
func (s *ConsentService) Revoke(ctx context.Context, userID, clientID string) error {
	if err := s.repo.Revoke(ctx, userID, clientID); err != nil {
		return err
	}
	if s.auditLogger != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeConsentRevoked,
			ActorID:  userID,
			Resource: clientID,
		})
	}
	return nil
}

func mergeScopes(a, b string) string {
	set := make(map[string]bool)
	var out []string
	for _, s := range strings.Fields(a) {
		if !set[s] {
			set[s] = true
			out = append(out, s)
		}
	}
	for _, s := range strings.Fields(b) {
		if !set[s] {
			set[s] = true
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}
