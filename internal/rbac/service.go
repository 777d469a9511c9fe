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

package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheSource reports where an authorization decision was served from, so
// the answer is identical regardless of cache state (cache-agnostic
// decision invariant) while still letting callers observe cache behavior.
type CacheSource string

const (
	SourceL1Hit        CacheSource = "l1_hit"
	SourceL2Hit        CacheSource = "l2_hit"
	SourceCacheMiss    CacheSource = "cache_miss"
	SourceCacheDisabled CacheSource = "cache_disabled"
)

// Decision is the PDP's answer to an authorization check.
type Decision struct {
	Allowed       bool
	Reason        string
	MatchedGroups []string
	Source        CacheSource
}

func (d Decision) cached() cache.CachedDecision {
	return cache.CachedDecision{Allowed: d.Allowed, Reason: d.Reason, MatchedGroups: d.MatchedGroups}
}

const (
	reasonNotAMember    = "Not a member of the organization"
	reasonHasPermission = "User has permission via group membership"
)

func reasonNoPermission(permission string) string {
	return fmt.Sprintf("No permission '%s' granted", permission)
}

// DecisionCache is the subset of internal/cache.Client the PDP depends on.
// Defined locally so rbac has no import-time dependency on the cache
// package's Redis specifics.
type DecisionCache interface {
	GetL1Decision(ctx context.Context, user, org, perm string) (cache.CachedDecision, error)
	SetL1Decision(ctx context.Context, user, org, perm string, decision cache.CachedDecision, ttl time.Duration) error
	GetL2PermissionSet(ctx context.Context, user, org string) ([]string, error)
	SetL2PermissionSet(ctx context.Context, user, org string, perms []string, ttl time.Duration) error
	InvalidateUser(ctx context.Context, user, org string) error
}

// ServiceConfig toggles the two cache tiers independently; either or both
// may be disabled, in which case decisions fall through to the repository
// every time and Source is always SourceCacheDisabled.
type ServiceConfig struct {
	L1Enabled bool
	L2Enabled bool
	CacheTTL  time.Duration
}

// Service is the RBAC policy decision point.
type Service struct {
	repo        Repository
	cache       DecisionCache
	cfg         ServiceConfig
	auditLogger audit.Logger

	decisionCounter metric.Int64Counter
	decisionLatency metric.Float64Histogram
}

// NewService constructs a PDP. meter may be nil, in which case metrics are
// skipped entirely (used in unit tests that don't wire observability).
func NewService(repo Repository, cache DecisionCache, cfg ServiceConfig, auditLogger audit.Logger, meter MeterFactory) *Service {
	s := &Service{repo: repo, cache: cache, cfg: cfg, auditLogger: auditLogger}
	if meter != nil {
		s.decisionCounter, _ = meter.CreateCounter("rbac_authorize_decisions_total", "Total RBAC authorize decisions")
		s.decisionLatency, _ = meter.CreateHistogram("rbac_authorize_duration_seconds", "RBAC authorize latency", "s")
	}
	return s
}

// MeterFactory is the minimal interface internal/observability/metrics.Meter
// satisfies, kept local to avoid a hard dependency cycle on that package
// from this one's tests.
type MeterFactory interface {
	CreateCounter(name, description string) (metric.Int64Counter, error)
	CreateHistogram(name, description, unit string) (metric.Float64Histogram, error)
}

// Authorize answers whether userID may exercise permission within orgID.
// The returned Decision.Allowed value never depends on whether the answer
// came from L1, L2, or the repository — only Decision.Source does.
func (s *Service) Authorize(ctx context.Context, userID, orgID, permission string) (Decision, error) {
	start := time.Now()
	decision, err := s.authorize(ctx, userID, orgID, permission)
	elapsed := time.Since(start).Seconds()

	if s.decisionCounter != nil {
		result := "denied"
		if decision.Allowed {
			result = "allowed"
		}
		s.decisionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("permission", permission),
			attribute.String("result", result),
			attribute.String("cache_source", string(decision.Source)),
		))
	}
	if s.decisionLatency != nil {
		s.decisionLatency.Record(ctx, elapsed)
	}
	if err == nil && s.auditLogger != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeAuthzDecision,
			ActorID:  userID,
			Resource: permission,
			Metadata: map[string]any{
				audit.AttrAllowed:       decision.Allowed,
				audit.AttrCacheHit:      string(decision.Source),
				audit.AttrPermission:    permission,
				audit.AttrReason:        decision.Reason,
				audit.AttrMatchedGroups: decision.MatchedGroups,
				"organization_id":       orgID,
			},
		})
	}
	return decision, err
}

// authorize implements the PDP lookup order: L2 permission-set lookup
// first, then L1 full-decision lookup on L2 miss, then the repository.
// Decision.Allowed never depends on which tier answered; only Source does.
func (s *Service) authorize(ctx context.Context, userID, orgID, permission string) (Decision, error) {
	if !s.cfg.L1Enabled && !s.cfg.L2Enabled {
		decision, _, err := s.resolveFromRepository(ctx, userID, orgID, permission)
		decision.Source = SourceCacheDisabled
		return decision, err
	}

	if s.cfg.L2Enabled {
		perms, err := s.cache.GetL2PermissionSet(ctx, userID, orgID)
		if err == nil {
			decision := decisionFromPermissionSet(perms, permission)
			if s.cfg.L1Enabled {
				_ = s.cache.SetL1Decision(ctx, userID, orgID, permission, decision.cached(), s.cfg.CacheTTL)
			}
			decision.Source = SourceL2Hit
			return decision, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			return Decision{}, err
		}
	}

	if s.cfg.L1Enabled {
		cached, err := s.cache.GetL1Decision(ctx, userID, orgID, permission)
		if err == nil {
			return Decision{
				Allowed:       cached.Allowed,
				Reason:        cached.Reason,
				MatchedGroups: cached.MatchedGroups,
				Source:        SourceL1Hit,
			}, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			return Decision{}, err
		}
	}

	decision, perms, err := s.resolveFromRepository(ctx, userID, orgID, permission)
	if err != nil {
		return Decision{}, err
	}

	if s.cfg.L2Enabled {
		_ = s.cache.SetL2PermissionSet(ctx, userID, orgID, perms, s.cfg.CacheTTL)
	}
	if s.cfg.L1Enabled {
		_ = s.cache.SetL1Decision(ctx, userID, orgID, permission, decision.cached(), s.cfg.CacheTTL)
	}

	decision.Source = SourceCacheMiss
	return decision, nil
}

// decisionFromPermissionSet decides membership in an already-resolved
// permission set; it carries no group provenance since the L2 cache only
// stores flat permission names, not the groups that granted them.
func decisionFromPermissionSet(perms []string, permission string) Decision {
	if slices.Contains(perms, permission) {
		return Decision{Allowed: true, Reason: reasonHasPermission}
	}
	return Decision{Allowed: false, Reason: reasonNoPermission(permission)}
}

// resolveFromRepository runs the full algorithm: organization membership,
// then permission resolution, then (if allowed) the matching group names.
// It also returns the resolved permission set so the caller can warm the L2
// cache without a second query.
func (s *Service) resolveFromRepository(ctx context.Context, userID, orgID, permission string) (Decision, []string, error) {
	isMember, err := s.repo.IsOrgMember(ctx, userID, orgID)
	if err != nil {
		return Decision{}, nil, err
	}
	if !isMember {
		return Decision{Allowed: false, Reason: reasonNotAMember}, nil, nil
	}

	perms, err := s.repo.ResolvePermissions(ctx, userID, orgID)
	if err != nil {
		return Decision{}, nil, err
	}
	if !slices.Contains(perms, permission) {
		return Decision{Allowed: false, Reason: reasonNoPermission(permission)}, perms, nil
	}

	groups, err := s.repo.ResolveGroupsForPermission(ctx, userID, orgID, permission)
	if err != nil {
		return Decision{}, nil, err
	}
	return Decision{Allowed: true, Reason: reasonHasPermission, MatchedGroups: groups}, perms, nil
}

// InvalidateUser clears every cached decision and permission set for a
// user in an organization. Callers must invoke this after any group
// membership change, permission grant/revoke, or role change affecting
// that user, or cached decisions will go stale until CacheTTL expires.
func (s *Service) InvalidateUser(ctx context.Context, userID, orgID string) error {
	if !s.cfg.L1Enabled && !s.cfg.L2Enabled {
		return nil
	}
	return s.cache.InvalidateUser(ctx, userID, orgID)
}

// CreateGroup, AddUserToGroup, GrantPermissionToGroup, etc. are thin
// passthroughs to the repository that additionally invalidate the
// affected user's cache entries so a grant takes effect immediately
// instead of waiting out CacheTTL.

func (s *Service) CreateGroup(ctx context.Context, group *Group) error {
	return s.repo.CreateGroup(ctx, group)
}

func (s *Service) AddUserToGroup(ctx context.Context, groupID, userID, orgID string) error {
	if err := s.repo.AddUserToGroup(ctx, groupID, userID); err != nil {
		return err
	}
	return s.InvalidateUser(ctx, userID, orgID)
}

func (s *Service) RemoveUserFromGroup(ctx context.Context, groupID, userID, orgID string) error {
	if err := s.repo.RemoveUserFromGroup(ctx, groupID, userID); err != nil {
		return err
	}
	return s.InvalidateUser(ctx, userID, orgID)
}

func (s *Service) GrantPermissionToGroup(ctx context.Context, groupID, permissionID string) error {
	return s.repo.GrantPermissionToGroup(ctx, groupID, permissionID)
}

func (s *Service) RevokePermissionFromGroup(ctx context.Context, groupID, permissionID string) error {
	return s.repo.RevokePermissionFromGroup(ctx, groupID, permissionID)
}
