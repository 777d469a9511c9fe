package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/cache"
)

type fakeRepo struct {
	perms   map[string][]string // key: userID+":"+orgID
	members map[string]bool     // key: userID+":"+orgID, default true
	groups  map[string][]string // key: userID+":"+orgID+":"+permission
	calls   int
}

func (r *fakeRepo) IsOrgMember(ctx context.Context, userID, orgID string) (bool, error) {
	if r.members == nil {
		return true, nil
	}
	v, ok := r.members[userID+":"+orgID]
	if !ok {
		return true, nil
	}
	return v, nil
}
func (r *fakeRepo) ResolvePermissions(ctx context.Context, userID, orgID string) ([]string, error) {
	r.calls++
	return r.perms[userID+":"+orgID], nil
}
func (r *fakeRepo) ResolveGroupsForPermission(ctx context.Context, userID, orgID, permission string) ([]string, error) {
	return r.groups[userID+":"+orgID+":"+permission], nil
}
func (r *fakeRepo) CreateGroup(ctx context.Context, group *Group) error                 { return nil }
func (r *fakeRepo) AddUserToGroup(ctx context.Context, groupID, userID string) error    { return nil }
func (r *fakeRepo) RemoveUserFromGroup(ctx context.Context, g, u string) error          { return nil }
func (r *fakeRepo) GrantPermissionToGroup(ctx context.Context, g, p string) error       { return nil }
func (r *fakeRepo) RevokePermissionFromGroup(ctx context.Context, g, p string) error    { return nil }
func (r *fakeRepo) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	return &Permission{ID: name, Name: name}, nil
}

type fakeCache struct {
	l1 map[string]cache.CachedDecision
	l2 map[string][]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{l1: map[string]cache.CachedDecision{}, l2: map[string][]string{}}
}

func (c *fakeCache) GetL1Decision(ctx context.Context, user, org, perm string) (cache.CachedDecision, error) {
	v, ok := c.l1[user+":"+org+":"+perm]
	if !ok {
		return cache.CachedDecision{}, cache.ErrNotFound
	}
	return v, nil
}
func (c *fakeCache) SetL1Decision(ctx context.Context, user, org, perm string, decision cache.CachedDecision, ttl time.Duration) error {
	c.l1[user+":"+org+":"+perm] = decision
	return nil
}
func (c *fakeCache) GetL2PermissionSet(ctx context.Context, user, org string) ([]string, error) {
	v, ok := c.l2[user+":"+org]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return v, nil
}
func (c *fakeCache) SetL2PermissionSet(ctx context.Context, user, org string, perms []string, ttl time.Duration) error {
	c.l2[user+":"+org] = perms
	return nil
}
func (c *fakeCache) InvalidateUser(ctx context.Context, user, org string) error {
	delete(c.l2, user+":"+org)
	for k := range c.l1 {
		if len(k) > len(user+":"+org) && k[:len(user+":"+org)] == user+":"+org {
			delete(c.l1, k)
		}
	}
	return nil
}

func TestAuthorize_CacheAgnosticDecision(t *testing.T) {
	repo := &fakeRepo{perms: map[string][]string{"u1:o1": {"doc:read"}}}
	c := newFakeCache()
	svc := NewService(repo, c, ServiceConfig{L1Enabled: true, L2Enabled: true, CacheTTL: time.Minute}, audit.NewSlogLogger(), nil)

	ctx := context.Background()
	d1, err := svc.Authorize(ctx, "u1", "o1", "doc:read")
	if err != nil || !d1.Allowed || d1.Source != SourceCacheMiss {
		t.Fatalf("first call: got %+v, err %v", d1, err)
	}

	d2, err := svc.Authorize(ctx, "u1", "o1", "doc:read")
	if err != nil || !d2.Allowed || d2.Source != SourceL2Hit {
		t.Fatalf("second call: got %+v, err %v", d2, err)
	}

	// doc:write is answered from the already-cached L2 permission set, so
	// no further repository access is needed even for a distinct permission.
	d3, err := svc.Authorize(ctx, "u1", "o1", "doc:write")
	if err != nil || d3.Allowed || d3.Source != SourceL2Hit {
		t.Fatalf("unpermitted action should be denied via L2: got %+v", d3)
	}

	if repo.calls != 1 {
		t.Fatalf("expected repository to be consulted once (first miss warms the L2 set), got %d", repo.calls)
	}
}

func TestAuthorize_CacheDisabledAlwaysHitsRepository(t *testing.T) {
	repo := &fakeRepo{perms: map[string][]string{"u1:o1": {"doc:read"}}}
	c := newFakeCache()
	svc := NewService(repo, c, ServiceConfig{}, audit.NewSlogLogger(), nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := svc.Authorize(ctx, "u1", "o1", "doc:read")
		if err != nil || !d.Allowed || d.Source != SourceCacheDisabled {
			t.Fatalf("call %d: got %+v, err %v", i, d, err)
		}
	}
	if repo.calls != 3 {
		t.Fatalf("expected repository hit every call when cache disabled, got %d calls", repo.calls)
	}
}

func TestInvalidateUser_ClearsBothTiers(t *testing.T) {
	repo := &fakeRepo{perms: map[string][]string{"u1:o1": {"doc:read"}}}
	c := newFakeCache()
	svc := NewService(repo, c, ServiceConfig{L1Enabled: true, L2Enabled: true, CacheTTL: time.Minute}, audit.NewSlogLogger(), nil)

	ctx := context.Background()
	svc.Authorize(ctx, "u1", "o1", "doc:read")
	repo.perms["u1:o1"] = nil // revoke permission out of band

	if err := svc.InvalidateUser(ctx, "u1", "o1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	d, err := svc.Authorize(ctx, "u1", "o1", "doc:read")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected revoked permission to be denied after invalidation, got allowed")
	}
}

func TestAuthorize_ReasonAndMatchedGroupsSurviveCaching(t *testing.T) {
	repo := &fakeRepo{
		perms:  map[string][]string{"u1:o1": {"activity:create"}},
		groups: map[string][]string{"u1:o1:activity:create": {"G"}},
	}
	c := newFakeCache()
	svc := NewService(repo, c, ServiceConfig{L1Enabled: true, L2Enabled: true, CacheTTL: time.Minute}, audit.NewSlogLogger(), nil)

	ctx := context.Background()
	d1, err := svc.Authorize(ctx, "u1", "o1", "activity:create")
	if err != nil || !d1.Allowed || d1.Source != SourceCacheMiss {
		t.Fatalf("first call: got %+v, err %v", d1, err)
	}
	if d1.Reason != reasonHasPermission || len(d1.MatchedGroups) != 1 || d1.MatchedGroups[0] != "G" {
		t.Fatalf("expected matched_groups [G], got %+v", d1)
	}

	// Force an L2 miss so the L1 full-decision cache answers, and confirm
	// the cached reason/matched_groups round-trip.
	delete(c.l2, "u1:o1")
	d2, err := svc.Authorize(ctx, "u1", "o1", "activity:create")
	if err != nil || !d2.Allowed || d2.Source != SourceL1Hit {
		t.Fatalf("second call: got %+v, err %v", d2, err)
	}
	if d2.Reason != reasonHasPermission || len(d2.MatchedGroups) != 1 || d2.MatchedGroups[0] != "G" {
		t.Fatalf("expected L1-cached matched_groups [G], got %+v", d2)
	}

	repo.members = map[string]bool{"u2:o1": false}
	d3, err := svc.Authorize(ctx, "u2", "o1", "activity:create")
	if err != nil || d3.Allowed || d3.Reason != reasonNotAMember {
		t.Fatalf("non-member call: got %+v, err %v", d3, err)
	}
}
