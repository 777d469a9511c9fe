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

// Package cache wraps a Redis client with the key-prefix conventions used
// by the opaque-token store and the authorization decision cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: not found")

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps *redis.Client with opentrusty's key namespaces.
type Client struct {
	rdb *redis.Client
}

// New builds a Client and pings Redis to fail fast on misconfiguration.
func New(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Raw exposes the underlying redis.Client for components (session store,
// rate limiting) that need lower-level primitives this wrapper doesn't.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

// Key namespace helpers. Every cache consumer builds keys through these so
// the namespace stays centralized.
func opaqueTokenKey(kind, token string) string { return fmt.Sprintf("tok:opaque:%s:%s", kind, token) }
func l1DecisionKey(user, org, perm string) string {
	return fmt.Sprintf("authz:check:%s:%s:%s", user, org, perm)
}
func l2PermSetKey(user, org string) string { return fmt.Sprintf("authz:perms:%s:%s", user, org) }
func revokedJTIKey(jti string) string      { return fmt.Sprintf("jti:revoked:%s", jti) }

// SetOpaqueToken stores an opaque token payload (login codes, password
// reset tokens, email verification tokens) under a TTL, keyed by kind so
// different token classes can't collide.
func (c *Client) SetOpaqueToken(ctx context.Context, kind, token, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, opaqueTokenKey(kind, token), value, ttl).Err()
}

// GetOpaqueToken retrieves and does NOT delete a stored opaque token value.
func (c *Client) GetOpaqueToken(ctx context.Context, kind, token string) (string, error) {
	v, err := c.rdb.Get(ctx, opaqueTokenKey(kind, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

// ConsumeOpaqueToken atomically retrieves and deletes a one-time token so
// concurrent redemption attempts cannot both succeed.
func (c *Client) ConsumeOpaqueToken(ctx context.Context, kind, token string) (string, error) {
	key := opaqueTokenKey(kind, token)
	v, err := c.rdb.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

// DeleteOpaqueToken removes a token before its TTL, used when a newer
// token of the same kind supersedes it (e.g. re-requesting a login code).
func (c *Client) DeleteOpaqueToken(ctx context.Context, kind, token string) error {
	return c.rdb.Del(ctx, opaqueTokenKey(kind, token)).Err()
}

// CachedDecision is the full decision record stored under the L1 key, so an
// L1 hit can reproduce the same reason/matched_groups the original
// repository-backed decision carried, not just the allow/deny bit.
type CachedDecision struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason"`
	MatchedGroups []string `json:"matched_groups,omitempty"`
}

// GetL1Decision returns the cached decision record, or ErrNotFound on miss.
func (c *Client) GetL1Decision(ctx context.Context, user, org, perm string) (CachedDecision, error) {
	v, err := c.rdb.Get(ctx, l1DecisionKey(user, org, perm)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return CachedDecision{}, ErrNotFound
		}
		return CachedDecision{}, err
	}
	var d CachedDecision
	if err := json.Unmarshal([]byte(v), &d); err != nil {
		return CachedDecision{}, ErrNotFound
	}
	return d, nil
}

// SetL1Decision caches a full decision record for a single permission check.
func (c *Client) SetL1Decision(ctx context.Context, user, org, perm string, decision CachedDecision, ttl time.Duration) error {
	v, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, l1DecisionKey(user, org, perm), v, ttl).Err()
}

// GetL2PermissionSet returns the cached full permission set for a user in
// an organization.
func (c *Client) GetL2PermissionSet(ctx context.Context, user, org string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, l2PermSetKey(user, org)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		exists, err := c.rdb.Exists(ctx, l2PermSetKey(user, org)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
	}
	return members, nil
}

// SetL2PermissionSet caches the full permission set for a user in an
// organization.
func (c *Client) SetL2PermissionSet(ctx context.Context, user, org string, perms []string, ttl time.Duration) error {
	key := l2PermSetKey(user, org)
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, key)
	if len(perms) > 0 {
		members := make([]interface{}, len(perms))
		for i, p := range perms {
			members[i] = p
		}
		pipe.SAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateUser removes every cached decision and permission set for a
// user in an organization, used after a membership, grant, or group change.
func (c *Client) InvalidateUser(ctx context.Context, user, org string) error {
	pattern := fmt.Sprintf("authz:check:%s:%s:*", user, org)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	pipe := c.rdb.Pipeline()
	queued := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		queued++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	pipe.Del(ctx, l2PermSetKey(user, org))
	queued++
	if queued > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RevokeJTI marks a token ID as revoked until its own expiry, implementing
// the refresh-token/access-token denylist.
func (c *Client) RevokeJTI(ctx context.Context, jti string, ttl time.Duration) error {
	return c.rdb.Set(ctx, revokedJTIKey(jti), "1", ttl).Err()
}

// IsJTIRevoked reports whether a token ID has been explicitly revoked.
func (c *Client) IsJTIRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, revokedJTIKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
