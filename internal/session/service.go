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

package session

import (
	"context"
	"time"

	"github.com/opentrusty/opentrusty/internal/id"
)

// Service manages session lifecycle: creation, lookup, sliding-window
// refresh, and destruction.
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
}

// NewService constructs a session Service.
func NewService(repo Repository, lifetime, idleTimeout time.Duration) *Service {
	return &Service{repo: repo, lifetime: lifetime, idleTimeout: idleTimeout}
}

// Create mints a new session for userID. tenantID is nil for a
// platform-level user; namespace stamps which plane (auth or admin) issued
// the session, so AuthMiddleware can refuse a cross-plane session.
func (s *Service) Create(ctx context.Context, tenantID *string, userID, ipAddress, userAgent, namespace string) (*Session, error) {
	tid := ""
	if tenantID != nil {
		tid = *tenantID
	}
	now := time.Now()
	sess := &Session{
		ID:         id.NewUUIDv7(),
		TenantID:   tid,
		UserID:     userID,
		Namespace:  namespace,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.repo.Create(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by ID, rejecting it if expired or idle past
// idleTimeout.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}
	if sess.IsIdle(s.idleTimeout) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Refresh slides the session's last-seen timestamp forward.
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return err
	}
	sess.LastSeenAt = time.Now()
	return s.repo.Update(sess)
}

// Destroy deletes a single session (logout).
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(sessionID)
}

// DestroyAllForUser deletes every session belonging to a user, used when a
// password changes or an account is locked.
func (s *Service) DestroyAllForUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(userID)
}

// CleanupExpired removes every expired session; called periodically.
func (s *Service) CleanupExpired(ctx context.Context) error {
	return s.repo.DeleteExpired()
}
