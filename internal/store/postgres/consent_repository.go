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

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// ConsentRepository implements oauth2.ConsentRepository.
type ConsentRepository struct {
	db *DB
}

func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

func (r *ConsentRepository) Upsert(ctx context.Context, record *oauth2.ConsentRecord) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO consent_records (id, user_id, client_id, scope, granted_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (user_id, client_id) DO UPDATE SET
			scope = EXCLUDED.scope,
			granted_at = EXCLUDED.granted_at,
			revoked_at = NULL
	`, record.ID, record.UserID, record.ClientID, record.Scope, record.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert consent record: %w", err)
	}
	return nil
}

func (r *ConsentRepository) Get(ctx context.Context, userID, clientID string) (*oauth2.ConsentRecord, error) {
	var rec oauth2.ConsentRecord
	var revokedAt sql.NullTime
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, scope, granted_at, revoked_at
		FROM consent_records WHERE user_id = $1 AND client_id = $2
	`, userID, clientID).Scan(&rec.ID, &rec.UserID, &rec.ClientID, &rec.Scope, &rec.GrantedAt, &revokedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("consent record not found")
		}
		return nil, fmt.Errorf("failed to get consent record: %w", err)
	}
	if revokedAt.Valid {
		rec.RevokedAt = &revokedAt.Time
	}
	return &rec, nil
}

func (r *ConsentRepository) Revoke(ctx context.Context, userID, clientID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE consent_records SET revoked_at = NOW()
		WHERE user_id = $1 AND client_id = $2
	`, userID, clientID)
	if err != nil {
		return fmt.Errorf("failed to revoke consent record: %w", err)
	}
	return nil
}

func (r *ConsentRepository) ListByUser(ctx context.Context, userID string) ([]*oauth2.ConsentRecord, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, user_id, client_id, scope, granted_at, revoked_at
		FROM consent_records WHERE user_id = $1 ORDER BY granted_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent records: %w", err)
	}
	defer rows.Close()

	var out []*oauth2.ConsentRecord
	for rows.Next() {
		var rec oauth2.ConsentRecord
		var revokedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ClientID, &rec.Scope, &rec.GrantedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consent record: %w", err)
		}
		if revokedAt.Valid {
			rec.RevokedAt = &revokedAt.Time
		}
		out = append(out, &rec)
	}
	return out, nil
}
