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
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty/internal/audit"
)

// AuditRepository implements audit.Store, the pipeline's batch sink.
type AuditRepository struct {
	db *DB
}

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WriteBatch persists a batch of chained entries in a single transaction so
// a partial batch can never land between two LastHash reads.
func (r *AuditRepository) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			metadata, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal audit metadata: %w", err)
			}
			intent, err := json.Marshal(e.Intent)
			if err != nil {
				return fmt.Errorf("failed to marshal audit intent: %w", err)
			}
			batch.Queue(`
				INSERT INTO audit_entries (
					id, type, tenant_id, actor_id, resource, metadata,
					ip_address, user_agent, intent, prev_hash, hash, occurred_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			`, e.ID, e.Type, e.TenantID, e.ActorID, e.Resource, metadata,
				e.IPAddress, e.UserAgent, intent, e.PrevHash, e.Hash, e.Timestamp)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range entries {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert audit entry: %w", err)
			}
		}
		return nil
	})
}

// LastHash returns the hash of the most recently written entry, or "" if
// the audit log is empty, so the pipeline can resume its chain across
// restarts.
func (r *AuditRepository) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := r.db.pool.QueryRow(ctx, `
		SELECT hash FROM audit_entries ORDER BY occurred_at DESC, id DESC LIMIT 1
	`).Scan(&hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read last audit hash: %w", err)
	}
	return hash, nil
}
