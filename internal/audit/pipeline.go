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

package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Entry is the durable, hash-chained record written by the pipeline. It is
// the on-disk projection of Event plus chaining metadata.
type Entry struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TenantID  string         `json:"tenant_id"`
	ActorID   string         `json:"actor_id"`
	Resource  string         `json:"resource"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Intent    RequestIntent  `json:"intent"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// Store persists a flushed batch of entries. Implementations must be safe
// to call from the pipeline's single flush goroutine only (no concurrent
// calls are made).
type Store interface {
	WriteBatch(ctx context.Context, entries []Entry) error
	// LastHash returns the hash of the most recently written entry, or ""
	// if the audit log is empty, so the chain survives process restarts.
	LastHash(ctx context.Context) (string, error)
}

// IDGenerator returns a new entry ID; swapped out in tests for determinism.
type IDGenerator func() string

// PipelineConfig configures the async audit pipeline.
type PipelineConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryBaseDelay time.Duration
	// Environment selects the sampling policy: "dev" logs everything;
	// any other value applies the production sampling rule.
	Environment string
	// SampleRate is the fraction (0..1) of allowed, non-test, non-critical
	// events logged in production. Denied events and test-intent events
	// are always logged regardless of this rate.
	SampleRate float64
	NewID      IDGenerator
}

// DefaultPipelineConfig returns sane defaults matching the teacher's
// surrounding config-default conventions.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferSize:     1024,
		BatchSize:      10,
		FlushInterval:  2 * time.Second,
		MaxRetries:     5,
		RetryBaseDelay: 1 * time.Second,
		Environment:    "production",
		SampleRate:     0.1,
	}
}

// Stats reports pipeline health for a metrics/ops endpoint.
type Stats struct {
	TotalEnqueued int64
	TotalFlushed  int64
	TotalDropped  int64
	TotalSampledOut int64
	TotalFailed   int64
}

// Pipeline is an async, buffered, batched, retried, sampled, hash-chained
// audit logger. Log is non-blocking: it enqueues onto a bounded channel and
// drops (counting the drop) if the buffer is full rather than applying
// backpressure to the caller.
type Pipeline struct {
	cfg   PipelineConfig
	store Store

	buf    chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	lastHash string
	stats    Stats
}

// NewPipeline constructs a Pipeline. Call Start before Log begins doing
// useful work and Stop before process shutdown to flush any remaining
// buffered entries.
func NewPipeline(cfg PipelineConfig, store Store) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 1 * time.Second
	}
	if cfg.NewID == nil {
		cfg.NewID = defaultIDGenerator
	}
	return &Pipeline{
		cfg:   cfg,
		store: store,
		buf:   make(chan Event, cfg.BufferSize),
		done:  make(chan struct{}),
	}
}

func defaultIDGenerator() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Start seeds the chain's last hash from the store and launches the
// background flush loop. It must be called exactly once.
func (p *Pipeline) Start(ctx context.Context) error {
	last, err := p.store.LastHash(ctx)
	if err != nil {
		return fmt.Errorf("audit: load last hash: %w", err)
	}
	p.mu.Lock()
	p.lastHash = last
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop signals the flush loop to drain and exit, blocking until it does.
func (p *Pipeline) Stop(ctx context.Context) error {
	close(p.done)
	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log implements audit.Logger. It is non-blocking and never returns an
// error to the caller; enqueue failures are counted in Stats instead,
// because an audit sink must never make the operation it observes fail.
func (p *Pipeline) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if !p.shouldLog(event) {
		p.mu.Lock()
		p.stats.TotalSampledOut++
		p.mu.Unlock()
		return
	}
	select {
	case p.buf <- event:
		p.mu.Lock()
		p.stats.TotalEnqueued++
		p.mu.Unlock()
	default:
		p.mu.Lock()
		p.stats.TotalDropped++
		p.mu.Unlock()
		slog.WarnContext(ctx, "audit_buffer_full_dropping_event", "type", event.Type)
	}
}

// shouldLog applies the sampling policy: dev logs everything; in
// production, denied decisions and test-intent traffic always log, and
// everything else is sampled at SampleRate.
func (p *Pipeline) shouldLog(event Event) bool {
	if p.cfg.Environment == "dev" || p.cfg.Environment == "development" {
		return true
	}
	if event.Intent.IsTest {
		return true
	}
	if allowed, ok := event.Metadata[AttrAllowed].(bool); ok && !allowed {
		return true
	}
	if event.Type == TypeLoginFailed || event.Type == TypeUserLocked {
		return true
	}
	return rand.Float64() < p.cfg.SampleRate
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flushWithRetry(ctx, batch)
		batch = make([]Event, 0, p.cfg.BatchSize)
	}

	for {
		select {
		case e := <-p.buf:
			batch = append(batch, e)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case e := <-p.buf:
					batch = append(batch, e)
					if len(batch) >= p.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (p *Pipeline) flushWithRetry(ctx context.Context, batch []Event) {
	entries := p.chain(batch)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryBaseDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	bo := backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetries))

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := p.store.WriteBatch(ctx, entries)
		if err != nil {
			slog.WarnContext(ctx, "audit_batch_write_failed_retrying",
				"attempt", attempt, "batch_size", len(entries), "error", err)
		}
		return err
	}, bo)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.stats.TotalFailed += int64(len(entries))
		slog.ErrorContext(ctx, "audit_batch_write_failed_permanently",
			"batch_size", len(entries), "error", err)
		// Roll the chain back: these entries never made it to durable
		// storage, so the next successful batch must chain from the last
		// entry that did.
		return
	}
	p.stats.TotalFlushed += int64(len(entries))
	p.lastHash = entries[len(entries)-1].Hash
}

// chain converts raw events into hash-chained entries, each entry's hash
// covering its own canonical fields plus the previous entry's hash.
func (p *Pipeline) chain(batch []Event) []Entry {
	p.mu.Lock()
	prev := p.lastHash
	p.mu.Unlock()

	entries := make([]Entry, 0, len(batch))
	for _, e := range batch {
		entry := Entry{
			ID:        p.cfg.NewID(),
			Type:      e.Type,
			TenantID:  e.TenantID,
			ActorID:   e.ActorID,
			Resource:  e.Resource,
			Metadata:  e.Metadata,
			Timestamp: e.Timestamp,
			IPAddress: e.IPAddress,
			UserAgent: e.UserAgent,
			Intent:    e.Intent,
			PrevHash:  prev,
		}
		entry.Hash = hashEntry(entry)
		entries = append(entries, entry)
		prev = entry.Hash
	}
	return entries
}

// hashEntry computes SHA256(canonical(fields) || prev_hash), matching the
// format verifyChain below expects so tamper detection is symmetric.
func hashEntry(e Entry) string {
	canonical := struct {
		ID        string         `json:"id"`
		Type      string         `json:"type"`
		TenantID  string         `json:"tenant_id"`
		ActorID   string         `json:"actor_id"`
		Resource  string         `json:"resource"`
		Metadata  map[string]any `json:"metadata"`
		Timestamp int64          `json:"timestamp"`
		IPAddress string         `json:"ip_address"`
		UserAgent string         `json:"user_agent"`
	}{
		ID: e.ID, Type: e.Type, TenantID: e.TenantID, ActorID: e.ActorID,
		Resource: e.Resource, Metadata: e.Metadata,
		Timestamp: e.Timestamp.UnixNano(), IPAddress: e.IPAddress, UserAgent: e.UserAgent,
	}
	buf, _ := json.Marshal(canonical)
	h := sha256.New()
	h.Write(buf)
	h.Write([]byte(e.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain recomputes every entry's hash in order and reports the index
// of the first mismatch, or -1 if the chain is intact.
func VerifyChain(entries []Entry) int {
	for i, e := range entries {
		want := hashEntry(Entry{
			ID: e.ID, Type: e.Type, TenantID: e.TenantID, ActorID: e.ActorID,
			Resource: e.Resource, Metadata: e.Metadata, Timestamp: e.Timestamp,
			IPAddress: e.IPAddress, UserAgent: e.UserAgent, PrevHash: e.PrevHash,
		})
		if want != e.Hash {
			return i
		}
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			return i
		}
	}
	return -1
}

// GetStats returns a snapshot of pipeline counters.
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
