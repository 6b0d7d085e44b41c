package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/comfyctl/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Ledger implements ports.JobLedger using Redis.
// Entries are stored as JSON strings; a sorted set indexed by submission time
// keeps List ordered.
type Ledger struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Ledger)

// WithTTL sets the expiration for entries.
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.ttl = ttl
	}
}

// WithPrefix sets the namespace of every key. Entries live under
// <prefix>job:<id> and the index under <prefix>jobs:index.
func WithPrefix(prefix string) Option {
	return func(l *Ledger) {
		l.prefix = prefix
	}
}

// New creates a Redis ledger from a redis:// URL.
func New(url string, opts ...Option) (*Ledger, error) {
	parsed, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(parsed), opts...), nil
}

// NewFromClient creates a Redis ledger from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Ledger {
	ledger := &Ledger{
		client: client,
		prefix: "comfyctl:",
		ttl:    0,
	}

	for _, opt := range opts {
		opt(ledger)
	}

	return ledger
}

func (l *Ledger) key(jobID string) string {
	return l.prefix + "job:" + jobID
}

func (l *Ledger) indexKey() string {
	return l.prefix + "jobs:index"
}

// Record persists the entry and indexes it by submission time.
func (l *Ledger) Record(ctx context.Context, entry domain.JobEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal job entry: %w", err)
	}

	pipe := l.client.Pipeline()
	pipe.Set(ctx, l.key(entry.JobID), data, l.ttl)
	pipe.ZAdd(ctx, l.indexKey(), backend.Z{
		Score:  float64(entry.SubmittedAt.UnixNano()),
		Member: entry.JobID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Get retrieves the entry for jobID.
func (l *Ledger) Get(ctx context.Context, jobID string) (*domain.JobEntry, error) {
	val, err := l.client.Get(ctx, l.key(jobID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var entry domain.JobEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job entry: %w", err)
	}
	return &entry, nil
}

// List returns the indexed entries oldest first. Index members whose entry
// has expired are pruned.
func (l *Ledger) List(ctx context.Context) ([]domain.JobEntry, error) {
	ids, err := l.client.ZRange(ctx, l.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	entries := make([]domain.JobEntry, 0, len(ids))
	var stale []any
	for _, id := range ids {
		entry, err := l.Get(ctx, id)
		if err == domain.ErrJobNotFound {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if len(stale) > 0 {
		if err := l.client.ZRem(ctx, l.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired jobs: %w", err)
		}
	}
	return entries, nil
}

// Close closes the redis client.
func (l *Ledger) Close() error {
	return l.client.Close()
}
