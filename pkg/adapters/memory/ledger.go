package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/comfyctl/pkg/domain"
)

// Ledger implements ports.JobLedger in memory.
// Safe for concurrent use.
type Ledger struct {
	data map[string]domain.JobEntry
	mu   sync.RWMutex
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		data: make(map[string]domain.JobEntry),
	}
}

// Record stores a copy of the entry.
func (l *Ledger) Record(ctx context.Context, entry domain.JobEntry) error {
	entry.Outputs = append([]string(nil), entry.Outputs...)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.data[entry.JobID] = entry
	return nil
}

// Get returns a copy of the entry for jobID.
func (l *Ledger) Get(ctx context.Context, jobID string) (*domain.JobEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.data[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	entry.Outputs = append([]string(nil), entry.Outputs...)
	return &entry, nil
}

// List returns every entry, oldest submission first.
func (l *Ledger) List(ctx context.Context) ([]domain.JobEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]domain.JobEntry, 0, len(l.data))
	for _, entry := range l.data {
		entry.Outputs = append([]string(nil), entry.Outputs...)
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SubmittedAt.Equal(entries[j].SubmittedAt) {
			return entries[i].JobID < entries[j].JobID
		}
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})
	return entries, nil
}
