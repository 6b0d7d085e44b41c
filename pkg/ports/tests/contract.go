package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/ports"
)

// JobLedgerContractTest is a reusable suite that verifies an adapter complies with ports.JobLedger.
// The ledger must be empty when passed in.
func JobLedgerContractTest(t *testing.T, ledger ports.JobLedger) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := ledger.Get(ctx, "missing")
		if err != domain.ErrJobNotFound {
			t.Fatalf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("Record_Get", func(t *testing.T) {
		entry := domain.JobEntry{
			JobID:       "job-b",
			ClientID:    "client-1",
			Workflow:    "flow.json",
			Status:      domain.EntrySubmitted,
			SubmittedAt: base.Add(time.Minute),
			UpdatedAt:   base.Add(time.Minute),
		}
		if err := ledger.Record(ctx, entry); err != nil {
			t.Fatalf("record: %v", err)
		}
		got, err := ledger.Get(ctx, "job-b")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.EntrySubmitted || got.ClientID != "client-1" || got.Workflow != "flow.json" {
			t.Errorf("unexpected entry: %+v", got)
		}
		if !got.SubmittedAt.Equal(entry.SubmittedAt) {
			t.Errorf("submitted_at = %v, want %v", got.SubmittedAt, entry.SubmittedAt)
		}
	})

	t.Run("Record_Replaces", func(t *testing.T) {
		entry := domain.JobEntry{
			JobID:         "job-b",
			ClientID:      "client-1",
			Status:        domain.EntryCompleted,
			PrimaryOutput: "out/a.png",
			Outputs:       []string{"out/a.png", "out/b.png"},
			SubmittedAt:   base.Add(time.Minute),
			UpdatedAt:     base.Add(2 * time.Minute),
		}
		if err := ledger.Record(ctx, entry); err != nil {
			t.Fatalf("record: %v", err)
		}
		got, err := ledger.Get(ctx, "job-b")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.EntryCompleted || got.PrimaryOutput != "out/a.png" || len(got.Outputs) != 2 {
			t.Errorf("entry not replaced: %+v", got)
		}
	})

	t.Run("List_OrderedBySubmission", func(t *testing.T) {
		older := domain.JobEntry{
			JobID:       "job-a",
			Status:      domain.EntryInterrupted,
			SubmittedAt: base,
			UpdatedAt:   base,
		}
		if err := ledger.Record(ctx, older); err != nil {
			t.Fatalf("record: %v", err)
		}
		entries, err := ledger.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].JobID != "job-a" || entries[1].JobID != "job-b" {
			t.Errorf("unexpected order: %s, %s", entries[0].JobID, entries[1].JobID)
		}
	})
}
