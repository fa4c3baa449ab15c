package repo

import (
	"context"
	"testing"
	"time"

	"github.com/curationhub/curation-backend/internal/domain"
)

func TestCreateModerationHistory_Defaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Minute)

	h, err := CreateModerationHistory(ctx, db, &domain.ModerationHistory{
		SubmissionID: "s1",
		FeedID:       "solana",
		AdminHandle:  "alice",
		Action:       domain.ActionApprove,
		Note:         "lgtm",
	})
	if err != nil {
		t.Fatalf("CreateModerationHistory: %v", err)
	}
	if h.ID == "" || h.OccurredAt.Before(start) {
		t.Fatalf("defaults not applied: %+v", h)
	}
}

func TestListModerationHistory_OrderedOldestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, action := range []string{domain.ActionReject, domain.ActionApprove} {
		if _, err := CreateModerationHistory(ctx, db, &domain.ModerationHistory{
			SubmissionID: "s1",
			FeedID:       "solana",
			AdminHandle:  "alice",
			Action:       action,
			OccurredAt:   t0.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	if _, err := CreateModerationHistory(ctx, db, &domain.ModerationHistory{
		SubmissionID: "s2", FeedID: "solana", AdminHandle: "bob", Action: domain.ActionApprove,
	}); err != nil {
		t.Fatalf("seed other submission: %v", err)
	}

	rows, err := ListModerationHistory(ctx, db, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].Action != domain.ActionReject || rows[1].Action != domain.ActionApprove {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestListUnappliedModeration(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sub := seedSubmission(t, db, 1)
	if _, err := CreateSubmissionFeed(ctx, db, sub.ID, "solana"); err != nil {
		t.Fatalf("seed feed row: %v", err)
	}
	if _, err := CreateSubmissionFeed(ctx, db, sub.ID, "all"); err != nil {
		t.Fatalf("seed all row: %v", err)
	}

	// Audit row exists for "solana" but the feed row is still pending: this is
	// the crash window the reconciler must repair.
	if _, err := CreateModerationHistory(ctx, db, &domain.ModerationHistory{
		SubmissionID: sub.ID, FeedID: "solana", AdminHandle: "alice", Action: domain.ActionApprove,
	}); err != nil {
		t.Fatalf("seed audit: %v", err)
	}

	rows, err := ListUnappliedModeration(ctx, db)
	if err != nil {
		t.Fatalf("ListUnappliedModeration: %v", err)
	}
	if len(rows) != 1 || rows[0].FeedID != "solana" {
		t.Fatalf("unexpected unapplied rows: %+v", rows)
	}

	// Once the status matches the audit row, nothing is left to reconcile.
	if err := ResolveSubmissionFeed(ctx, db, sub.ID, "solana", domain.FeedStatusApproved, "mod-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rows, err = ListUnappliedModeration(ctx, db)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no unapplied rows, got %+v", rows)
	}
}
