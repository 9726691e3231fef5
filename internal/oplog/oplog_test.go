package oplog

import (
	"context"
	"testing"
)

func newTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	ctx := context.Background()

	entries := []struct{ op, target, detail string }{
		{OpIndexCreate, "customer-care-kb", "created"},
		{OpIngest, "docs/faq.md", "chunks=4 errors=0"},
		{OpPromote, "conv_abc", "kb_doc=learned_conv_abc"},
	}
	for _, e := range entries {
		if err := l.Append(ctx, e.op, e.target, e.detail); err != nil {
			t.Fatalf("Append(%s) error = %v", e.op, err)
		}
	}

	got, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() = %d entries, want 3", len(got))
	}
	// Newest first.
	if got[0].Operation != OpPromote || got[2].Operation != OpIndexCreate {
		t.Errorf("order = [%s %s %s], want newest first", got[0].Operation, got[1].Operation, got[2].Operation)
	}
	if got[1].Target != "docs/faq.md" || got[1].Detail != "chunks=4 errors=0" {
		t.Errorf("entry = %+v, want ingest fields preserved", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestRecent_Limit(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	ctx := context.Background()

	for range 5 {
		if err := l.Append(ctx, OpFeedback, "conv_x", "positive"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	got, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Recent(2) = %d entries, want 2", len(got))
	}
}

func TestRecent_Empty(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	got, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recent() = %d entries, want 0", len(got))
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	var l Log = Nop{}
	if err := l.Append(context.Background(), OpIngest, "x", "y"); err != nil {
		t.Fatalf("Nop.Append() error = %v", err)
	}
	got, err := l.Recent(context.Background(), 10)
	if err != nil || got != nil {
		t.Errorf("Nop.Recent() = (%v, %v), want (nil, nil)", got, err)
	}
}
