package model

import (
	"testing"
	"time"
)

func TestNewBatch_RejectsEmptyEntries(t *testing.T) {
	_, err := NewBatch(1, BatchSizeBased, nil, time.Now())
	if err == nil {
		t.Fatal("expected error constructing batch with zero entries")
	}
}

func TestNewBatch_CreatedAtNotInFuture(t *testing.T) {
	now := time.Now()
	entries := []EnrichedRecord{{Message: "m", ContainerID: "c", ServiceName: "s"}}
	b, err := NewBatch(1, BatchTimeBased, entries, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CreatedAt().After(time.Now()) {
		t.Fatal("created_at must not be in the future")
	}
	if b.Size() < 1 || b.Size() > len(entries) {
		t.Fatalf("unexpected batch size %d", b.Size())
	}
}

func TestNewBatch_IDsDifferAcrossSequence(t *testing.T) {
	entries := []EnrichedRecord{{Message: "same message", ContainerID: "c", ServiceName: "s"}}
	b1, _ := NewBatch(1, BatchSizeBased, entries, time.Now())
	b2, _ := NewBatch(2, BatchSizeBased, entries, time.Now())
	if b1.ID() == b2.ID() {
		t.Fatalf("expected distinct batch ids, got %q twice", b1.ID())
	}
}

func TestNewBatch_EntriesAreCopiedNotShared(t *testing.T) {
	entries := []EnrichedRecord{{Message: "m", ContainerID: "c", ServiceName: "s"}}
	b, _ := NewBatch(1, BatchSizeBased, entries, time.Now())
	entries[0].Message = "mutated"
	if b.Entries()[0].Message == "mutated" {
		t.Fatal("batch entries must be copied at construction, not aliased")
	}
}
