package collectors

import (
	"testing"

	"github.com/whaletrack/core/database/models"
)

func TestToPointersPreservesOrderAndAddresses(t *testing.T) {
	rows := []models.Trade{
		{WhaleID: "a"},
		{WhaleID: "b"},
		{WhaleID: "c"},
	}
	ptrs := toPointers(rows)
	if len(ptrs) != len(rows) {
		t.Fatalf("len(ptrs) = %d, want %d", len(ptrs), len(rows))
	}
	for i, p := range ptrs {
		if p.WhaleID != rows[i].WhaleID {
			t.Errorf("ptrs[%d].WhaleID = %q, want %q", i, p.WhaleID, rows[i].WhaleID)
		}
	}
	// mutating through the pointer must be visible in the backing slice,
	// since BatchUpsert relies on writing generated IDs back onto these rows
	ptrs[0].WhaleID = "mutated"
	if rows[0].WhaleID != "mutated" {
		t.Error("expected toPointers to alias the original slice's backing array")
	}
}

func TestApplyBatchNoopOnEmptyBatch(t *testing.T) {
	inserted, err := ApplyBatch(nil, nil, nil, nil, models.Whale{}, models.ChainEVM, NormalizedBatch{})
	if err != nil {
		t.Fatalf("ApplyBatch() on empty batch error = %v", err)
	}
	if inserted != nil {
		t.Errorf("expected nil inserted trades for an empty batch, got %v", inserted)
	}
}
