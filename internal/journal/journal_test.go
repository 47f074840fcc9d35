package journal

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "relayer.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndTotals(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	deliveries := []Delivery{
		{TxHash: "0xa", LogIndex: 0, BlockNumber: 10, Status: StatusDelivered, ResponseCode: 200, Attempts: 1},
		{TxHash: "0xa", LogIndex: 1, BlockNumber: 10, Status: StatusDelivered, ResponseCode: 200, Attempts: 2},
		{TxHash: "0xb", LogIndex: 0, BlockNumber: 11, Status: StatusFailed, ResponseCode: 503, Attempts: 5},
	}
	for _, d := range deliveries {
		if err := j.Record(ctx, d); err != nil {
			t.Fatalf("record %s/%d: %v", d.TxHash, d.LogIndex, err)
		}
	}

	delivered, failed, err := j.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if delivered != 2 || failed != 1 {
		t.Fatalf("totals = %d delivered / %d failed", delivered, failed)
	}
}

func TestRecordUpsertsOnRedelivery(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	first := Delivery{TxHash: "0xa", LogIndex: 3, BlockNumber: 10, Status: StatusFailed, ResponseCode: 502, Attempts: 5}
	if err := j.Record(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Same event relayed again after the stuck range recovers.
	second := first
	second.Status = StatusDelivered
	second.ResponseCode = 200
	second.Attempts = 1
	if err := j.Record(ctx, second); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	rows, err := j.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single row, got %d", len(rows))
	}
	if rows[0].Status != StatusDelivered || rows[0].ResponseCode != 200 {
		t.Fatalf("row not overwritten: %+v", rows[0])
	}
}

func TestListOrdersByBlockAndLogIndex(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, d := range []Delivery{
		{TxHash: "0xc", LogIndex: 1, BlockNumber: 12, Status: StatusDelivered, Attempts: 1},
		{TxHash: "0xa", LogIndex: 4, BlockNumber: 10, Status: StatusDelivered, Attempts: 1},
		{TxHash: "0xb", LogIndex: 0, BlockNumber: 12, Status: StatusDelivered, Attempts: 1},
	} {
		if err := j.Record(ctx, d); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rows, err := j.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"0xa", "0xb", "0xc"}
	for i, tx := range want {
		if rows[i].TxHash != tx {
			t.Fatalf("position %d = %s, want %s", i, rows[i].TxHash, tx)
		}
	}
}

func TestRecordRequiresKeyFields(t *testing.T) {
	j := newTestJournal(t)
	if err := j.Record(context.Background(), Delivery{}); err == nil {
		t.Fatalf("expected empty delivery to be rejected")
	}
}

func TestPing(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if err := j.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	j.Close()
	if err := j.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
