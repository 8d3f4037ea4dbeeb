package domain

import (
	"testing"
	"time"
)

func TestApplyStatusAppendsHistory(t *testing.T) {
	createdAt := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	order := &Order{
		Status:        OrderStatusPending,
		StatusHistory: []StatusHistoryEntry{{Status: OrderStatusPending, Timestamp: createdAt}},
		CreatedAt:     createdAt,
	}

	now := createdAt.Add(10 * time.Minute)
	if changed := order.ApplyStatus(OrderStatusConfirmed, now); !changed {
		t.Fatalf("expected status change to be reported")
	}
	if order.Status != OrderStatusConfirmed {
		t.Fatalf("unexpected status %q", order.Status)
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(order.StatusHistory))
	}
	last := order.StatusHistory[1]
	if last.Status != OrderStatusConfirmed || !last.Timestamp.Equal(now) {
		t.Fatalf("unexpected last entry %+v", last)
	}
}

func TestApplyStatusSameStatusIsNoop(t *testing.T) {
	createdAt := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	order := &Order{
		Status:        OrderStatusConfirmed,
		StatusHistory: []StatusHistoryEntry{{Status: OrderStatusPending, Timestamp: createdAt}, {Status: OrderStatusConfirmed, Timestamp: createdAt.Add(time.Minute)}},
		CreatedAt:     createdAt,
	}

	if changed := order.ApplyStatus(OrderStatusConfirmed, createdAt.Add(time.Hour)); changed {
		t.Fatalf("expected no-op for unchanged status")
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("history grew on no-op: %d entries", len(order.StatusHistory))
	}
}

func TestRecordStatusHistoryBackfillsInitialEntry(t *testing.T) {
	createdAt := time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)
	order := &Order{
		Status:    OrderStatusPreparing,
		CreatedAt: createdAt,
	}

	now := createdAt.Add(30 * time.Minute)
	order.RecordStatusHistory(now)

	if len(order.StatusHistory) != 2 {
		t.Fatalf("expected backfilled pending entry plus current, got %d", len(order.StatusHistory))
	}
	first := order.StatusHistory[0]
	if first.Status != OrderStatusPending || !first.Timestamp.Equal(createdAt) {
		t.Fatalf("unexpected backfill entry %+v", first)
	}
	second := order.StatusHistory[1]
	if second.Status != OrderStatusPreparing || !second.Timestamp.Equal(now) {
		t.Fatalf("unexpected current entry %+v", second)
	}
}

func TestStatusHistoryNeverDuplicatesAdjacent(t *testing.T) {
	createdAt := time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)
	order := &Order{Status: OrderStatusPending, CreatedAt: createdAt}
	order.RecordStatusHistory(createdAt)

	steps := []OrderStatus{
		OrderStatusConfirmed,
		OrderStatusConfirmed,
		OrderStatusPreparing,
		OrderStatusOutForDelivery,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
	}
	now := createdAt
	for _, step := range steps {
		now = now.Add(5 * time.Minute)
		order.ApplyStatus(step, now)
	}

	if len(order.StatusHistory) != 5 {
		t.Fatalf("expected 5 distinct entries, got %d: %+v", len(order.StatusHistory), order.StatusHistory)
	}
	for i := 1; i < len(order.StatusHistory); i++ {
		if order.StatusHistory[i].Status == order.StatusHistory[i-1].Status {
			t.Fatalf("adjacent duplicate at %d: %+v", i, order.StatusHistory)
		}
		if order.StatusHistory[i].Timestamp.Before(order.StatusHistory[i-1].Timestamp) {
			t.Fatalf("timestamps regressed at %d: %+v", i, order.StatusHistory)
		}
	}
}

func TestValidOrderStatus(t *testing.T) {
	for _, status := range OrderStatuses {
		if !ValidOrderStatus(status) {
			t.Fatalf("status %q should be valid", status)
		}
	}
	for _, status := range []OrderStatus{"", "shipped", "Pending", "done"} {
		if ValidOrderStatus(status) {
			t.Fatalf("status %q should be invalid", status)
		}
	}
}
