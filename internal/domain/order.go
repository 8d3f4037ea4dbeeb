package domain

import "time"

// ApplyStatus moves the order to the given fulfillment status at the given
// time and maintains the status history. Applying the current status is a
// no-op. It reports whether the order changed.
func (o *Order) ApplyStatus(status OrderStatus, now time.Time) bool {
	if status == o.Status {
		return false
	}
	o.Status = status
	o.RecordStatusHistory(now)
	return true
}

// RecordStatusHistory brings the status history in line with the current
// status. Orders persisted before history tracking existed get a synthetic
// initial pending entry stamped with their creation time. An entry is only
// appended when the status differs from the last recorded one, so the
// history never carries adjacent duplicates.
func (o *Order) RecordStatusHistory(now time.Time) {
	if len(o.StatusHistory) == 0 {
		createdAt := o.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		o.StatusHistory = append(o.StatusHistory, StatusHistoryEntry{
			Status:    OrderStatusPending,
			Timestamp: createdAt,
		})
	}
	last := o.StatusHistory[len(o.StatusHistory)-1]
	if last.Status != o.Status {
		o.StatusHistory = append(o.StatusHistory, StatusHistoryEntry{
			Status:    o.Status,
			Timestamp: now,
		})
	}
}
