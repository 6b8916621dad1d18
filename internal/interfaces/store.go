// Package interfaces defines the capability surfaces the engine depends on,
// so that the data-plane adapters (internal/store/...) and back-end runners
// (internal/backend/...) stay swappable behind narrow contracts.
package interfaces

import (
	"context"

	"github.com/railyard-run/railyard/internal/models"
)

// OrderStore is the `orders`-table capability: CRUD over OrderRecord keyed
// by (run_id, order_num).
type OrderStore interface {
	PutOrder(ctx context.Context, rec *models.OrderRecord) error
	GetOrder(ctx context.Context, runID, orderNum string) (*models.OrderRecord, error)
	// GetAllOrders returns every OrderRecord for a run. The DynamoDB
	// implementation is a full-table scan filtered by run_id;
	// implementations may use a secondary index instead.
	GetAllOrders(ctx context.Context, runID string) ([]*models.OrderRecord, error)
	UpdateOrderStatus(ctx context.Context, runID, orderNum string, status models.OrderStatus, log, failureReason string) error
	// MarkDispatched transitions a record to running and records the
	// back-end execution handle and watchdog handle the dispatcher obtained.
	MarkDispatched(ctx context.Context, runID, orderNum, execHandle, watchdogHandle string) error
}

// OrderEventStore is the append-only `order_events`-table capability.
type OrderEventStore interface {
	AppendEvent(ctx context.Context, ev *models.OrderEvent) error
	// ListEvents returns every event for a trace in sk order (temporal order).
	ListEvents(ctx context.Context, traceID string) ([]*models.OrderEvent, error)
}

// LockStore is the `locks`-table capability. Acquire must be implemented as
// a conditional write: it succeeds iff no lock exists for run_id, or the
// existing lock's status is "completed".
type LockStore interface {
	// Acquire attempts to take the per-run lock with a fresh orchestrator_id.
	// It returns (lock, true, nil) on success and (nil, false, nil) when the
	// conditional write lost to an active holder — callers must treat that
	// as a "skipped" outcome, not an error.
	Acquire(ctx context.Context, runID, orchestratorID string, ttl int64, flowID, traceID string) (*models.Lock, bool, error)
	// Release marks the lock completed. The DynamoDB implementation does
	// not check orchestratorID, so a call from a non-holder completes the
	// current holder's lock; the controller calls it only after a
	// successful Acquire.
	Release(ctx context.Context, runID, orchestratorID string) error
}
