// Package controller implements the controller's single-invocation
// algorithm: acquire the per-run lock, reconcile running orders from
// their callbacks, evaluate the dependency DAG, cascade-fail and
// dispatch, then finalize the run when every order is terminal.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/railyard-run/railyard/internal/engine/evaluator"
	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/models"
	"github.com/railyard-run/railyard/internal/store/objectstore"
)

// Status values mirror the top-level `status` field every process
// entrypoint returns.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusSkipped   = "skipped"
	StatusFinalized = "finalized"
	StatusInProgress = "in_progress"
	StatusNoOrders  = "no_orders"
)

// Result is a single controller invocation's outcome.
type Result struct {
	Status  string                      `json:"status"`
	RunID   string                      `json:"run_id"`
	Summary *models.JobCompletedSummary `json:"summary,omitempty"`
}

// Dependencies are the Controller's external collaborators.
type Dependencies struct {
	Locks    interfaces.LockStore
	Orders   interfaces.OrderStore
	Events   interfaces.OrderEventStore
	Objects  interfaces.ObjectStore // internal bucket: callbacks
	Done     interfaces.ObjectStore // done bucket: terminal artifact
	Watchdog interfaces.WatchdogHandleRecorder
	Runners  map[models.ExecutionTarget]interfaces.Runner

	LockTTL        int64 // seconds, default 3600
	DispatchFanout int   // default 10
}

// Controller implements the single-invocation algorithm.
type Controller struct {
	deps Dependencies
}

// New constructs a Controller.
func New(deps Dependencies) *Controller {
	if deps.LockTTL <= 0 {
		deps.LockTTL = 3600
	}
	if deps.DispatchFanout <= 0 {
		deps.DispatchFanout = 10
	}
	return &Controller{deps: deps}
}

// Process runs one controller invocation for runID.
func (c *Controller) Process(ctx context.Context, runID string) (*Result, error) {
	orchestratorID := uuid.NewString()

	// Lock.FlowID/TraceID are diagnostic fields we don't yet know before
	// loading the run's records; left empty here (see DESIGN.md).
	_, acquired, err := c.deps.Locks.Acquire(ctx, runID, orchestratorID, c.deps.LockTTL, "", "")
	if err != nil {
		return nil, fmt.Errorf("acquire lock for run %s: %w", runID, err)
	}
	if !acquired {
		return &Result{Status: StatusSkipped, RunID: runID}, nil
	}
	defer c.deps.Locks.Release(ctx, runID, orchestratorID)

	records, err := c.deps.Orders.GetAllOrders(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load orders for run %s: %w", runID, err)
	}
	if len(records) == 0 {
		return &Result{Status: StatusNoOrders, RunID: runID}, nil
	}

	if err := c.reconcileRunning(ctx, records); err != nil {
		return nil, fmt.Errorf("reconcile running orders for run %s: %w", runID, err)
	}

	classification := evaluator.Evaluate(records)

	if err := c.cascadeFail(ctx, runID, records, classification.CascadeFailed); err != nil {
		return nil, fmt.Errorf("cascade-fail orders for run %s: %w", runID, err)
	}

	c.dispatchReady(ctx, runID, records, classification.Ready)

	finalRecords, err := c.deps.Orders.GetAllOrders(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("re-load orders for run %s: %w", runID, err)
	}

	if !allTerminal(finalRecords) {
		return &Result{Status: StatusInProgress, RunID: runID}, nil
	}

	summary := summarize(finalRecords)
	jobStatus := finalJobStatus(finalRecords, summary)

	if err := c.finalize(ctx, runID, finalRecords[0].TraceID, jobStatus, summary); err != nil {
		return nil, fmt.Errorf("finalize run %s: %w", runID, err)
	}

	return &Result{Status: StatusFinalized, RunID: runID, Summary: &summary}, nil
}

// reconcileRunning probes the callback object for every running record,
// updating its status in place (both in the store and in the in-memory
// slice, so the evaluator sees fresh state without a re-read).
func (c *Controller) reconcileRunning(ctx context.Context, records []*models.OrderRecord) error {
	for _, rec := range records {
		if rec.Status != models.OrderStatusRunning {
			continue
		}

		key := objectstore.CallbackKey(rec.RunID, rec.OrderNum)
		exists, err := c.deps.Objects.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("probe callback for order %s: %w", rec.OrderNum, err)
		}
		if !exists {
			continue
		}

		body, err := c.deps.Objects.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("fetch callback for order %s: %w", rec.OrderNum, err)
		}

		var payload struct {
			Status models.OrderStatus `json:"status"`
			Log    string             `json:"log"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("parse callback for order %s: %w", rec.OrderNum, err)
		}

		if err := c.deps.Orders.UpdateOrderStatus(ctx, rec.RunID, rec.OrderNum, payload.Status, payload.Log, ""); err != nil {
			return fmt.Errorf("update order %s from callback: %w", rec.OrderNum, err)
		}
		rec.Status = payload.Status
		rec.Log = payload.Log

		epoch := time.Now().UnixNano()
		ev := &models.OrderEvent{
			TraceID:    rec.TraceID,
			SK:         models.NewEventSK(orderEventName(rec), epoch),
			RunID:      rec.RunID,
			OrderName:  rec.OrderName,
			OrderNum:   rec.OrderNum,
			EventType:  models.EventTypeCompleted,
			Status:     payload.Status,
			Log:        payload.Log,
			EpochNanos: epoch,
		}
		if err := c.deps.Events.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("append completed event for order %s: %w", rec.OrderNum, err)
		}
	}
	return nil
}

// cascadeFail transitions every cascade-failed queue_id to failed with the
// dependency_failed reason, updating records in place.
func (c *Controller) cascadeFail(ctx context.Context, runID string, records []*models.OrderRecord, cascadeQueueIDs []string) error {
	if len(cascadeQueueIDs) == 0 {
		return nil
	}
	byQueueID := indexByQueueID(records)

	for _, queueID := range cascadeQueueIDs {
		rec, ok := byQueueID[queueID]
		if !ok {
			continue
		}

		if err := c.deps.Orders.UpdateOrderStatus(ctx, runID, rec.OrderNum, models.OrderStatusFailed, "", models.FailureReasonDependencyFailed); err != nil {
			return fmt.Errorf("cascade-fail order %s: %w", rec.OrderNum, err)
		}
		rec.Status = models.OrderStatusFailed
		rec.FailureReason = models.FailureReasonDependencyFailed

		epoch := time.Now().UnixNano()
		ev := &models.OrderEvent{
			TraceID:       rec.TraceID,
			SK:            models.NewEventSK(orderEventName(rec), epoch),
			RunID:         runID,
			OrderName:     rec.OrderName,
			OrderNum:      rec.OrderNum,
			EventType:     models.EventTypeDependencyFailed,
			Status:        models.OrderStatusFailed,
			FailureReason: models.FailureReasonDependencyFailed,
			EpochNanos:    epoch,
		}
		if err := c.deps.Events.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("append dependency_failed event for order %s: %w", rec.OrderNum, err)
		}
	}
	return nil
}

// finalize writes the job_completed event and the done artifact, per §4.3
// step 6. The lock release happens via the deferred Release in Process.
func (c *Controller) finalize(ctx context.Context, runID, traceID, jobStatus string, summary models.JobCompletedSummary) error {
	epoch := time.Now().UnixNano()
	ev := &models.OrderEvent{
		TraceID:    traceID,
		SK:         models.NewEventSK(models.JobEventOrderName, epoch),
		RunID:      runID,
		OrderName:  models.JobEventOrderName,
		EventType:  models.EventTypeJobCompleted,
		Summary:    &summary,
		EpochNanos: epoch,
	}
	if err := c.deps.Events.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append job_completed event: %w", err)
	}

	payload, err := json.Marshal(struct {
		Status  string                     `json:"status"`
		Summary models.JobCompletedSummary `json:"summary"`
	}{Status: jobStatus, Summary: summary})
	if err != nil {
		return fmt.Errorf("marshal done artifact: %w", err)
	}

	return c.deps.Done.Put(ctx, objectstore.DoneKey(runID), bytes.NewReader(payload), int64(len(payload)))
}

func allTerminal(records []*models.OrderRecord) bool {
	for _, r := range records {
		if !r.IsTerminal() {
			return false
		}
	}
	return true
}

func summarize(records []*models.OrderRecord) models.JobCompletedSummary {
	var s models.JobCompletedSummary
	for _, r := range records {
		switch r.Status {
		case models.OrderStatusSucceeded:
			s.Succeeded++
		case models.OrderStatusFailed:
			s.Failed++
		case models.OrderStatusTimedOut:
			s.TimedOut++
		}
	}
	return s
}

// finalJobStatus applies the three-branch terminal-status rule: any
// timed-out order wins, then any failure, else success.
func finalJobStatus(records []*models.OrderRecord, summary models.JobCompletedSummary) string {
	if summary.TimedOut > 0 {
		return string(models.OrderStatusTimedOut)
	}
	for _, r := range records {
		if r.Status == models.OrderStatusFailed && r.MustSucceed {
			return string(models.OrderStatusFailed)
		}
	}
	return string(models.OrderStatusSucceeded)
}

func indexByQueueID(records []*models.OrderRecord) map[string]*models.OrderRecord {
	out := make(map[string]*models.OrderRecord, len(records))
	for _, r := range records {
		out[r.QueueID] = r
	}
	return out
}

func orderEventName(rec *models.OrderRecord) string {
	if rec.OrderName != "" {
		return rec.OrderName
	}
	return rec.OrderNum
}
