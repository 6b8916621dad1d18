package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/railyard-run/railyard/internal/engine/watchdog"
	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/models"
)

// dispatchReady dispatches every ready queue_id with bounded concurrency
// (bound = min(len(ready), DispatchFanout)). A single order's dispatch
// failure never blocks the others; it is left `queued` for the next
// controller pass to retry.
func (c *Controller) dispatchReady(ctx context.Context, runID string, records []*models.OrderRecord, readyQueueIDs []string) {
	if len(readyQueueIDs) == 0 {
		return
	}
	byQueueID := indexByQueueID(records)

	bound := c.deps.DispatchFanout
	if bound > len(readyQueueIDs) {
		bound = len(readyQueueIDs)
	}
	sem := make(chan struct{}, bound)

	var wg sync.WaitGroup
	for _, queueID := range readyQueueIDs {
		rec, ok := byQueueID[queueID]
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(rec *models.OrderRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			c.dispatchOne(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

// dispatchOne runs the §4.5 dispatch steps for a single ready order.
// Failures are swallowed (the order stays queued); they are not
// propagated because a partial dispatch pass must not block siblings.
func (c *Controller) dispatchOne(ctx context.Context, rec *models.OrderRecord) {
	runner, ok := c.deps.Runners[rec.ExecutionTarget]
	if !ok || runner == nil {
		return
	}

	execHandle, err := runner.Dispatch(ctx, interfaces.DispatchInput{
		RunID:          rec.RunID,
		OrderNum:       rec.OrderNum,
		ArchivePath:    rec.ArchivePath,
		EnvelopeKeyRef: rec.SopsKeyRef,
		SSMTargets:     rec.SSMTargets,
	})
	if err != nil {
		return
	}

	watchdogHandle := ""
	if c.deps.Watchdog != nil {
		probe := watchdog.Probe{
			RunID:     rec.RunID,
			OrderNum:  rec.OrderNum,
			Timeout:   time.Duration(rec.Timeout) * time.Second,
			StartTime: time.Now(),
		}
		input, marshalErr := json.Marshal(probe)
		if marshalErr == nil {
			// Best-effort: a failure to register the watchdog handle does not
			// undo an already-dispatched execution.
			if handle, wdErr := c.deps.Watchdog.RecordHandle(ctx, rec.RunID, rec.OrderNum, input); wdErr == nil {
				watchdogHandle = handle
			}
		}
	}

	if err := c.deps.Orders.MarkDispatched(ctx, rec.RunID, rec.OrderNum, execHandle, watchdogHandle); err != nil {
		return
	}
	rec.Status = models.OrderStatusRunning
	rec.ExecHandle = execHandle
	rec.WatchdogHandle = watchdogHandle

	epoch := time.Now().UnixNano()
	ev := &models.OrderEvent{
		TraceID:    rec.TraceID,
		SK:         models.NewEventSK(orderEventName(rec), epoch),
		RunID:      rec.RunID,
		OrderName:  rec.OrderName,
		OrderNum:   rec.OrderNum,
		EventType:  models.EventTypeDispatched,
		Status:     models.OrderStatusRunning,
		EpochNanos: epoch,
	}
	_ = c.deps.Events.AppendEvent(ctx, ev)
}
