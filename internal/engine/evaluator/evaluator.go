// Package evaluator implements the dependency-DAG classification the
// controller runs on every pass: a pure function from an order-status list
// to (ready, cascade_failed, waiting), deterministic and side-effect-free
// rather than anything stateful.
package evaluator

import "github.com/railyard-run/railyard/internal/models"

// Classification is the evaluator's output: queue_ids partitioned into
// ready, cascade-failed, and waiting.
type Classification struct {
	Ready         []string
	CascadeFailed []string
	Waiting       []string
}

// Evaluate classifies every queued record in records. Non-queued records
// are ignored; the evaluator never looks at running or terminal orders
// except as dependency targets.
//
// Unknown queue_id in a dependency list is treated as queued/unresolved —
// this is deliberate: authoritative validation rejects malformed job
// specs earlier, but the evaluator itself must stay monotonic even if
// handed an inconsistent snapshot.
func Evaluate(records []*models.OrderRecord) Classification {
	byQueueID := make(map[string]*models.OrderRecord, len(records))
	for _, r := range records {
		byQueueID[r.QueueID] = r
	}

	statusOf := func(queueID string) models.OrderStatus {
		if dep, ok := byQueueID[queueID]; ok {
			return dep.Status
		}
		return models.OrderStatusQueued
	}

	var result Classification

	for _, r := range records {
		if r.Status != models.OrderStatusQueued {
			continue
		}

		if len(r.Dependencies) == 0 {
			result.Ready = append(result.Ready, r.QueueID)
			continue
		}

		allSucceeded := true
		anyFailedOrTimedOut := false
		anyInFlight := false

		for _, depID := range r.Dependencies {
			s := statusOf(depID)
			switch s {
			case models.OrderStatusSucceeded:
				// satisfied
			case models.OrderStatusFailed, models.OrderStatusTimedOut:
				allSucceeded = false
				anyFailedOrTimedOut = true
			case models.OrderStatusQueued, models.OrderStatusRunning:
				allSucceeded = false
				anyInFlight = true
			}
		}

		switch {
		case allSucceeded:
			result.Ready = append(result.Ready, r.QueueID)
		case anyFailedOrTimedOut && r.MustSucceed:
			result.CascadeFailed = append(result.CascadeFailed, r.QueueID)
		case anyFailedOrTimedOut && !r.MustSucceed && !anyInFlight:
			result.Ready = append(result.Ready, r.QueueID)
		default:
			result.Waiting = append(result.Waiting, r.QueueID)
		}
	}

	return result
}
