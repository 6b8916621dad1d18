// Package watchdog implements the per-order timeout probe: a single-tick
// function invoked repeatedly (each invocation of cmd/watchdog runs one
// tick) until it reports done.
package watchdog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/models"
	"github.com/railyard-run/railyard/internal/store/objectstore"
)

// Probe is the watchdog's durable state for one dispatched order.
type Probe struct {
	RunID     string
	OrderNum  string
	Timeout   time.Duration
	StartTime time.Time
}

// result is the JSON body written to the canonical callback path.
type result struct {
	Status string `json:"status"`
	Log    string `json:"log"`
}

// TimedOutMessage is the log body the watchdog writes into a synthetic
// timeout callback.
func TimedOutMessage(p Probe) string {
	return fmt.Sprintf("watchdog: order %s exceeded its %s timeout budget", p.OrderNum, p.Timeout)
}

// Tick runs one probe of the watchdog state machine:
//   - If the callback object already exists, the worker (or a previous
//     watchdog tick) already settled this order: return done=true, no-op.
//   - Else if now is past start_time+timeout, write a synthetic timed_out
//     callback and return done=true.
//   - Else return done=false; the caller reschedules.
//
// The watchdog and the back-end worker may both attempt to write the
// callback; the object store's single-version key means whichever write
// lands last wins, by design.
func Tick(ctx context.Context, store interfaces.ObjectStore, p Probe, now time.Time) (done bool, err error) {
	key := objectstore.CallbackKey(p.RunID, p.OrderNum)

	exists, err := store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("probe callback for %s:%s: %w", p.RunID, p.OrderNum, err)
	}
	if exists {
		return true, nil
	}

	if !now.After(p.StartTime.Add(p.Timeout)) {
		return false, nil
	}

	body := result{Status: string(models.OrderStatusTimedOut), Log: TimedOutMessage(p)}
	data, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshal timed-out callback: %w", err)
	}

	if err := store.Put(ctx, key, strings.NewReader(string(data)), int64(len(data))); err != nil {
		return false, fmt.Errorf("write timed-out callback for %s:%s: %w", p.RunID, p.OrderNum, err)
	}

	return true, nil
}
