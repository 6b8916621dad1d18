// Command watchdog is the per-order timeout probe's single-tick
// entrypoint. It is invoked repeatedly — by the watchdog state machine
// the dispatcher starts per order — with the dispatched order's Probe
// as input, and reports whether the order has settled.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/railyard-run/railyard/internal/app"
	"github.com/railyard-run/railyard/internal/common"
	"github.com/railyard-run/railyard/internal/engine/watchdog"
)

type response struct {
	Status string `json:"status"`
	Done   bool   `json:"done"`
	Error  string `json:"error,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	a, err := app.NewApp(ctx, os.Getenv("RAILYARD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize watchdog: %v\n", err)
		return 1
	}
	common.PrintBanner("watchdog", a.Config, a.Logger)
	defer common.PrintShutdownBanner("watchdog", a.Logger)

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		writeResponse(response{Status: "error", Error: fmt.Sprintf("read request: %v", err)})
		return 1
	}

	var probe watchdog.Probe
	if err := json.Unmarshal(raw, &probe); err != nil {
		writeResponse(response{Status: "error", Error: fmt.Sprintf("decode probe: %v", err)})
		return 1
	}

	done, err := watchdog.Tick(ctx, a.Objects, probe, time.Now())
	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", probe.RunID).Str("order_num", probe.OrderNum).Msg("watchdog tick failed")
		writeResponse(response{Status: "error", Error: err.Error()})
		return 1
	}

	writeResponse(response{Status: "ok", Done: done})
	return 0
}

func writeResponse(r response) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r)
}
