// Command controller is the per-callback orchestration entrypoint.
// It reads a trigger event from stdin — either a direct
// run_id or the callback object key a storage-event notification would
// carry — runs one controller pass, and writes the result envelope to
// stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/railyard-run/railyard/internal/app"
	"github.com/railyard-run/railyard/internal/common"
	"github.com/railyard-run/railyard/internal/store/objectstore"
)

// request is the trigger payload this process reads from stdin. At least
// one of RunID or ObjectKey must be set (RunID wins when both are);
// ObjectKey models a storage-event notification carrying the callback
// object's key.
type request struct {
	RunID     string `json:"run_id,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}

type response struct {
	Status  string      `json:"status"`
	RunID   string      `json:"run_id,omitempty"`
	Summary interface{} `json:"summary,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	a, err := app.NewApp(ctx, os.Getenv("RAILYARD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize controller: %v\n", err)
		return 1
	}
	common.PrintBanner("controller", a.Config, a.Logger)
	defer common.PrintShutdownBanner("controller", a.Logger)

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		writeResponse(response{Status: "error", Error: fmt.Sprintf("read request: %v", err)})
		return 1
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeResponse(response{Status: "error", Error: fmt.Sprintf("decode request: %v", err)})
		return 1
	}

	runID, err := resolveRunID(req)
	if err != nil {
		writeResponse(response{Status: "error", Error: err.Error()})
		return 1
	}

	result, err := a.Controller.Process(ctx, runID)
	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", runID).Msg("controller pass failed")
		writeResponse(response{Status: "error", RunID: runID, Error: err.Error()})
		return 1
	}

	writeResponse(response{Status: result.Status, RunID: result.RunID, Summary: result.Summary})
	return 0
}

// resolveRunID picks the run_id a controller pass should act on: the
// direct field if set, otherwise the run id embedded in a callback
// object key. It fails only when neither field is set or the object key
// is not a callback key.
func resolveRunID(req request) (string, error) {
	if req.RunID != "" {
		return req.RunID, nil
	}
	if req.ObjectKey != "" {
		runID, ok := objectstore.ParseRunIDFromCallbackKey(req.ObjectKey)
		if !ok {
			return "", fmt.Errorf("object key %q is not a callback key", req.ObjectKey)
		}
		return runID, nil
	}
	return "", fmt.Errorf("request must set run_id or object_key")
}

func writeResponse(r response) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r)
}
