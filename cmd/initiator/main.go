// Command initiator is the job-submission entrypoint: it reads a submit
// request from stdin, decodes and validates the job,
// repackages and uploads every order, seeds the durable order records, and
// writes the result envelope to stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/railyard-run/railyard/internal/app"
	"github.com/railyard-run/railyard/internal/common"
	"github.com/railyard-run/railyard/internal/engine/errkind"
)

// request is the submit payload this process reads from stdin.
type request struct {
	JobB64 string `json:"job_b64"`
}

// response is the §6 exit envelope this process writes to stdout.
type response struct {
	Status       string `json:"status"`
	RunID        string `json:"run_id,omitempty"`
	TraceID      string `json:"trace_id,omitempty"`
	FlowID       string `json:"flow_id,omitempty"`
	DoneEndpoint string `json:"done_endpt,omitempty"`
	SearchTag    string `json:"search_tag,omitempty"`
	Error        string `json:"error,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	a, err := app.NewApp(ctx, os.Getenv("RAILYARD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize initiator: %v\n", err)
		return 1
	}
	common.PrintBanner("initiator", a.Config, a.Logger)
	defer common.PrintShutdownBanner("initiator", a.Logger)

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

	result, err := a.Initiator.Submit(ctx, req.JobB64)
	if err != nil {
		a.Logger.Error().Err(err).Msg("submit failed")
		writeResponse(response{Status: "error", Error: err.Error()})
		return exitCodeFor(err)
	}

	writeResponse(response{
		Status:       "ok",
		RunID:        result.RunID,
		TraceID:      result.TraceID,
		FlowID:       result.FlowID,
		DoneEndpoint: result.DoneEndpoint,
		SearchTag:    result.SearchTag,
	})
	return 0
}

// exitCodeFor mirrors the HTTP-gateway status code §6 describes the
// exit envelope is wrapped in when fronted by an HTTP gateway: a
// validation error is the caller's fault (400), everything else is ours.
func exitCodeFor(err error) int {
	var verr *errkind.ValidationError
	if errors.As(err, &verr) {
		return 2
	}
	return 1
}

func writeResponse(r response) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r)
}
