package interfaces

import (
	"context"

	"github.com/railyard-run/railyard/internal/models"
)

// DispatchInput is what the Dispatcher hands a back-end Runner for a single
// ready order.
type DispatchInput struct {
	RunID       string
	OrderNum    string
	ArchivePath string
	EnvelopeKeyRef string
	SSMTargets  *models.SSMTargets // only populated for the agent back-end
}

// Runner dispatches one order to a concrete execution back-end and returns
// an opaque handle the engine records but never interprets.
type Runner interface {
	Dispatch(ctx context.Context, in DispatchInput) (handle string, err error)
}
