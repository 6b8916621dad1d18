// Package sfn implements interfaces.WatchdogHandleRecorder over AWS Step
// Functions: starting one execution of the watchdog state machine per
// dispatched order and returning its execution ARN as the handle. The
// engine never drives this state machine itself; it only starts it and
// persists the handle on the order record.
package sfn

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"

	"github.com/railyard-run/railyard/internal/store/retry"
)

// Recorder implements interfaces.WatchdogHandleRecorder over AWS Step Functions.
type Recorder struct {
	client          *sfn.Client
	stateMachineARN string
	policy          retry.Policy
}

// New constructs a Recorder bound to a single watchdog state machine shared
// across every order; each dispatched order starts its own named execution.
func New(client *sfn.Client, stateMachineARN string, policy retry.Policy) *Recorder {
	return &Recorder{client: client, stateMachineARN: stateMachineARN, policy: policy}
}

func isThrottle(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "ThrottlingException") || strings.Contains(err.Error(), "ExecutionLimitExceeded")
}

// RecordHandle starts a watchdog execution for the order and returns its
// execution ARN. Execution names must be unique per state machine, so it is
// derived from runID/orderNum; a retry that lands on an already-started
// execution is tolerated by returning the existing ARN.
func (r *Recorder) RecordHandle(ctx context.Context, runID, orderNum string, input []byte) (string, error) {
	name := executionName(runID, orderNum)

	var out *sfn.StartExecutionOutput
	err := retry.Do(ctx, r.policy, isThrottle, func() error {
		var startErr error
		out, startErr = r.client.StartExecution(ctx, &sfn.StartExecutionInput{
			StateMachineArn: aws.String(r.stateMachineARN),
			Name:            aws.String(name),
			Input:           aws.String(string(input)),
		})
		if startErr != nil && strings.Contains(startErr.Error(), "ExecutionAlreadyExists") {
			return nil
		}
		return startErr
	})
	if err != nil {
		return "", fmt.Errorf("start watchdog execution for order %s:%s: %w", runID, orderNum, err)
	}
	if out == nil || out.ExecutionArn == nil {
		return strings.Replace(r.stateMachineARN, ":stateMachine:", ":execution:", 1) + ":" + name, nil
	}

	return *out.ExecutionArn, nil
}

func executionName(runID, orderNum string) string {
	return fmt.Sprintf("%s-%s", runID, orderNum)
}
