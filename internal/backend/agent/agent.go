// Package agent implements the remote-command execution back-end:
// dispatching a ready order to one or more managed instances via AWS SSM
// Run Command.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"golang.org/x/time/rate"

	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/store/retry"
)

// DefaultRateLimit caps SendCommand calls per second, under SSM's default
// account-level Run Command API throttle.
const DefaultRateLimit = 10

// defaultDocument is the SSM document the agent back-end runs; it is
// expected to download and extract ARCHIVE_LOCATION, export the decrypted
// env, and run the order's cmds.json, following the worker contract every
// back-end's dispatched command follows.
const defaultDocument = "AWS-RunShellScript"

// Runner implements interfaces.Runner over AWS SSM Run Command.
type Runner struct {
	client         *ssm.Client
	documentName   string
	internalBucket string
	policy         retry.Policy
	limiter        *rate.Limiter
}

// New constructs a Runner. An empty documentName falls back to
// defaultDocument, the agent back-end's default document identifier.
func New(client *ssm.Client, documentName, internalBucket string, policy retry.Policy) *Runner {
	if documentName == "" {
		documentName = defaultDocument
	}
	return &Runner{
		client:         client,
		documentName:   documentName,
		internalBucket: internalBucket,
		policy:         policy,
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
}

func isThrottle(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "ThrottlingException") || strings.Contains(err.Error(), "TooManyUpdates")
}

// Dispatch sends the run command to the order's configured SSM targets
// and returns the SSM command id as the opaque execution handle.
func (r *Runner) Dispatch(ctx context.Context, in interfaces.DispatchInput) (string, error) {
	if in.SSMTargets == nil || (len(in.SSMTargets.InstanceIDs) == 0 && len(in.SSMTargets.Tags) == 0) {
		return "", fmt.Errorf("agent dispatch for order %s:%s: no ssm_targets", in.RunID, in.OrderNum)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	script := fmt.Sprintf(
		"railyard-worker --archive %q --bucket %q --run-id %q --order-num %q --envelope-key-ref %q",
		in.ArchivePath, r.internalBucket, in.RunID, in.OrderNum, in.EnvelopeKeyRef,
	)

	input := &ssm.SendCommandInput{
		DocumentName: aws.String(r.documentName),
		Parameters:   map[string][]string{"commands": {script}},
	}

	if len(in.SSMTargets.InstanceIDs) > 0 {
		input.InstanceIds = in.SSMTargets.InstanceIDs
	} else {
		for k, v := range in.SSMTargets.Tags {
			input.Targets = append(input.Targets, types.Target{
				Key:    aws.String("tag:" + k),
				Values: []string{v},
			})
		}
	}

	var out *ssm.SendCommandOutput
	err := retry.Do(ctx, r.policy, isThrottle, func() error {
		var sendErr error
		out, sendErr = r.client.SendCommand(ctx, input)
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("send command for order %s:%s: %w", in.RunID, in.OrderNum, err)
	}
	if out.Command == nil || out.Command.CommandId == nil {
		return "", fmt.Errorf("send command for order %s:%s: empty command id", in.RunID, in.OrderNum)
	}

	return *out.Command.CommandId, nil
}
