// Package lambda implements the function execution back-end: dispatching a
// ready order to AWS Lambda's asynchronous Invoke API.
package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"golang.org/x/time/rate"

	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/store/retry"
)

// DefaultRateLimit caps Invoke calls per second, keeping one noisy run from
// tripping the function's own concurrent-invocation throttle.
const DefaultRateLimit = 20

// invokePayload is the event body the function runner receives, matching
// the worker contract every back-end's dispatched command follows.
type invokePayload struct {
	ArchiveLocation string `json:"archive_location"`
	InternalBucket  string `json:"internal_bucket"`
	EnvelopeKeyRef  string `json:"envelope_key_ref,omitempty"`
}

// Runner implements interfaces.Runner over AWS Lambda.
type Runner struct {
	client         *lambda.Client
	functionPrefix string
	internalBucket string
	policy         retry.Policy
	limiter        *rate.Limiter
}

// New constructs a Runner. functionPrefix is prepended to a fixed function
// name since every order on the function back-end runs the same worker
// image, parameterized by the dispatch payload.
func New(client *lambda.Client, functionPrefix, internalBucket string, policy retry.Policy) *Runner {
	return &Runner{
		client:         client,
		functionPrefix: functionPrefix,
		internalBucket: internalBucket,
		policy:         policy,
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
}

func isThrottle(err error) bool {
	if err == nil {
		return false
	}
	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return true
	}
	return strings.Contains(err.Error(), "ThrottlingException")
}

// Dispatch invokes the worker function asynchronously and returns its
// request id as the opaque execution handle. If the response carries no
// request id, the handle is "lambda:<function>:<status code>".
func (r *Runner) Dispatch(ctx context.Context, in interfaces.DispatchInput) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(invokePayload{
		ArchiveLocation: in.ArchivePath,
		InternalBucket:  r.internalBucket,
		EnvelopeKeyRef:  in.EnvelopeKeyRef,
	})
	if err != nil {
		return "", fmt.Errorf("marshal invoke payload: %w", err)
	}

	functionName := r.functionPrefix + "worker"

	var out *lambda.InvokeOutput
	err = retry.Do(ctx, r.policy, isThrottle, func() error {
		var invokeErr error
		out, invokeErr = r.client.Invoke(ctx, &lambda.InvokeInput{
			FunctionName:   aws.String(functionName),
			InvocationType: types.InvocationTypeEvent,
			Payload:        payload,
		})
		return invokeErr
	})
	if err != nil {
		return "", fmt.Errorf("invoke %s for order %s:%s: %w", functionName, in.RunID, in.OrderNum, err)
	}

	if requestID, ok := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata); ok && requestID != "" {
		return requestID, nil
	}
	return fmt.Sprintf("lambda:%s:%d", functionName, out.StatusCode), nil
}
