// Package codebuild implements the build execution back-end: dispatching a
// ready order to an AWS CodeBuild project via StartBuild, overriding the
// environment variables for that one run; the project's own source
// settings are left as configured.
package codebuild

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"golang.org/x/time/rate"

	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/store/retry"
)

// DefaultRateLimit caps StartBuild calls per second, well under the
// account-level concurrent-build ceiling CodeBuild enforces.
const DefaultRateLimit = 5

// Runner implements interfaces.Runner over AWS CodeBuild.
type Runner struct {
	client         *codebuild.Client
	projectPrefix  string
	internalBucket string
	policy         retry.Policy
	limiter        *rate.Limiter
}

// New constructs a Runner bound to a single shared CodeBuild project per
// environment (projectPrefix + "worker"); every order starts a distinct
// build of that project with its own environment variable overrides.
func New(client *codebuild.Client, projectPrefix, internalBucket string, policy retry.Policy) *Runner {
	return &Runner{
		client:         client,
		projectPrefix:  projectPrefix,
		internalBucket: internalBucket,
		policy:         policy,
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
}

// isThrottle classifies CodeBuild's throttling responses as retryable.
// The CodeBuild SDK does not expose a distinct typed throttle exception
// (unlike DynamoDB/S3); its throttle responses surface only as a generic
// smithy error with this code.
func isThrottle(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "ThrottlingException") || strings.Contains(err.Error(), "TooManyRequestsException")
}

// Dispatch starts a build, passing the archive location and envelope-key
// reference as environment variable overrides the buildspec reads.
func (r *Runner) Dispatch(ctx context.Context, in interfaces.DispatchInput) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	projectName := r.projectPrefix + "worker"

	envOverrides := []types.EnvironmentVariable{
		{Name: aws.String("ARCHIVE_LOCATION"), Value: aws.String(in.ArchivePath), Type: types.EnvironmentVariableTypePlaintext},
		{Name: aws.String("INTERNAL_BUCKET"), Value: aws.String(r.internalBucket), Type: types.EnvironmentVariableTypePlaintext},
		{Name: aws.String("RUN_ID"), Value: aws.String(in.RunID), Type: types.EnvironmentVariableTypePlaintext},
		{Name: aws.String("ORDER_NUM"), Value: aws.String(in.OrderNum), Type: types.EnvironmentVariableTypePlaintext},
	}
	if in.EnvelopeKeyRef != "" {
		envOverrides = append(envOverrides, types.EnvironmentVariable{
			Name: aws.String("ENVELOPE_KEY_REF"), Value: aws.String(in.EnvelopeKeyRef), Type: types.EnvironmentVariableTypePlaintext,
		})
	}

	var out *codebuild.StartBuildOutput
	err := retry.Do(ctx, r.policy, isThrottle, func() error {
		var startErr error
		out, startErr = r.client.StartBuild(ctx, &codebuild.StartBuildInput{
			ProjectName:               aws.String(projectName),
			EnvironmentVariablesOverride: envOverrides,
		})
		return startErr
	})
	if err != nil {
		return "", fmt.Errorf("start build %s for order %s:%s: %w", projectName, in.RunID, in.OrderNum, err)
	}
	if out.Build == nil || out.Build.Id == nil {
		return "", fmt.Errorf("start build %s for order %s:%s: empty build id", projectName, in.RunID, in.OrderNum)
	}

	return *out.Build.Id, nil
}
