// Package models holds the wire and durable data shapes shared across the
// initiator, repackager, controller, evaluator, and watchdog.
package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ExecutionTarget selects the back-end an order dispatches to.
type ExecutionTarget string

const (
	ExecutionTargetFunction ExecutionTarget = "function"
	ExecutionTargetBuild    ExecutionTarget = "build"
	ExecutionTargetAgent    ExecutionTarget = "agent"
)

// JobEventOrderName is the reserved order_name that namespaces job-level
// events in the order_events table; it never refers to an OrderRecord.
const JobEventOrderName = "_job"

// Job is the transient, submission-only payload a caller hands the
// initiator. It is encoded for transport as base64(JSON).
type Job struct {
	CallerIdentity string `json:"caller_identity"`

	GitRepo      string `json:"git_repo,omitempty"`
	GitTokenRef  string `json:"git_token_ref,omitempty"`
	GitSSHKeyRef string `json:"git_ssh_key_ref,omitempty"`
	CommitHash   string `json:"commit_hash,omitempty"`

	Orders []Order `json:"orders"`

	PRLink string `json:"pr_link,omitempty"`

	FlowLabel      string `json:"flow_label,omitempty"`      // default "exec"
	PresignExpiry  int    `json:"presign_expiry,omitempty"`  // seconds, default 7200
	JobTimeout     int    `json:"job_timeout,omitempty"`     // seconds, default 3600
}

// SSMTargets identifies the agent back-end's Run Command audience.
type SSMTargets struct {
	InstanceIDs []string          `json:"instance_ids,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Order is a single unit of execution within a Job.
type Order struct {
	Cmds      []string `json:"cmds"`
	Timeout   int      `json:"timeout"`
	OrderName string   `json:"order_name,omitempty"`

	S3Location string `json:"s3_location,omitempty"`
	GitRepo    string `json:"git_repo,omitempty"`
	GitFolder  string `json:"git_folder,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`

	EnvVars            map[string]string `json:"env_vars,omitempty"`
	SSMPaths           []string          `json:"ssm_paths,omitempty"`
	SecretManagerPaths []string          `json:"secret_manager_paths,omitempty"`

	ExecutionTarget ExecutionTarget `json:"execution_target,omitempty"` // default "build"

	// UseLambda is the legacy boolean discriminator. When ExecutionTarget is
	// also set, ExecutionTarget wins; see ResolveExecutionTarget.
	UseLambda *bool `json:"use_lambda,omitempty"`

	QueueID      string   `json:"queue_id,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`

	// MustSucceed defaults to true; nil means "not specified" so the zero
	// value doesn't silently mean false.
	MustSucceed *bool `json:"must_succeed,omitempty"`

	SopsKey string `json:"sops_key,omitempty"`

	SSMTargets *SSMTargets `json:"ssm_targets,omitempty"`
}

// ResolveMustSucceed returns the effective must_succeed value, defaulting to true.
func (o *Order) ResolveMustSucceed() bool {
	if o.MustSucceed == nil {
		return true
	}
	return *o.MustSucceed
}

// ResolveExecutionTarget returns the effective back-end discriminator.
// execution_target wins when both it and the legacy use_lambda are present;
// use_lambda=true maps to "function", use_lambda=false maps to "build".
func (o *Order) ResolveExecutionTarget() ExecutionTarget {
	if o.ExecutionTarget != "" {
		return o.ExecutionTarget
	}
	if o.UseLambda != nil {
		if *o.UseLambda {
			return ExecutionTargetFunction
		}
		return ExecutionTargetBuild
	}
	return ExecutionTargetBuild
}

// ResolveQueueID returns the order's queue_id, defaulting to the zero-padded
// ordinal index when unset.
func (o *Order) ResolveQueueID(index int) string {
	if o.QueueID != "" {
		return o.QueueID
	}
	return fmt.Sprintf("%04d", index+1)
}

// ResolveGitRepo returns the order's own git source, falling back to the
// job-level source.
func (o *Order) ResolveGitRepo(job *Job) string {
	if o.GitRepo != "" {
		return o.GitRepo
	}
	return job.GitRepo
}

// ResolveCommitHash returns the order's own commit pin, falling back to the
// job-level pin.
func (o *Order) ResolveCommitHash(job *Job) string {
	if o.CommitHash != "" {
		return o.CommitHash
	}
	return job.CommitHash
}

// ResolveFlowLabel returns the job's flow label, defaulting to "exec".
func (j *Job) ResolveFlowLabel() string {
	if j.FlowLabel != "" {
		return j.FlowLabel
	}
	return "exec"
}

// ResolvePresignExpiry returns the job's presign TTL in seconds, default 7200.
func (j *Job) ResolvePresignExpiry() int {
	if j.PresignExpiry > 0 {
		return j.PresignExpiry
	}
	return 7200
}

// ResolveJobTimeout returns the job's overall timeout in seconds, default 3600.
func (j *Job) ResolveJobTimeout() int {
	if j.JobTimeout > 0 {
		return j.JobTimeout
	}
	return 3600
}

// ToBase64 encodes the Job as base64(JSON) for transport.
func (j *Job) ToBase64() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// JobFromBase64 decodes a base64(JSON) payload into a Job.
func JobFromBase64(encoded string) (*Job, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode job base64: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}
