package initiator

import (
	"fmt"

	"github.com/railyard-run/railyard/internal/models"
)

// Validate runs the initiator's fail-on-first-error checks against an
// incoming job. It returns the first validation failure, or nil.
func Validate(job *models.Job) error {
	if len(job.Orders) == 0 {
		return fmt.Errorf("job has no orders")
	}

	for i := range job.Orders {
		order := &job.Orders[i]
		name := order.OrderName
		if name == "" {
			name = fmt.Sprintf("order[%d]", i)
		}

		if len(order.Cmds) == 0 {
			return fmt.Errorf("order %s: cmds must be non-empty", name)
		}
		if order.Timeout <= 0 {
			return fmt.Errorf("order %s: timeout must be > 0", name)
		}

		target := order.ResolveExecutionTarget()
		switch target {
		case models.ExecutionTargetFunction, models.ExecutionTargetBuild, models.ExecutionTargetAgent:
		default:
			return fmt.Errorf("order %s: invalid execution_target %q", name, target)
		}

		if target == models.ExecutionTargetAgent {
			if order.SSMTargets == nil || (len(order.SSMTargets.InstanceIDs) == 0 && len(order.SSMTargets.Tags) == 0) {
				return fmt.Errorf("order %s: agent execution_target requires non-empty ssm_targets.instance_ids or ssm_targets.tags", name)
			}
		}

		// Orders without any code source are permitted only on the agent
		// back-end path, where the repackager buckets them into a fresh
		// empty directory instead of pulling from S3 or git.
		if order.S3Location == "" {
			repo := order.ResolveGitRepo(job)
			if repo == "" && target != models.ExecutionTargetAgent {
				return fmt.Errorf("order %s: no code source (s3_location or a resolvable git_repo)", name)
			}
			if repo != "" && job.GitTokenRef == "" {
				return fmt.Errorf("order %s: git source requires a job-level git_token_ref", name)
			}
		}
	}

	return nil
}
