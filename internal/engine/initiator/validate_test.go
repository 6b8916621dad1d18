package initiator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/railyard-run/railyard/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestValidate_NoOrders(t *testing.T) {
	err := Validate(&models.Job{})
	assert.Error(t, err)
}

func TestValidate_EmptyCmds(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{Timeout: 10}}}
	assert.ErrorContains(t, Validate(job), "cmds")
}

func TestValidate_ZeroTimeout(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{Cmds: []string{"x"}, Timeout: 0, S3Location: "s3://bucket/key"}}}
	assert.ErrorContains(t, Validate(job), "timeout")
}

func TestValidate_InvalidExecutionTarget(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{
		Cmds:            []string{"x"},
		Timeout:         10,
		S3Location:      "s3://bucket/key",
		ExecutionTarget: "carrier-pigeon",
	}}}
	assert.ErrorContains(t, Validate(job), "execution_target")
}

func TestValidate_AgentRequiresSSMTargets(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{
		Cmds:            []string{"x"},
		Timeout:         10,
		S3Location:      "s3://bucket/key",
		ExecutionTarget: models.ExecutionTargetAgent,
	}}}
	assert.ErrorContains(t, Validate(job), "ssm_targets")
}

func TestValidate_AgentWithInstanceIDs_OK(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{
		Cmds:            []string{"x"},
		Timeout:         10,
		S3Location:      "s3://bucket/key",
		ExecutionTarget: models.ExecutionTargetAgent,
		SSMTargets:      &models.SSMTargets{InstanceIDs: []string{"i-123"}},
	}}}
	assert.NoError(t, Validate(job))
}

func TestValidate_NoCodeSource(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{Cmds: []string{"x"}, Timeout: 10}}}
	assert.ErrorContains(t, Validate(job), "code source")
}

func TestValidate_GitRepoWithoutTokenRef(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{
		Cmds:    []string{"x"},
		Timeout: 10,
		GitRepo: "https://github.com/example/repo.git",
	}}}
	assert.ErrorContains(t, Validate(job), "git_token_ref")
}

func TestValidate_JobLevelGitRepoSatisfiesOrder(t *testing.T) {
	job := &models.Job{
		GitRepo:     "https://github.com/example/repo.git",
		GitTokenRef: "/railyard/git-token",
		Orders: []models.Order{{
			Cmds:    []string{"x"},
			Timeout: 10,
		}},
	}
	assert.NoError(t, Validate(job))
}

func TestValidate_UseLambdaLegacyFieldDoesNotBreakValidation(t *testing.T) {
	job := &models.Job{Orders: []models.Order{{
		Cmds:       []string{"x"},
		Timeout:    10,
		S3Location: "s3://bucket/key",
		UseLambda:  boolPtr(true),
	}}}
	assert.NoError(t, Validate(job))
}
