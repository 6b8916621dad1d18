package sfn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/railyard-run/railyard/internal/store/retry"
)

func TestIsThrottle_ThrottlingException(t *testing.T) {
	assert.True(t, isThrottle(errors.New("ThrottlingException: rate exceeded")))
}

func TestIsThrottle_ExecutionLimitExceeded(t *testing.T) {
	assert.True(t, isThrottle(errors.New("ExecutionLimitExceeded: too many concurrent executions")))
}

func TestIsThrottle_StateMachineDoesNotExistIsNotThrottle(t *testing.T) {
	assert.False(t, isThrottle(errors.New("StateMachineDoesNotExist: no such machine")))
}

func TestIsThrottle_NilIsNotThrottle(t *testing.T) {
	assert.False(t, isThrottle(nil))
}

func TestExecutionName_IsStableAndUnique(t *testing.T) {
	a := executionName("run-1", "0001")
	b := executionName("run-1", "0002")
	c := executionName("run-2", "0001")

	assert.Equal(t, "run-1-0001", a)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNew_SetsFields(t *testing.T) {
	r := New(nil, "arn:aws:states:us-east-1:111111111111:stateMachine:watchdog", retry.DefaultPolicy())
	assert.Equal(t, "arn:aws:states:us-east-1:111111111111:stateMachine:watchdog", r.stateMachineARN)
}
