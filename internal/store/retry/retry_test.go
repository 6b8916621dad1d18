package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errThrottled = errors.New("throttled")
var errHard = errors.New("access denied")

func alwaysThrottle(err error) bool { return errors.Is(err, errThrottled) }

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 4}, alwaysThrottle, func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThrottleThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 4}, alwaysThrottle, func() error {
		calls++
		if calls < 3 {
			return errThrottled
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonThrottleErrorPropagatesImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 4}, alwaysThrottle, func() error {
		calls++
		return errHard
	})
	assert.ErrorIs(t, err, errHard)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 4}, alwaysThrottle, func() error {
		calls++
		return errThrottled
	})
	assert.ErrorIs(t, err, errThrottled)
	assert.Equal(t, 4, calls)
}
