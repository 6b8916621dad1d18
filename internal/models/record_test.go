package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderRecord_Key(t *testing.T) {
	r := &OrderRecord{RunID: "run-1", OrderNum: "0002"}
	assert.Equal(t, "run-1:0002", r.Key())
}

func TestOrderRecord_IsTerminal(t *testing.T) {
	cases := []struct {
		status   OrderStatus
		terminal bool
	}{
		{OrderStatusQueued, false},
		{OrderStatusRunning, false},
		{OrderStatusSucceeded, true},
		{OrderStatusFailed, true},
		{OrderStatusTimedOut, true},
	}

	for _, c := range cases {
		r := &OrderRecord{Status: c.status}
		assert.Equalf(t, c.terminal, r.IsTerminal(), "status %s", c.status)
	}
}

func TestNewTTL(t *testing.T) {
	assert.Equal(t, int64(86400), NewTTL(0))
	assert.Equal(t, int64(1000+86400), NewTTL(1000))
}

func TestOrderNum_ZeroPadded(t *testing.T) {
	assert.Equal(t, "0001", OrderNum(1))
	assert.Equal(t, "0042", OrderNum(42))
	assert.Equal(t, "9999", OrderNum(9999))
}
