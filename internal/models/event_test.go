package models

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEventSK_LexicographicOrderIsTemporal(t *testing.T) {
	sks := []string{
		NewEventSK("build", 3),
		NewEventSK("build", 1),
		NewEventSK("build", 2),
	}
	sorted := append([]string(nil), sks...)
	sort.Strings(sorted)

	assert.Equal(t, []string{
		NewEventSK("build", 1),
		NewEventSK("build", 2),
		NewEventSK("build", 3),
	}, sorted)
}

func TestNewEventSK_SameSecondDistinctNanosDontCollide(t *testing.T) {
	a := NewEventSK("build", 1_700_000_000_100000000)
	b := NewEventSK("build", 1_700_000_000_200000000)
	assert.NotEqual(t, a, b)
}

func TestNewLockKey(t *testing.T) {
	assert.Equal(t, "lock:run-1", NewLockKey("run-1"))
}
