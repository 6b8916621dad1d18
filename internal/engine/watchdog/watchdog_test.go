package watchdog

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + key, nil
}

func TestTick_CallbackAlreadyExists_DoneNoop(t *testing.T) {
	store := newFakeStore()
	p := Probe{RunID: "run-1", OrderNum: "0001", Timeout: 60 * time.Second, StartTime: time.Unix(0, 0)}
	require.NoError(t, store.Put(context.Background(), "tmp/callbacks/runs/run-1/0001/result.json", strings.NewReader("{}"), 2))

	done, err := Tick(context.Background(), store, p, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.True(t, done)
}

func TestTick_BeforeTimeout_NotDone(t *testing.T) {
	store := newFakeStore()
	start := time.Unix(1_000_000, 0)
	p := Probe{RunID: "run-1", OrderNum: "0001", Timeout: 60 * time.Second, StartTime: start}

	done, err := Tick(context.Background(), store, p, start.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, done)
	exists, _ := store.Exists(context.Background(), "tmp/callbacks/runs/run-1/0001/result.json")
	assert.False(t, exists)
}

func TestTick_AfterTimeout_WritesSyntheticCallbackAndDone(t *testing.T) {
	store := newFakeStore()
	start := time.Unix(1_000_000, 0)
	p := Probe{RunID: "run-1", OrderNum: "0001", Timeout: 60 * time.Second, StartTime: start}

	done, err := Tick(context.Background(), store, p, start.Add(120*time.Second))
	require.NoError(t, err)
	assert.True(t, done)

	data, err := store.Get(context.Background(), "tmp/callbacks/runs/run-1/0001/result.json")
	require.NoError(t, err)

	var body result
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "timed_out", body.Status)
	assert.NotEmpty(t, body.Log)
}

func TestTick_ExactlyAtDeadline_NotYetTimedOut(t *testing.T) {
	store := newFakeStore()
	start := time.Unix(1_000_000, 0)
	p := Probe{RunID: "run-1", OrderNum: "0001", Timeout: 60 * time.Second, StartTime: start}

	done, err := Tick(context.Background(), store, p, start.Add(60*time.Second))
	require.NoError(t, err)
	assert.False(t, done)
}
