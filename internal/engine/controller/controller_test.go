package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/models"
)

type fakeOrderStore struct {
	mu      sync.Mutex
	records map[string]*models.OrderRecord
}

func newFakeOrderStore(recs ...*models.OrderRecord) *fakeOrderStore {
	f := &fakeOrderStore{records: map[string]*models.OrderRecord{}}
	for _, r := range recs {
		cp := *r
		f.records[r.Key()] = &cp
	}
	return f
}

func (f *fakeOrderStore) PutOrder(_ context.Context, rec *models.OrderRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.records[rec.Key()] = &cp
	return nil
}

func (f *fakeOrderStore) GetOrder(_ context.Context, runID, orderNum string) (*models.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[models.NewOrderRecordKey(runID, orderNum)], nil
}

func (f *fakeOrderStore) GetAllOrders(_ context.Context, runID string) ([]*models.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OrderRecord
	for _, r := range f.records {
		if r.RunID == runID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) UpdateOrderStatus(_ context.Context, runID, orderNum string, status models.OrderStatus, log, failureReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[models.NewOrderRecordKey(runID, orderNum)]
	if rec == nil {
		return fmt.Errorf("no such record")
	}
	rec.Status = status
	rec.Log = log
	rec.FailureReason = failureReason
	return nil
}

func (f *fakeOrderStore) MarkDispatched(_ context.Context, runID, orderNum, execHandle, watchdogHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[models.NewOrderRecordKey(runID, orderNum)]
	if rec == nil {
		return fmt.Errorf("no such record")
	}
	rec.Status = models.OrderStatusRunning
	rec.ExecHandle = execHandle
	rec.WatchdogHandle = watchdogHandle
	return nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []*models.OrderEvent
}

func (f *fakeEventStore) AppendEvent(_ context.Context, ev *models.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventStore) ListEvents(_ context.Context, traceID string) ([]*models.OrderEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OrderEvent
	for _, e := range f.events {
		if e.TraceID == traceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], nil
}

func (f *fakeObjectStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectStore) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example-presigned.invalid/" + key, nil
}

func (f *fakeObjectStore) putJSON(t *testing.T, key string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, f.Put(context.Background(), key, bytes.NewReader(data), int64(len(data))))
}

type fakeLockStore struct {
	mu     sync.Mutex
	status map[string]models.LockStatus
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{status: map[string]models.LockStatus{}}
}

func (f *fakeLockStore) Acquire(_ context.Context, runID, orchestratorID string, ttl int64, flowID, traceID string) (*models.Lock, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.status[runID]; ok && s == models.LockStatusActive {
		return nil, false, nil
	}
	f.status[runID] = models.LockStatusActive
	return &models.Lock{RunID: runID, OrchestratorID: orchestratorID, Status: models.LockStatusActive}, true, nil
}

func (f *fakeLockStore) Release(_ context.Context, runID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[runID] = models.LockStatusCompleted
	return nil
}

type fakeRunner struct {
	handle string
	err    error
}

func (f *fakeRunner) Dispatch(_ context.Context, _ interfaces.DispatchInput) (string, error) {
	return f.handle, f.err
}

type fakeWatchdogRecorder struct{}

func (fakeWatchdogRecorder) RecordHandle(_ context.Context, _, _ string, _ []byte) (string, error) {
	return "wd-handle", nil
}

func baseRecord(runID, orderNum, queueID string, deps []string, mustSucceed bool) *models.OrderRecord {
	return &models.OrderRecord{
		RunID:           runID,
		OrderNum:        orderNum,
		TraceID:         "trace1",
		FlowID:          "flow1",
		OrderName:       "order-" + orderNum,
		QueueID:         queueID,
		Status:          models.OrderStatusQueued,
		Cmds:            []string{"echo hi"},
		Dependencies:    deps,
		MustSucceed:     mustSucceed,
		Timeout:         60,
		ExecutionTarget: models.ExecutionTargetBuild,
	}
}

func TestProcess_ChainedSuccess(t *testing.T) {
	runID := "run-chain"
	o1 := baseRecord(runID, "0001", "0001", nil, true)
	o2 := baseRecord(runID, "0002", "0002", nil, true)
	o3 := baseRecord(runID, "0003", "0003", []string{"0001", "0002"}, true)
	o1.Status, o1.ExecHandle = models.OrderStatusRunning, "h1"
	o2.Status, o2.ExecHandle = models.OrderStatusRunning, "h2"

	orders := newFakeOrderStore(o1, o2, o3)
	events := &fakeEventStore{}
	objects := newFakeObjectStore()
	locks := newFakeLockStore()

	ctrl := New(Dependencies{
		Locks:          locks,
		Orders:         orders,
		Events:         events,
		Objects:        objects,
		Done:           objects,
		Watchdog:       fakeWatchdogRecorder{},
		Runners:        map[models.ExecutionTarget]interfaces.Runner{models.ExecutionTargetBuild: &fakeRunner{handle: "exec-handle"}},
		DispatchFanout: 10,
	})

	// O1 succeeds.
	objects.putJSON(t, "tmp/callbacks/runs/"+runID+"/0001/result.json", map[string]string{"status": "succeeded", "log": "ok"})
	res, err := ctrl.Process(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, res.Status)

	rec3, err := orders.GetOrder(context.Background(), runID, "0003")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusQueued, rec3.Status, "O3 still waits on O2")

	// O2 succeeds.
	objects.putJSON(t, "tmp/callbacks/runs/"+runID+"/0002/result.json", map[string]string{"status": "succeeded", "log": "ok"})
	res, err = ctrl.Process(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, res.Status)

	rec3, err = orders.GetOrder(context.Background(), runID, "0003")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRunning, rec3.Status, "O3 dispatched once both deps succeed")

	// O3 succeeds -> finalize.
	objects.putJSON(t, "tmp/callbacks/runs/"+runID+"/0003/result.json", map[string]string{"status": "succeeded", "log": "ok"})
	res, err = ctrl.Process(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, res.Status)
	assert.Equal(t, 3, res.Summary.Succeeded)

	doneBody, err := objects.Get(context.Background(), "run-chain/done")
	require.NoError(t, err)
	var done map[string]interface{}
	require.NoError(t, json.Unmarshal(doneBody, &done))
	assert.Equal(t, "succeeded", done["status"])
}

func TestProcess_CascadeFail(t *testing.T) {
	runID := "run-cascade"
	o1 := baseRecord(runID, "0001", "0001", nil, true)
	o2 := baseRecord(runID, "0002", "0002", []string{"0001"}, true)
	o1.Status = models.OrderStatusRunning

	orders := newFakeOrderStore(o1, o2)
	events := &fakeEventStore{}
	objects := newFakeObjectStore()
	locks := newFakeLockStore()

	ctrl := New(Dependencies{
		Locks:   locks,
		Orders:  orders,
		Events:  events,
		Objects: objects,
		Done:    objects,
		Runners: map[models.ExecutionTarget]interfaces.Runner{},
	})

	objects.putJSON(t, "tmp/callbacks/runs/"+runID+"/0001/result.json", map[string]string{"status": "failed", "log": "boom"})
	res, err := ctrl.Process(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, res.Status)
	assert.Equal(t, "failed", lastDoneStatus(t, objects, runID))

	rec2, err := orders.GetOrder(context.Background(), runID, "0002")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, rec2.Status)
	assert.Equal(t, models.FailureReasonDependencyFailed, rec2.FailureReason)
}

func TestProcess_LockContention(t *testing.T) {
	runID := "run-lock"
	orders := newFakeOrderStore(baseRecord(runID, "0001", "0001", nil, true))
	locks := newFakeLockStore()
	locks.status[runID] = models.LockStatusActive

	ctrl := New(Dependencies{
		Locks:   locks,
		Orders:  orders,
		Events:  &fakeEventStore{},
		Objects: newFakeObjectStore(),
		Done:    newFakeObjectStore(),
		Runners: map[models.ExecutionTarget]interfaces.Runner{},
	})

	res, err := ctrl.Process(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
}

func TestProcess_NoOrders(t *testing.T) {
	ctrl := New(Dependencies{
		Locks:   newFakeLockStore(),
		Orders:  newFakeOrderStore(),
		Events:  &fakeEventStore{},
		Objects: newFakeObjectStore(),
		Done:    newFakeObjectStore(),
		Runners: map[models.ExecutionTarget]interfaces.Runner{},
	})

	res, err := ctrl.Process(context.Background(), "run-empty")
	require.NoError(t, err)
	assert.Equal(t, StatusNoOrders, res.Status)
}

func TestProcess_WatchdogTimeout(t *testing.T) {
	runID := "run-timeout"
	o1 := baseRecord(runID, "0001", "0001", nil, true)
	o1.Status = models.OrderStatusRunning

	orders := newFakeOrderStore(o1)
	objects := newFakeObjectStore()

	ctrl := New(Dependencies{
		Locks:   newFakeLockStore(),
		Orders:  orders,
		Events:  &fakeEventStore{},
		Objects: objects,
		Done:    objects,
		Runners: map[models.ExecutionTarget]interfaces.Runner{},
	})

	objects.putJSON(t, "tmp/callbacks/runs/"+runID+"/0001/result.json", map[string]string{"status": "timed_out", "log": "watchdog: timeout"})
	res, err := ctrl.Process(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, res.Status)
	assert.Equal(t, "timed_out", lastDoneStatus(t, objects, runID))
}

func lastDoneStatus(t *testing.T, objects *fakeObjectStore, runID string) string {
	t.Helper()
	body, err := objects.Get(context.Background(), runID+"/done")
	require.NoError(t, err)
	var done map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &done))
	s, _ := done["status"].(string)
	return s
}
