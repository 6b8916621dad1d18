package interfaces

import "context"

// WatchdogHandleRecorder records the watchdog state-machine handle the
// dispatcher associates with a dispatched order. The engine only records
// the handle for later reference; driving the state machine itself is
// out of scope.
type WatchdogHandleRecorder interface {
	RecordHandle(ctx context.Context, runID, orderNum string, input []byte) (handle string, err error)
}
