package objectstore

import (
	"fmt"
	"regexp"
)

var callbackKeyPattern = regexp.MustCompile(`^tmp/callbacks/runs/([^/]+)/[^/]+/result\.json$`)

// CallbackKey returns the canonical callback object path for an order.
// Order "0000" is the distinguished initiator trigger.
func CallbackKey(runID, orderNum string) string {
	return fmt.Sprintf("tmp/callbacks/runs/%s/%s/result.json", runID, orderNum)
}

// ArchiveKey returns the canonical execution archive path for an order.
func ArchiveKey(runID, orderNum string) string {
	return fmt.Sprintf("tmp/exec/%s/%s/exec.zip", runID, orderNum)
}

// DoneKey returns the canonical terminal-artifact path for a run, within
// the done store (app.NewApp backs it with the same bucket as the
// callback objects).
func DoneKey(runID string) string {
	return fmt.Sprintf("%s/done", runID)
}

// InitTriggerOrderNum is the order_num reserved for the initiator's init
// trigger object.
const InitTriggerOrderNum = "0000"

// ParseRunIDFromCallbackKey extracts run_id from a callback object key of
// the form CallbackKey produces, the shape of the controller's trigger
// event.
func ParseRunIDFromCallbackKey(key string) (string, bool) {
	m := callbackKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	return m[1], true
}
