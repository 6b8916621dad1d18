// Package dynamo implements the orders/order_events/locks table adapters
// over Amazon DynamoDB, grounded on the conditional-write dequeue pattern
// the teacher's SurrealDB job queue used for the same at-most-one-winner
// guarantee.
package dynamo

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/railyard-run/railyard/internal/store/retry"
)

// Client wraps a dynamodb.Client with the table names and retry policy
// shared by the three table adapters.
type Client struct {
	db     *dynamodb.Client
	policy retry.Policy

	OrdersTable      string
	OrderEventsTable string
	LocksTable       string
}

// New constructs a Client bound to the three orchestrator tables.
func New(db *dynamodb.Client, ordersTable, orderEventsTable, locksTable string, policy retry.Policy) *Client {
	return &Client{
		db:               db,
		policy:           policy,
		OrdersTable:      ordersTable,
		OrderEventsTable: orderEventsTable,
		LocksTable:       locksTable,
	}
}

// isThrottle classifies DynamoDB's throttling error family as retryable;
// every other error (ConditionalCheckFailed, ResourceNotFound, access
// errors) propagates immediately.
func isThrottle(err error) bool {
	if err == nil {
		return false
	}
	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return true
	}
	var limit *types.RequestLimitExceeded
	if errors.As(err, &limit) {
		return true
	}
	// smithy errors surface throttling with this code on some operations
	// without a typed exception in this SDK version.
	return strings.Contains(err.Error(), "ThrottlingException")
}
