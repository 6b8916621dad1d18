package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/railyard-run/railyard/internal/models"
	"github.com/railyard-run/railyard/internal/store/retry"
)

type lockItem struct {
	Pk string `dynamodbav:"pk"`
	models.Lock
}

// Acquire takes the per-run lock with a conditional write: it succeeds iff
// no lock item exists for run_id, or the existing item's status is
// "completed". This mirrors the teacher's SurrealDB job-queue Dequeue,
// which used the same select-then-conditional-update shape to guarantee a
// single winner — here the condition is expressed directly in the
// PutItem call instead of a prior read.
func (c *Client) Acquire(ctx context.Context, runID, orchestratorID string, ttl int64, flowID, traceID string) (*models.Lock, bool, error) {
	now := time.Now().Unix()
	lock := models.Lock{
		RunID:          runID,
		OrchestratorID: orchestratorID,
		Status:         models.LockStatusActive,
		AcquiredAt:     now,
		TTL:            now + ttl,
		FlowID:         flowID,
		TraceID:        traceID,
	}

	item, err := attributevalue.MarshalMap(lockItem{Pk: lock.Key(), Lock: lock})
	if err != nil {
		return nil, false, fmt.Errorf("marshal lock item: %w", err)
	}

	condition := "attribute_not_exists(pk) OR #status = :completed"
	names := map[string]string{"#status": "status"}
	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":completed": models.LockStatusCompleted,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal lock condition values: %w", err)
	}

	acquireErr := retry.Do(ctx, c.policy, isThrottle, func() error {
		_, err := c.db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 &c.LocksTable,
			Item:                      item,
			ConditionExpression:       &condition,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
		return err
	})

	var condFailed *types.ConditionalCheckFailedException
	if errors.As(acquireErr, &condFailed) {
		return nil, false, nil
	}
	if acquireErr != nil {
		return nil, false, fmt.Errorf("acquire lock for run %s: %w", runID, acquireErr)
	}

	return &lock, true, nil
}

// Release marks the lock completed. It is unconditional: orchestratorID is
// not checked, so it completes whichever lock is current for runID. The
// controller calls it on every exit path after a successful Acquire, and
// not after a failed one.
func (c *Client) Release(ctx context.Context, runID, orchestratorID string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"pk": models.NewLockKey(runID)})
	if err != nil {
		return fmt.Errorf("marshal lock key: %w", err)
	}

	updateExpr := "SET #status = :completed"
	names := map[string]string{"#status": "status"}
	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":completed": models.LockStatusCompleted,
	})
	if err != nil {
		return fmt.Errorf("marshal release values: %w", err)
	}

	return retry.Do(ctx, c.policy, isThrottle, func() error {
		_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 &c.LocksTable,
			Key:                       key,
			UpdateExpression:          &updateExpr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
		return err
	})
}
