package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/railyard-run/railyard/internal/models"
	"github.com/railyard-run/railyard/internal/store/retry"
)

// orderItem is the DynamoDB-shaped mirror of models.OrderRecord; pk is
// kept as a plain string here since the table uses a single-attribute
// composite key (as the locks table does); only order_events uses a
// two-attribute hash/range key.
type orderItem struct {
	Pk string `dynamodbav:"pk"`
	models.OrderRecord
}

// PutOrder inserts or replaces an OrderRecord.
func (c *Client) PutOrder(ctx context.Context, rec *models.OrderRecord) error {
	item, err := attributevalue.MarshalMap(orderItem{Pk: rec.Key(), OrderRecord: *rec})
	if err != nil {
		return fmt.Errorf("marshal order record: %w", err)
	}

	return retry.Do(ctx, c.policy, isThrottle, func() error {
		_, err := c.db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: &c.OrdersTable,
			Item:      item,
		})
		return err
	})
}

// GetOrder fetches a single OrderRecord by its composite key.
func (c *Client) GetOrder(ctx context.Context, runID, orderNum string) (*models.OrderRecord, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"pk": models.NewOrderRecordKey(runID, orderNum)})
	if err != nil {
		return nil, fmt.Errorf("marshal order key: %w", err)
	}

	var out *dynamodb.GetItemOutput
	err = retry.Do(ctx, c.policy, isThrottle, func() error {
		var getErr error
		out, getErr = c.db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: &c.OrdersTable,
			Key:       key,
		})
		return getErr
	})
	if err != nil {
		return nil, fmt.Errorf("get order %s:%s: %w", runID, orderNum, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item orderItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal order record: %w", err)
	}
	rec := item.OrderRecord
	return &rec, nil
}

// GetAllOrders returns every OrderRecord for a run via a scan filtered by
// run_id. This is a known-suboptimal design: a production deployment
// should add a run_id global secondary index instead of scanning.
func (c *Client) GetAllOrders(ctx context.Context, runID string) ([]*models.OrderRecord, error) {
	filterExpr := "run_id = :run_id"
	exprValues, err := attributevalue.MarshalMap(map[string]string{":run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("marshal scan filter values: %w", err)
	}

	var records []*models.OrderRecord
	var lastKey map[string]types.AttributeValue

	for {
		var out *dynamodb.ScanOutput
		err := retry.Do(ctx, c.policy, isThrottle, func() error {
			var scanErr error
			out, scanErr = c.db.Scan(ctx, &dynamodb.ScanInput{
				TableName:                 &c.OrdersTable,
				FilterExpression:          &filterExpr,
				ExpressionAttributeValues: exprValues,
				ExclusiveStartKey:         lastKey,
			})
			return scanErr
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders for run %s: %w", runID, err)
		}

		for _, rawItem := range out.Items {
			var item orderItem
			if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
				return nil, fmt.Errorf("unmarshal scanned order record: %w", err)
			}
			rec := item.OrderRecord
			records = append(records, &rec)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}

	return records, nil
}

// UpdateOrderStatus updates a record's status, log, and last_update, and
// optionally its failure_reason (for cascade failures).
func (c *Client) UpdateOrderStatus(ctx context.Context, runID, orderNum string, status models.OrderStatus, log, failureReason string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"pk": models.NewOrderRecordKey(runID, orderNum)})
	if err != nil {
		return fmt.Errorf("marshal order key: %w", err)
	}

	updateExpr := "SET #status = :status, last_update = :last_update"
	names := map[string]string{"#status": "status"}
	values := map[string]interface{}{
		":status":      status,
		":last_update": time.Now().Unix(),
	}
	if log != "" {
		updateExpr += ", #log = :log"
		names["#log"] = "log"
		values[":log"] = log
	}
	if failureReason != "" {
		updateExpr += ", failure_reason = :failure_reason"
		values[":failure_reason"] = failureReason
	}

	exprValues, err := attributevalue.MarshalMap(values)
	if err != nil {
		return fmt.Errorf("marshal update values: %w", err)
	}

	return retry.Do(ctx, c.policy, isThrottle, func() error {
		_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 &c.OrdersTable,
			Key:                       key,
			UpdateExpression:          &updateExpr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: exprValues,
		})
		return err
	})
}

// MarkDispatched transitions a record to running and records its back-end
// execution handle and watchdog handle.
func (c *Client) MarkDispatched(ctx context.Context, runID, orderNum, execHandle, watchdogHandle string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"pk": models.NewOrderRecordKey(runID, orderNum)})
	if err != nil {
		return fmt.Errorf("marshal order key: %w", err)
	}

	updateExpr := "SET #status = :status, last_update = :last_update, exec_handle = :exec_handle, watchdog_handle = :watchdog_handle"
	names := map[string]string{"#status": "status"}
	values := map[string]interface{}{
		":status":          models.OrderStatusRunning,
		":last_update":     time.Now().Unix(),
		":exec_handle":     execHandle,
		":watchdog_handle": watchdogHandle,
	}

	exprValues, err := attributevalue.MarshalMap(values)
	if err != nil {
		return fmt.Errorf("marshal dispatch update values: %w", err)
	}

	return retry.Do(ctx, c.policy, isThrottle, func() error {
		_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 &c.OrdersTable,
			Key:                       key,
			UpdateExpression:          &updateExpr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: exprValues,
		})
		return err
	})
}
