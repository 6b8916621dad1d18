package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/expression"

	"github.com/railyard-run/railyard/internal/models"
	"github.com/railyard-run/railyard/internal/store/retry"
)

// AppendEvent inserts a new order_events row. Events are additive; there is
// no update or delete path.
func (c *Client) AppendEvent(ctx context.Context, ev *models.OrderEvent) error {
	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	return retry.Do(ctx, c.policy, isThrottle, func() error {
		_, err := c.db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: &c.OrderEventsTable,
			Item:      item,
		})
		return err
	})
}

// ListEvents returns every event for a trace_id, already in sk (temporal)
// order because DynamoDB Query returns items sorted by sort key ascending.
func (c *Client) ListEvents(ctx context.Context, traceID string) ([]*models.OrderEvent, error) {
	keyCond := expression.Key("trace_id").Equal(expression.Value(traceID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build events query expression: %w", err)
	}

	var events []*models.OrderEvent
	var lastKey map[string]types.AttributeValue

	for {
		var out *dynamodb.QueryOutput
		err := retry.Do(ctx, c.policy, isThrottle, func() error {
			var queryErr error
			out, queryErr = c.db.Query(ctx, &dynamodb.QueryInput{
				TableName:                 &c.OrderEventsTable,
				KeyConditionExpression:    expr.KeyCondition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
				ExclusiveStartKey:         lastKey,
			})
			return queryErr
		})
		if err != nil {
			return nil, fmt.Errorf("query events for trace %s: %w", traceID, err)
		}

		for _, rawItem := range out.Items {
			var ev models.OrderEvent
			if err := attributevalue.UnmarshalMap(rawItem, &ev); err != nil {
				return nil, fmt.Errorf("unmarshal order event: %w", err)
			}
			events = append(events, &ev)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}

	return events, nil
}
