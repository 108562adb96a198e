package publishlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoLog.
type DynamoAPI interface {
	dynamodb.ScanAPIClient
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoLog keeps the log in a DynamoDB table keyed by "id". The put is
// conditional so a published entry is never overwritten with another status,
// even by a concurrent writer.
type DynamoLog struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

var _ Log = (*DynamoLog)(nil)

// NewDynamoLog creates a DynamoLog for the given table.
func NewDynamoLog(client DynamoAPI, tableName string) *DynamoLog {
	return &DynamoLog{client: client, tableName: tableName, now: time.Now}
}

// EnsureExists verifies the table is reachable. Tables are provisioned by
// infrastructure code, not created here.
func (l *DynamoLog) EnsureExists(ctx context.Context) error {
	_, err := l.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &l.tableName})
	if err != nil {
		return fmt.Errorf("DescribeTable %s: %w", l.tableName, err)
	}
	return nil
}

// RecordOutcome implements Log.
func (l *DynamoLog) RecordOutcome(ctx context.Context, id string, status Status) error {
	item, err := attributevalue.MarshalMap(Entry{ID: id, Timestamp: l.now().UTC(), Status: status})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &l.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id) OR #status <> :published OR :next = :published"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":published": &types.AttributeValueMemberS{Value: string(StatusPublished)},
			":next":      &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("record %q for %s: %w", status, id, ErrAlreadyPublished)
		}
		return fmt.Errorf("PutItem id=%s: %w", id, err)
	}
	log.Debug().Str("productId", id).Str("status", string(status)).Str("table", l.tableName).Msg("Outcome recorded")
	return nil
}

// IsPublished implements Log.
func (l *DynamoLog) IsPublished(ctx context.Context, id string) (bool, error) {
	result, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &l.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem id=%s: %w", id, err)
	}
	if result.Item == nil {
		return false, nil
	}
	var e Entry
	if err := attributevalue.UnmarshalMap(result.Item, &e); err != nil {
		return false, fmt.Errorf("unmarshal id=%s: %w", id, err)
	}
	return e.Status == StatusPublished, nil
}

// Entries implements Log.
func (l *DynamoLog) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	p := dynamodb.NewScanPaginator(l.client, &dynamodb.ScanInput{
		TableName:      &l.tableName,
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("Scan %s: %w", l.tableName, err)
		}
		var batch []Entry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal scan page: %w", err)
		}
		entries = append(entries, batch...)
	}
	return entries, nil
}
