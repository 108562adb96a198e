package publishlog

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo stores items by id and evaluates the published guard the way
// the condition expression does.
type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	missing bool
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.missing {
		return nil, &types.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[str(in.Key["id"])]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := str(in.Item["id"])
	if prev, ok := f.items[id]; ok && in.ConditionExpression != nil {
		next := str(in.ExpressionAttributeValues[":next"])
		if str(prev["status"]) == string(StatusPublished) && next != string(StatusPublished) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func TestDynamoLog_RecordAndRead(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	l := NewDynamoLog(fake, "posted-log")

	if err := l.EnsureExists(ctx); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordOutcome(ctx, "1", StatusPublished); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordOutcome(ctx, "1", StatusPublished); err != nil {
		t.Fatalf("re-recording published must succeed: %v", err)
	}
	if err := l.RecordOutcome(ctx, "2", Failed("boom")); err != nil {
		t.Fatal(err)
	}

	ok, err := l.IsPublished(ctx, "1")
	if err != nil || !ok {
		t.Errorf("IsPublished(1) = %v, %v", ok, err)
	}
	ok, _ = l.IsPublished(ctx, "2")
	if ok {
		t.Error("failed id reported as published")
	}

	entries, err := l.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %+v", entries)
	}
}

func TestDynamoLog_NeverDowngradesPublished(t *testing.T) {
	ctx := context.Background()
	l := NewDynamoLog(newFakeDynamo(), "posted-log")

	_ = l.RecordOutcome(ctx, "1", StatusPublished)
	err := l.RecordOutcome(ctx, "1", Failed("late"))
	if !errors.Is(err, ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
}

func TestDynamoLog_MissingTable(t *testing.T) {
	fake := newFakeDynamo()
	fake.missing = true
	if err := NewDynamoLog(fake, "nope").EnsureExists(context.Background()); err == nil {
		t.Error("expected error for missing table")
	}
}
