package query

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeQueryClient answers every Query call from a canned response queue,
// ignoring the compiled expression itself: it exercises the engine's
// decision logic (index/attr wiring, countOnly, pagination passthrough),
// not DynamoDB's own condition evaluation.
type fakeQueryClient struct {
	responses []*dynamodb.QueryOutput
	calls     []*dynamodb.QueryInput
	failNext  error

	batchResponses []*dynamodb.BatchGetItemOutput
	batchCalls     []*dynamodb.BatchGetItemInput
}

func (f *fakeQueryClient) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.calls = append(f.calls, in)
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	if len(f.responses) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func (f *fakeQueryClient) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}
func (f *fakeQueryClient) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}
func (f *fakeQueryClient) UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}
func (f *fakeQueryClient) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}
func (f *fakeQueryClient) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.batchCalls = append(f.batchCalls, in)
	if len(f.batchResponses) == 0 {
		return &dynamodb.BatchGetItemOutput{}, nil
	}
	out := f.batchResponses[0]
	f.batchResponses = f.batchResponses[1:]
	return out, nil
}
func (f *fakeQueryClient) BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return &dynamodb.BatchWriteItemOutput{}, nil
}
func (f *fakeQueryClient) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}
func (f *fakeQueryClient) TransactGetItems(context.Context, *dynamodb.TransactGetItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	return &dynamodb.TransactGetItemsOutput{}, nil
}
func (f *fakeQueryClient) TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func attrS(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }
