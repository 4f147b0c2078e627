package mutate

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is a minimal in-memory ddbapi.Client stand-in for pipeline
// tests: a plain map keyed by pk+sk, no real condition-expression
// evaluation. Tests that need a condition to fail inject it via
// failNextWrite/failNextTransact instead of expecting real evaluation.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	failNextWrite   error
	failNextGet     error
	failNextTransact error
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[string]map[string]types.AttributeValue{}}
}

func fakeKey(item map[string]types.AttributeValue) string {
	pk, _ := item["_pk"].(*types.AttributeValueMemberS)
	sk, _ := item["_sk"].(*types.AttributeValueMemberS)
	p, s := "", ""
	if pk != nil {
		p = pk.Value
	}
	if sk != nil {
		s = sk.Value
	}
	return p + "\x00" + s
}

func (f *fakeClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextGet != nil {
		err := f.failNextGet
		f.failNextGet = nil
		return nil, err
	}
	item := f.items[fakeKey(in.Key)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextWrite != nil {
		err := f.failNextWrite
		f.failNextWrite = nil
		return nil, err
	}
	f.items[fakeKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: floatPtr(1)}}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextWrite != nil {
		err := f.failNextWrite
		f.failNextWrite = nil
		return nil, err
	}
	delete(f.items, fakeKey(in.Key))
	return &dynamodb.DeleteItemOutput{ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: floatPtr(1)}}, nil
}

func (f *fakeClient) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for table, ka := range in.RequestItems {
		var found []map[string]types.AttributeValue
		for _, key := range ka.Keys {
			if item, ok := f.items[fakeKey(key)]; ok {
				found = append(found, item)
			}
		}
		out.Responses[table] = found
	}
	return out, nil
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *fakeClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeClient) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeClient) TransactGetItems(ctx context.Context, in *dynamodb.TransactGetItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	return &dynamodb.TransactGetItemsOutput{}, nil
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextTransact != nil {
		err := f.failNextTransact
		f.failNextTransact = nil
		return nil, err
	}
	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			f.items[fakeKey(it.Put.Item)] = it.Put.Item
		case it.Delete != nil:
			delete(f.items, fakeKey(it.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func floatPtr(f float64) *float64 { return &f }
