package badgerstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// BatchGetItem reads up to 100 keys per table, grounded on the teacher's
// store_batch_get_item.go; this embedded backend never fragments further
// since it has no real per-request item-count limit of its own.
func (s *Store) BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("badgerstore: BatchGetItem requires RequestItems")
	}
	responses := map[string][]map[string]types.AttributeValue{}
	for table, ks := range params.RequestItems {
		for _, key := range ks.Keys {
			pk, sk, err := primaryKeyOf(key)
			if err != nil {
				return nil, err
			}
			item, found, err := s.read(encodeRowKey(table, "", pk, sk))
			if err != nil {
				return nil, err
			}
			if found {
				responses[table] = append(responses[table], item)
			}
		}
	}
	return &dynamodb.BatchGetItemOutput{Responses: responses}, nil
}

// BatchWriteItem applies a set of unconditional puts/deletes per table,
// grounded on store_batch_write_item.go.
func (s *Store) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("badgerstore: BatchWriteItem requires RequestItems")
	}
	for table, reqs := range params.RequestItems {
		for _, req := range reqs {
			if req.PutRequest != nil {
				if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: req.PutRequest.Item}); err != nil {
					return nil, err
				}
			}
			if req.DeleteRequest != nil {
				if _, err := s.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &table, Key: req.DeleteRequest.Key}); err != nil {
					return nil, err
				}
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}
