package badgerstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// DeleteItem conditionally removes an item from the main table and every
// GSI slot row it occupied.
func (s *Store) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("badgerstore: DeleteItem requires Key")
	}
	pk, sk, err := primaryKeyOf(params.Key)
	if err != nil {
		return nil, err
	}
	key := encodeRowKey(*params.TableName, "", pk, sk)

	var out dynamodb.DeleteItemOutput
	err = s.db.Update(func(txn *badger.Txn) error {
		existing, found, err := txnRead(txn, key)
		if err != nil {
			return err
		}
		if params.ConditionExpression != nil {
			ok, err := EvalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing)
			if err != nil {
				return err
			}
			if !ok {
				return &types.ConditionalCheckFailedException{Message: strPtr("the conditional request failed")}
			}
		}
		if !found {
			return nil
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		for _, slot := range gsiSlots {
			pkAttr, skAttr, _ := indexAttrs(slot)
			if pkVal, ok := attrStr(existing[pkAttr]); ok {
				skVal, _ := attrStr(existing[skAttr])
				_ = txn.Delete(encodeRowKey(*params.TableName, slot, pkVal, skVal))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
