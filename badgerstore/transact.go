package badgerstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// TransactGetItems point-reads each requested item; unlike the real
// service this embedded backend has no 100-item limit of its own.
func (s *Store) TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("badgerstore: TransactGetItems requires TransactItems")
	}
	responses := make([]types.ItemResponse, len(params.TransactItems))
	for i, ti := range params.TransactItems {
		if ti.Get == nil {
			continue
		}
		pk, sk, err := primaryKeyOf(ti.Get.Key)
		if err != nil {
			return nil, err
		}
		item, found, err := s.read(encodeRowKey(*ti.Get.TableName, "", pk, sk))
		if err != nil {
			return nil, err
		}
		if found {
			responses[i] = types.ItemResponse{Item: item}
		}
	}
	return &dynamodb.TransactGetItemsOutput{Responses: responses}, nil
}

// TransactWriteItems evaluates every action's condition (if any) against
// the item it targets before applying any write, all within a single
// badger transaction, so the whole batch commits or none of it does.
// A condition failure reports a CancellationReason per action, the shape
// mutate's classifyTransactError expects: index 0 is the owning item's own
// write (Put, Update or Delete), later indices the uniqueness companion-row
// Puts and Deletes.
func (s *Store) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("badgerstore: TransactWriteItems requires TransactItems")
	}
	var out dynamodb.TransactWriteItemsOutput
	err := s.db.Update(func(txn *badger.Txn) error {
		reasons := make([]types.CancellationReason, len(params.TransactItems))
		anyFailed := false

		for i, twi := range params.TransactItems {
			tableName, key, condExpr, names, values, err := transactItemTarget(twi)
			if err != nil {
				return err
			}
			pk, sk, err := primaryKeyOf(key)
			if err != nil {
				return err
			}
			existing, _, err := txnRead(txn, encodeRowKey(tableName, "", pk, sk))
			if err != nil {
				return err
			}

			ok := true
			if condExpr != nil {
				ok, err = EvalCondition(*condExpr, names, values, existing)
				if err != nil {
					return err
				}
			}
			if ok {
				reasons[i] = types.CancellationReason{Code: strPtr("None")}
			} else {
				reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed"), Item: existing}
				anyFailed = true
			}
		}

		if anyFailed {
			return &types.TransactionCanceledException{
				Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
				CancellationReasons: reasons,
			}
		}

		for _, twi := range params.TransactItems {
			if err := applyTransactWrite(txn, twi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// transactItemTarget extracts the (table, key, condition) triple a
// TransactWriteItem's single populated action carries.
func transactItemTarget(twi types.TransactWriteItem) (tableName string, key map[string]types.AttributeValue, condExpr *string, names map[string]string, values map[string]types.AttributeValue, err error) {
	switch {
	case twi.Put != nil:
		return *twi.Put.TableName, twi.Put.Item, twi.Put.ConditionExpression, twi.Put.ExpressionAttributeNames, twi.Put.ExpressionAttributeValues, nil
	case twi.Update != nil:
		return *twi.Update.TableName, twi.Update.Key, twi.Update.ConditionExpression, twi.Update.ExpressionAttributeNames, twi.Update.ExpressionAttributeValues, nil
	case twi.Delete != nil:
		return *twi.Delete.TableName, twi.Delete.Key, twi.Delete.ConditionExpression, twi.Delete.ExpressionAttributeNames, twi.Delete.ExpressionAttributeValues, nil
	case twi.ConditionCheck != nil:
		return *twi.ConditionCheck.TableName, twi.ConditionCheck.Key, twi.ConditionCheck.ConditionExpression, twi.ConditionCheck.ExpressionAttributeNames, twi.ConditionCheck.ExpressionAttributeValues, nil
	}
	return "", nil, nil, nil, nil, fmt.Errorf("badgerstore: transact write item has no action")
}

// applyTransactWrite performs one already-condition-checked action.
// ConditionCheck actions have nothing further to apply.
func applyTransactWrite(txn *badger.Txn, twi types.TransactWriteItem) error {
	switch {
	case twi.Put != nil:
		return putTxn(txn, *twi.Put.TableName, twi.Put.Item)
	case twi.Update != nil:
		return updateTxn(txn, *twi.Update.TableName, twi.Update.Key, twi.Update.UpdateExpression, twi.Update.ExpressionAttributeNames, twi.Update.ExpressionAttributeValues)
	case twi.Delete != nil:
		return deleteTxn(txn, *twi.Delete.TableName, twi.Delete.Key)
	}
	return nil
}

func putTxn(txn *badger.Txn, tableName string, item map[string]types.AttributeValue) error {
	pk, sk, err := primaryKeyOf(item)
	if err != nil {
		return err
	}
	key := encodeRowKey(tableName, "", pk, sk)
	existing, _, err := txnRead(txn, key)
	if err != nil {
		return err
	}
	itemBytes, err := SerializeItem(item)
	if err != nil {
		return err
	}
	if err := txn.Set(key, itemBytes); err != nil {
		return err
	}
	return writeGSIEntries(txn, tableName, existing, item)
}

func updateTxn(txn *badger.Txn, tableName string, keyAttrs map[string]types.AttributeValue, updateExpr *string, names map[string]string, values map[string]types.AttributeValue) error {
	pk, sk, err := primaryKeyOf(keyAttrs)
	if err != nil {
		return err
	}
	key := encodeRowKey(tableName, "", pk, sk)
	existing, _, err := txnRead(txn, key)
	if err != nil {
		return err
	}
	doc := map[string]types.AttributeValue{}
	for k, v := range existing {
		doc[k] = v
	}
	for k, v := range keyAttrs {
		doc[k] = v
	}
	if updateExpr != nil {
		if err := applyUpdateExpression(*updateExpr, names, values, doc); err != nil {
			return err
		}
	}
	itemBytes, err := SerializeItem(doc)
	if err != nil {
		return err
	}
	if err := txn.Set(key, itemBytes); err != nil {
		return err
	}
	return writeGSIEntries(txn, tableName, existing, doc)
}

func deleteTxn(txn *badger.Txn, tableName string, keyAttrs map[string]types.AttributeValue) error {
	pk, sk, err := primaryKeyOf(keyAttrs)
	if err != nil {
		return err
	}
	key := encodeRowKey(tableName, "", pk, sk)
	existing, found, err := txnRead(txn, key)
	if err != nil {
		return err
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
			_ = txn.Delete(encodeRowKey(tableName, slot, pkVal, skVal))
		}
	}
	return nil
}
