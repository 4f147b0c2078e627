package badgerstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// Scan walks every row of one index (main table when IndexName is unset)
// in key order. Parallel scan (Segment/TotalSegments) is not supported —
// this embedded backend has no reason to split a scan across workers — so
// any TotalSegments greater than 1 is rejected rather than silently
// returning a subset.
func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if params == nil || params.TableName == nil {
		return nil, fmt.Errorf("badgerstore: Scan requires TableName")
	}
	if params.TotalSegments != nil && *params.TotalSegments > 1 {
		return nil, fmt.Errorf("badgerstore: parallel scan is not supported")
	}
	indexName := ""
	if params.IndexName != nil {
		indexName = *params.IndexName
	}
	pkAttr, skAttr, ok := indexAttrs(indexName)
	if !ok {
		return nil, fmt.Errorf("badgerstore: unknown index %q", indexName)
	}

	prefix := encodeIndexPrefix(*params.TableName, indexName)
	limit := 0
	if params.Limit != nil {
		limit = int(*params.Limit)
	}

	var items []map[string]types.AttributeValue
	var lastKey []byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		var startKey []byte
		if params.ExclusiveStartKey != nil {
			startPK, startSK, err := attrPairOf(params.ExclusiveStartKey, pkAttr, skAttr)
			if err != nil {
				return err
			}
			startKey = encodeRowKey(*params.TableName, indexName, startPK, startSK)
			seek = startKey
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if startKey != nil && bytes.Equal(k, startKey) {
				continue
			}
			var doc map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var derr error
				doc, derr = DeserializeItem(val)
				return derr
			}); err != nil {
				return err
			}

			if params.FilterExpression != nil {
				matched, err := EvalCondition(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, doc)
				if err != nil {
					return err
				}
				if !matched {
					continue
				}
			}

			items = append(items, doc)
			if limit > 0 && len(items) >= limit {
				it.Next()
				if it.ValidForPrefix(prefix) {
					lastKey = k
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.ScanOutput{Count: int32(len(items)), ScannedCount: int32(len(items))}
	if params.Select != types.SelectCount {
		out.Items = items
	}
	if lastKey != nil && len(items) > 0 {
		out.LastEvaluatedKey = keyAttrsOf(items[len(items)-1], pkAttr, skAttr)
	}
	return out, nil
}
