package badgerstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"

	"github.com/normwc/norm/keycodec"
)

// Query scans one partition of one index (main table or a GSI slot),
// applying the key condition first (via the partition prefix plus an
// inline sort-key check) and then the optional filter expression.
func (s *Store) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if params == nil || params.KeyConditionExpression == nil {
		return nil, fmt.Errorf("badgerstore: Query requires KeyConditionExpression")
	}
	indexName := ""
	if params.IndexName != nil {
		indexName = gsiSlotName(*params.IndexName)
	}
	pkAttr, skAttr, ok := indexAttrs(indexName)
	if !ok {
		return nil, fmt.Errorf("badgerstore: unknown index %q", *params.IndexName)
	}

	pkValue, err := partitionValueFromKeyCondition(*params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, pkAttr)
	if err != nil {
		return nil, err
	}
	prefix := encodePartitionPrefix(*params.TableName, indexName, pkValue)

	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	limit := 0
	if params.Limit != nil {
		limit = int(*params.Limit)
	}

	var items []map[string]types.AttributeValue
	var lastKey []byte
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = !forward
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if !forward {
			seek = incrementBytes(prefix)
		}
		var startKey []byte
		if params.ExclusiveStartKey != nil {
			startPK, startSK, err := attrPairOf(params.ExclusiveStartKey, pkAttr, skAttr)
			if err != nil {
				return err
			}
			startKey = encodeRowKey(*params.TableName, indexName, startPK, startSK)
			// Seek lands on startKey itself (forward: smallest key >=
			// seek; reverse: largest key <= seek); the equality check
			// below skips it so iteration resumes strictly after it.
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

			if skAttr != "" {
				matchSK, err := skConditionMatches(*params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, doc)
				if err != nil {
					return err
				}
				if !matchSK {
					continue
				}
			}
			if params.FilterExpression != nil {
				ok, err := EvalCondition(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, doc)
				if err != nil {
					return err
				}
				if !ok {
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

	out := &dynamodb.QueryOutput{Count: int32(len(items))}
	if params.Select != types.SelectCount {
		out.Items = items
	}
	if lastKey != nil && len(items) > 0 {
		out.LastEvaluatedKey = keyAttrsOf(items[len(items)-1], pkAttr, skAttr)
	}
	return out, nil
}

func gsiSlotName(indexName string) string {
	// Index names are descriptor-level ("by-author"); the caller
	// (query.Engine) is responsible for resolving them to physical slot
	// attribute names before reaching the backend contract, so by the
	// time Query receives IndexName it is already one of "s1".."s5".
	return indexName
}

// splitKeyCondition splits a compiled KeyConditionExpression's token stream
// at its first top-level AND: the partition-key equality clause always
// comes first and never itself contains AND, so the first AND token is
// always the true separator even when the sort-key clause is a BETWEEN
// (which contains an AND of its own, further along).
func splitKeyCondition(expr string) (pkToks, skToks []string) {
	toks := tokenize(expr)
	for i, t := range toks {
		if strings.EqualFold(t, "AND") {
			return toks[:i], toks[i+1:]
		}
	}
	return toks, nil
}

func resolveName(names map[string]string, tok string) string {
	if names != nil {
		if real, ok := names[tok]; ok {
			return real
		}
	}
	return tok
}

// partitionValueFromKeyCondition extracts the equality value of the
// partition-key clause, the only clause shape a compiled key condition's
// pk side ever takes.
func partitionValueFromKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue, pkAttr string) (string, error) {
	pkToks, _ := splitKeyCondition(expr)
	if len(pkToks) != 3 || pkToks[1] != "=" {
		return "", fmt.Errorf("badgerstore: malformed key condition %q", expr)
	}
	if got := resolveName(names, pkToks[0]); got != pkAttr {
		return "", fmt.Errorf("badgerstore: key condition references %q, expected partition attribute %q", got, pkAttr)
	}
	av, ok := values[pkToks[2]]
	if !ok {
		return "", fmt.Errorf("badgerstore: key condition references unknown value %q", pkToks[2])
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("badgerstore: partition key value must be a string attribute")
	}
	return s.Value, nil
}

// skConditionMatches evaluates the sort-key clause of a key condition (if
// any) against one candidate item, reusing the same expression evaluator
// filter expressions use.
func skConditionMatches(expr string, names map[string]string, values map[string]types.AttributeValue, doc map[string]types.AttributeValue) (bool, error) {
	_, skToks := splitKeyCondition(expr)
	if len(skToks) == 0 {
		return true, nil
	}
	return EvalCondition(strings.Join(skToks, " "), names, values, doc)
}

// attrPairOf extracts the (pk, sk) string values of the named attributes
// from a key/item map, used for both ExclusiveStartKey and primary-table
// lookups against an arbitrary index.
func attrPairOf(m map[string]types.AttributeValue, pkAttr, skAttr string) (pk, sk string, err error) {
	pkAV, ok := m[pkAttr]
	if !ok {
		return "", "", fmt.Errorf("badgerstore: key missing %q", pkAttr)
	}
	pk, ok = attrStr(pkAV)
	if !ok {
		return "", "", fmt.Errorf("badgerstore: %q is not a string attribute", pkAttr)
	}
	if skAV, ok := m[skAttr]; ok {
		sk, _ = attrStr(skAV)
	}
	return pk, sk, nil
}

// keyAttrsOf projects an item down to its (pk, sk) attributes for the
// given index, plus the main table's own primary key (DynamoDB's
// LastEvaluatedKey for a GSI query always carries both).
func keyAttrsOf(item map[string]types.AttributeValue, pkAttr, skAttr string) map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{}
	for _, attr := range []string{pkAttr, skAttr, keycodec.PKAttr, keycodec.SKAttr} {
		if v, ok := item[attr]; ok {
			out[attr] = v
		}
	}
	return out
}

// incrementBytes returns the smallest byte slice greater than every slice
// with prefix b, used to seek to the end of a prefix range for reverse
// iteration.
func incrementBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return append(out, 0xff)
}
