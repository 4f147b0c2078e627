package badgerstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// GetItem retrieves a single item by its primary key.
func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("badgerstore: GetItem requires Key")
	}

	pkVal, skVal, err := primaryKeyOf(params.Key)
	if err != nil {
		return nil, err
	}

	key := encodeRowKey(*params.TableName, "", pkVal, skVal)
	item, found, err := s.read(key)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.GetItemOutput{}
	if found {
		out.Item = item
		if params.ReturnConsumedCapacity == types.ReturnConsumedCapacityTotal {
			out.ConsumedCapacity = &types.ConsumedCapacity{TableName: params.TableName, CapacityUnits: floatPtr(0.5)}
		}
	}
	return out, nil
}

// primaryKeyOf extracts the physical (_pk, _sk) pair from a key/item map.
func primaryKeyOf(m map[string]types.AttributeValue) (pk, sk string, err error) {
	pkAV, ok := m["_pk"]
	if !ok {
		return "", "", fmt.Errorf("badgerstore: item missing _pk")
	}
	pk, ok = attrStr(pkAV)
	if !ok {
		return "", "", fmt.Errorf("badgerstore: _pk is not a string attribute")
	}
	if skAV, ok := m["_sk"]; ok {
		sk, _ = attrStr(skAV)
	}
	return pk, sk, nil
}

func (s *Store) read(key []byte) (map[string]types.AttributeValue, bool, error) {
	var item map[string]types.AttributeValue
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return it.Value(func(val []byte) error {
			item, err = DeserializeItem(val)
			return err
		})
	})
	return item, found, err
}

func floatPtr(f float64) *float64 { return &f }
