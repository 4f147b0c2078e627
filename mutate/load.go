package mutate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/ddbapi"
	"github.com/normwc/norm/keycodec"
	"github.com/normwc/norm/reqctx"
	"github.com/normwc/norm/schema"
)

// NewLoader builds the reqctx.BulkLoader for d against client/tableName: a
// single BatchGetItem per fragment, decoded back into schema.Instance
// values through each field's FromStorage.
func NewLoader(client ddbapi.Client, tableName string, d *schema.Descriptor) reqctx.BulkLoader {
	return func(ctx context.Context, ids []string) (map[string]*schema.Instance, []string, schema.Capacity, error) {
		keys := make([]map[string]types.AttributeValue, 0, len(ids))
		idByKey := make(map[string]string, len(ids))
		for _, id := range ids {
			pk, sk, err := physicalKeyFor(d, id)
			if err != nil {
				return nil, nil, schema.Capacity{}, err
			}
			keys = append(keys, map[string]types.AttributeValue{
				keycodec.PKAttr: attrS(pk),
				keycodec.SKAttr: attrS(sk),
			})
			idByKey[pk+"\x00"+sk] = id
		}

		out, err := client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				tableName: {Keys: keys},
			},
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return nil, nil, schema.Capacity{}, err
		}

		found := map[string]*schema.Instance{}
		for _, item := range out.Responses[tableName] {
			values, err := decodeItem(d, item)
			if err != nil {
				return nil, nil, schema.Capacity{}, err
			}
			id, ok := idOf(idByKey, item)
			if !ok {
				continue
			}
			found[id] = schema.Load(d, values)
		}

		var unprocessed []string
		if uk, ok := out.UnprocessedKeys[tableName]; ok {
			for _, key := range uk.Keys {
				if id, ok := idOf(idByKey, key); ok {
					unprocessed = append(unprocessed, id)
				}
			}
		}

		var cap schema.Capacity
		for i := range out.ConsumedCapacity {
			cap = cap.Add(capacityFromRead(&out.ConsumedCapacity[i]))
		}
		return found, unprocessed, cap, nil
	}
}

func idOf(idByKey map[string]string, item map[string]types.AttributeValue) (string, bool) {
	pkAV, _ := item[keycodec.PKAttr].(*types.AttributeValueMemberS)
	skAV, _ := item[keycodec.SKAttr].(*types.AttributeValueMemberS)
	if pkAV == nil || skAV == nil {
		return "", false
	}
	id, ok := idByKey[pkAV.Value+"\x00"+skAV.Value]
	return id, ok
}

func physicalKeyFor(d *schema.Descriptor, id string) (pk, sk string, err error) {
	skSentinel := d.PrimaryKey.SKField == schema.ModelPrefixSentinel || d.PrimaryKey.SKField == ""
	pkIdx, skIdx, err := keycodec.DecodePrimaryID(id, skSentinel)
	if err != nil {
		return "", "", err
	}
	return keycodec.PrimaryPartition(d.ModelPrefix, pkIdx), keycodec.PrimarySort(d.ModelPrefix, skIdx, skSentinel), nil
}

// decodeItem decodes a raw backend item's declared fields back into their
// Go-native form. Physical key attributes are never surfaced this way.
func decodeItem(d *schema.Descriptor, item ddbapi.Item) (map[string]any, error) {
	out := map[string]any{}
	for _, fs := range d.Fields {
		av, ok := item[fs.Name]
		if !ok {
			continue
		}
		v, err := fs.Field.FromStorage(av)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fs.Name, err)
		}
		out[fs.Name] = v
	}
	return out, nil
}
