package badgerstore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// serializableAV is a gob-encodable stand-in for the types.AttributeValue
// interface, grounded on the teacher's ddbstore encoding.
type serializableAV struct {
	Type  string
	S     string
	N     string
	BOOL  bool
	SS    []string
}

func init() {
	gob.Register(map[string]serializableAV{})
}

func toSerializable(av types.AttributeValue) (serializableAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return serializableAV{Type: "S", S: v.Value}, nil
	case *types.AttributeValueMemberN:
		return serializableAV{Type: "N", N: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return serializableAV{Type: "BOOL", BOOL: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return serializableAV{Type: "SS", SS: v.Value}, nil
	default:
		return serializableAV{}, fmt.Errorf("badgerstore: unsupported attribute value type %T", av)
	}
}

func fromSerializable(sav serializableAV) types.AttributeValue {
	switch sav.Type {
	case "S":
		return &types.AttributeValueMemberS{Value: sav.S}
	case "N":
		return &types.AttributeValueMemberN{Value: sav.N}
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: sav.BOOL}
	case "SS":
		return &types.AttributeValueMemberSS{Value: sav.SS}
	}
	return nil
}

// SerializeItem gob-encodes an item for storage.
func SerializeItem(item map[string]types.AttributeValue) ([]byte, error) {
	out := make(map[string]serializableAV, len(item))
	for k, v := range item {
		sav, err := toSerializable(v)
		if err != nil {
			return nil, err
		}
		out[k] = sav
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(out); err != nil {
		return nil, fmt.Errorf("badgerstore: encode item: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeItem is SerializeItem's inverse.
func DeserializeItem(data []byte) (map[string]types.AttributeValue, error) {
	var in map[string]serializableAV
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&in); err != nil {
		return nil, fmt.Errorf("badgerstore: decode item: %w", err)
	}
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = fromSerializable(v)
	}
	return out, nil
}

func attributeValuesEqual(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	sa, err1 := toSerializable(a)
	sb, err2 := toSerializable(b)
	if err1 != nil || err2 != nil {
		return false
	}
	if sa.Type != sb.Type || sa.S != sb.S || sa.N != sb.N || sa.BOOL != sb.BOOL {
		return false
	}
	if len(sa.SS) != len(sb.SS) {
		return false
	}
	for i := range sa.SS {
		if sa.SS[i] != sb.SS[i] {
			return false
		}
	}
	return true
}
