// Package mutate implements the create/update/delete pipeline (component
// F): field validation, index projection, uniqueness companion rows,
// optimistic version, and the transact-vs-single-write dispatch decision.
package mutate

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/keycodec"
	"github.com/normwc/norm/schema"
)

// Item is a physical backend item: the declared fields' storage
// representations plus every derived key attribute.
type Item map[string]types.AttributeValue

// indexString resolves a field's index-string projection for v, returning
// ("", false, nil) when the field is absent or undefined (the projection
// must then be omitted, per spec.md §4.F step 5).
func indexString(d *schema.Descriptor, fieldName string, inst *schema.Instance) (string, bool, error) {
	if fieldName == schema.ModelPrefixSentinel {
		return "", true, nil
	}
	f, ok := d.Field(fieldName)
	if !ok {
		return "", false, fmt.Errorf("index field %q not declared on entity %q", fieldName, d.ModelPrefix)
	}
	v, ok := inst.Get(fieldName)
	if !ok {
		return "", false, nil
	}
	s, ok, err := f.ToIndexString(v)
	if err != nil {
		return "", false, err
	}
	return s, ok, nil
}

// PrimaryID computes the entity's opaque primary id from its current field
// values.
func PrimaryID(d *schema.Descriptor, inst *schema.Instance) (string, error) {
	pk, ok, err := indexString(d, d.PrimaryKey.PKField, inst)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ddberr.Validation(d.PrimaryKey.PKField, "required primary key field is unset")
	}
	skSentinel := d.PrimaryKey.SKField == schema.ModelPrefixSentinel || d.PrimaryKey.SKField == ""
	var sk string
	if !skSentinel {
		sk, ok, err = indexString(d, d.PrimaryKey.SKField, inst)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ddberr.Validation(d.PrimaryKey.SKField, "required sort key field is unset")
		}
	}
	return keycodec.EncodePrimaryID(pk, sk, skSentinel)
}

// ProjectKeys computes every physical key attribute (_pk/_sk, each declared
// index's _sN_pk/_sN_sk, and the iteration bucket key if enabled) for the
// instance's current values. A secondary index whose pk or sk component is
// undefined is simply omitted from the result, matching spec.md §4.F step 5.
func ProjectKeys(d *schema.Descriptor, inst *schema.Instance, primaryID string) (Item, error) {
	out := Item{}

	pk, _, err := indexString(d, d.PrimaryKey.PKField, inst)
	if err != nil {
		return nil, err
	}
	skSentinel := d.PrimaryKey.SKField == schema.ModelPrefixSentinel || d.PrimaryKey.SKField == ""
	var sk string
	if !skSentinel {
		sk, _, err = indexString(d, d.PrimaryKey.SKField, inst)
		if err != nil {
			return nil, err
		}
	}
	out[keycodec.PKAttr] = attrS(keycodec.PrimaryPartition(d.ModelPrefix, pk))
	out[keycodec.SKAttr] = attrS(keycodec.PrimarySort(d.ModelPrefix, sk, skSentinel))

	for _, ix := range d.Indexes {
		pkVal, pkOK, err := indexString(d, ix.PKField, inst)
		if err != nil {
			return nil, err
		}
		if !pkOK {
			continue
		}
		skSentinel := ix.SKField == schema.ModelPrefixSentinel || ix.SKField == ""
		var skVal string
		skOK := true
		if !skSentinel {
			skVal, skOK, err = indexString(d, ix.SKField, inst)
			if err != nil {
				return nil, err
			}
		}
		if !skOK {
			continue
		}
		out[keycodec.SlotPKAttr(int(ix.Slot))] = attrS(keycodec.SecondaryPartition(d.ModelPrefix, int(ix.Slot), pkVal))
		out[keycodec.SlotSKAttr(int(ix.Slot))] = attrS(keycodec.SecondarySort(d.ModelPrefix, skVal, skSentinel))
	}

	if d.Iteration.Enabled {
		bucket := keycodec.BucketIndex(primaryID, d.Iteration.BucketCount)
		out[keycodec.IterPKAttr] = attrS(keycodec.IterationPartition(d.ModelPrefix, bucket))
		out[keycodec.IterSKAttr] = attrS(keycodec.IterationSort(primaryID))
	}

	return out, nil
}

// ProjectFields encodes every declared field's current value through its
// storage representation. Fields with no current value (e.g. an unset ttl,
// or an empty string-set) are omitted from the result.
func ProjectFields(d *schema.Descriptor, inst *schema.Instance) (Item, error) {
	out := Item{}
	for _, fs := range d.Fields {
		v, ok := inst.Get(fs.Name)
		if !ok {
			continue
		}
		av, err := fs.Field.ToStorage(v)
		if err != nil {
			if isEmptySetOmission(err) {
				continue
			}
			return nil, fmt.Errorf("field %q: %w", fs.Name, err)
		}
		out[fs.Name] = av
	}
	return out, nil
}

func isEmptySetOmission(err error) bool {
	return err != nil && strings.Contains(err.Error(), "empty string set has no storage representation")
}

func attrS(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }
