// Package field is the field kernel (component A): per-kind validate,
// encode-to-storage, encode-to-index-string, and decode, plus the
// before-save hooks that let version, create/modified-date and
// auto-assigning ulid fields synthesize their own values.
package field

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Kind identifies which of the closed set of field variants a Field is.
type Kind string

const (
	KindString       Kind = "string"
	KindInt          Kind = "int"
	KindFloat        Kind = "float"
	KindBool         Kind = "bool"
	KindDateTime     Kind = "datetime"
	KindULID         Kind = "ulid"
	KindVersion      Kind = "version"
	KindCounter      Kind = "counter"
	KindTTL          Kind = "ttl"
	KindCreateDate   Kind = "createDate"
	KindModifiedDate Kind = "modifiedDate"
	KindStringSet    Kind = "stringSet"
	KindRelated      Kind = "related"
)

// Field is the contract every field kind implements. Values flowing through
// it are always the field's Go-native representation (string, int64,
// float64, bool, time.Time, map[string]struct{} for sets); never a raw
// backend attribute value, except at the ToStorage/FromStorage boundary.
type Field interface {
	Kind() Kind

	// Initial returns the field's default value when absent from create
	// input, and whether one exists.
	Initial() (any, bool)

	// Validate reports whether v is an acceptable value for this field.
	Validate(v any) error

	// ToStorage encodes v into the backend's native attribute-value form.
	ToStorage(v any) (types.AttributeValue, error)

	// FromStorage decodes a backend attribute value back into Go-native form.
	FromStorage(av types.AttributeValue) (any, error)

	// ToIndexString produces the order-preserving string form used in sort
	// keys and partition-key components. ok is false when v is undefined
	// (e.g. nil) and thus the projection that depends on it must be omitted.
	ToIndexString(v any) (s string, ok bool, err error)

	// UpdateExpression appends this field's contribution (SET/ADD/REMOVE/
	// DELETE) to an update builder for the given attribute name and value.
	UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error)

	// UpdateBeforeSave lets a field kind synthesize a new value ahead of a
	// save (ulid bump for version, epoch stamp for create/modified-date,
	// a fresh ulid for an auto-assigning ulid field on create). Counter and
	// ttl fields return their value unchanged; a counter delta is sent as an
	// ADD fragment by UpdateExpression instead. dirtyOther reports whether any
	// field other than this one is dirty in the same save. It returns the
	// possibly-updated value and whether the field should be considered
	// dirty for the purposes of this save.
	UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (newValue any, changed bool)
}

// ErrUndefined is the error for a field value that is not set. No function
// in this package returns it; ToIndexString reports a missing value through
// its ok flag instead.
var ErrUndefined = fmt.Errorf("field: value undefined")

func attrS(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }
func attrN(s string) types.AttributeValue { return &types.AttributeValueMemberN{Value: s} }
func attrBool(b bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: b}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
