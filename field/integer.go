package field

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// indexIntWidth is the zero-pad width used so that lexicographic order of
// the index-string form matches numeric order for non-negative integers.
const indexIntWidth = 20

// IntField is a 64-bit integer attribute.
//
// Signed fields may hold negative values but, per the key-encoding
// invariant, may never be used in a primary-key, secondary-index, or
// uniqueness-constraint position — schema.Register rejects that
// combination. Unsigned (the default) is always safe in a key position.
type IntField struct {
	init   *int64
	signed bool
}

type IntOption func(*IntField)

func WithIntInitial(v int64) IntOption { return func(f *IntField) { f.init = &v } }

// AllowNegative marks the field as signed. Such a field can never be used
// as a key/index/unique-constraint field.
func AllowNegative() IntOption { return func(f *IntField) { f.signed = true } }

func Int(opts ...IntOption) *IntField {
	f := &IntField{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *IntField) Kind() Kind { return KindInt }

// Signed reports whether this field permits negative values. Used by
// schema registration to reject signed integers in key positions.
func (f *IntField) Signed() bool { return f.signed }

func (f *IntField) Initial() (any, bool) {
	if f.init == nil {
		return nil, false
	}
	return *f.init, true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func (f *IntField) Validate(v any) error {
	n, ok := toInt64(v)
	if !ok {
		return fmt.Errorf("expected integer, got %T", v)
	}
	if n < 0 && !f.signed {
		return fmt.Errorf("negative value %d not allowed on unsigned integer field", n)
	}
	return nil
}

func (f *IntField) ToStorage(v any) (types.AttributeValue, error) {
	n, ok := toInt64(v)
	if !ok {
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
	return attrN(strconv.FormatInt(n, 10)), nil
}

func (f *IntField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("expected N attribute value, got %T", av)
	}
	n, err := strconv.ParseInt(m.Value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse integer attribute: %w", err)
	}
	return n, nil
}

// ToIndexString zero-pads non-negative integers to a fixed width so that
// lexicographic order matches numeric order (testable property 8).
func (f *IntField) ToIndexString(v any) (string, bool, error) {
	n, ok := toInt64(v)
	if !ok {
		return "", false, nil
	}
	if n < 0 {
		return "", false, fmt.Errorf("negative integer %d cannot be used in an index position", n)
	}
	return fmt.Sprintf("%0*d", indexIntWidth, n), true, nil
}

func (f *IntField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *IntField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
