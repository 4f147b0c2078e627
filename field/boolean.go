package field

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// BoolField is a boolean attribute. Booleans never appear in a key
// position (ToIndexString always declines).
type BoolField struct {
	init *bool
}

func WithBoolInitial(v bool) func(*BoolField) { return func(f *BoolField) { f.init = &v } }

func Bool(opts ...func(*BoolField)) *BoolField {
	f := &BoolField{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *BoolField) Kind() Kind { return KindBool }

func (f *BoolField) Initial() (any, bool) {
	if f.init == nil {
		return nil, false
	}
	return *f.init, true
}

func (f *BoolField) Validate(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", v)
	}
	return nil
}

func (f *BoolField) ToStorage(v any) (types.AttributeValue, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	return attrBool(b), nil
}

func (f *BoolField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberBOOL)
	if !ok {
		return nil, fmt.Errorf("expected BOOL attribute value, got %T", av)
	}
	return m.Value, nil
}

func (f *BoolField) ToIndexString(v any) (string, bool, error) {
	return "", false, nil
}

func (f *BoolField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *BoolField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
