package field

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// StringField is a plain text attribute, optionally bounded in length.
type StringField struct {
	init    *string
	maxLen  int
	minLen  int
	allowed map[string]struct{} // optional enum
}

type StringOption func(*StringField)

func WithStringInitial(v string) StringOption { return func(f *StringField) { f.init = &v } }
func WithMaxLength(n int) StringOption        { return func(f *StringField) { f.maxLen = n } }
func WithMinLength(n int) StringOption        { return func(f *StringField) { f.minLen = n } }
func WithEnum(values ...string) StringOption {
	return func(f *StringField) {
		f.allowed = make(map[string]struct{}, len(values))
		for _, v := range values {
			f.allowed[v] = struct{}{}
		}
	}
}

func String(opts ...StringOption) *StringField {
	f := &StringField{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *StringField) Kind() Kind { return KindString }

func (f *StringField) Initial() (any, bool) {
	if f.init == nil {
		return nil, false
	}
	return *f.init, true
}

func (f *StringField) Validate(v any) error {
	s, ok := asString(v)
	if !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	if f.maxLen > 0 && len(s) > f.maxLen {
		return fmt.Errorf("exceeds max length %d", f.maxLen)
	}
	if f.minLen > 0 && len(s) < f.minLen {
		return fmt.Errorf("shorter than min length %d", f.minLen)
	}
	if f.allowed != nil {
		if _, ok := f.allowed[s]; !ok {
			return fmt.Errorf("value %q is not one of the allowed values", s)
		}
	}
	return nil
}

func (f *StringField) ToStorage(v any) (types.AttributeValue, error) {
	s, ok := asString(v)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return attrS(s), nil
}

func (f *StringField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("expected S attribute value, got %T", av)
	}
	return m.Value, nil
}

func (f *StringField) ToIndexString(v any) (string, bool, error) {
	s, ok := asString(v)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (f *StringField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *StringField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
