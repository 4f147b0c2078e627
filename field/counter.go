package field

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CounterField is an int64 attribute that accepts either an absolute value
// or a delta. A delta is spelled as a string with an explicit sign, e.g.
// "+1" or "-3", and is applied server-side as an ADD update fragment
// instead of a SET, so concurrent increments never clobber each other.
type CounterField struct {
	init *int64
}

func WithCounterInitial(v int64) func(*CounterField) {
	return func(f *CounterField) { f.init = &v }
}

func Counter(opts ...func(*CounterField)) *CounterField {
	f := &CounterField{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *CounterField) Kind() Kind { return KindCounter }

func (f *CounterField) Initial() (any, bool) {
	if f.init == nil {
		return nil, false
	}
	return *f.init, true
}

// delta returns the signed delta amount and true if v is a delta-form
// string ("+N" or "-N"); otherwise false.
func delta(v any) (int64, bool) {
	s, ok := asString(v)
	if !ok || len(s) < 2 {
		return 0, false
	}
	if s[0] != '+' && s[0] != '-' {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (f *CounterField) Validate(v any) error {
	if _, ok := delta(v); ok {
		return nil
	}
	if _, ok := toInt64(v); ok {
		return nil
	}
	return fmt.Errorf("expected integer or signed delta string, got %v (%T)", v, v)
}

func (f *CounterField) ToStorage(v any) (types.AttributeValue, error) {
	if d, ok := delta(v); ok {
		return attrN(strconv.FormatInt(d, 10)), nil
	}
	n, ok := toInt64(v)
	if !ok {
		return nil, fmt.Errorf("expected integer or signed delta string, got %T", v)
	}
	return attrN(strconv.FormatInt(n, 10)), nil
}

func (f *CounterField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("expected N attribute value, got %T", av)
	}
	n, err := strconv.ParseInt(m.Value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse counter attribute: %w", err)
	}
	return n, nil
}

func (f *CounterField) ToIndexString(v any) (string, bool, error) {
	n, ok := toInt64(v)
	if !ok {
		return "", false, nil
	}
	if n < 0 {
		return "", false, fmt.Errorf("negative counter %d cannot be used in an index position", n)
	}
	return fmt.Sprintf("%0*d", indexIntWidth, n), true, nil
}

// UpdateExpression emits an ADD fragment for a delta value, a SET for an
// absolute one.
func (f *CounterField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if d, ok := delta(v); ok {
		return u.Add(expression.Name(attr), expression.Value(attrN(strconv.FormatInt(d, 10)))), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *CounterField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
