package field

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// FloatField is a float64 attribute. Its index-string form is a
// fixed-precision exponential representation ('e' format). Lexicographic
// order of that form matches numeric order only among non-negative values
// that share the same decimal exponent; across exponents, or for negative
// values, it does not.
type FloatField struct {
	init      *float64
	precision int
}

type FloatOption func(*FloatField)

func WithFloatInitial(v float64) FloatOption { return func(f *FloatField) { f.init = &v } }
func WithPrecision(p int) FloatOption        { return func(f *FloatField) { f.precision = p } }

func Float(opts ...FloatOption) *FloatField {
	f := &FloatField{precision: 10}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FloatField) Kind() Kind { return KindFloat }

func (f *FloatField) Initial() (any, bool) {
	if f.init == nil {
		return nil, false
	}
	return *f.init, true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (f *FloatField) Validate(v any) error {
	if _, ok := toFloat64(v); !ok {
		return fmt.Errorf("expected float, got %T", v)
	}
	return nil
}

func (f *FloatField) ToStorage(v any) (types.AttributeValue, error) {
	n, ok := toFloat64(v)
	if !ok {
		return nil, fmt.Errorf("expected float, got %T", v)
	}
	return attrN(strconv.FormatFloat(n, 'f', -1, 64)), nil
}

func (f *FloatField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("expected N attribute value, got %T", av)
	}
	n, err := strconv.ParseFloat(m.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("parse float attribute: %w", err)
	}
	return n, nil
}

func (f *FloatField) ToIndexString(v any) (string, bool, error) {
	n, ok := toFloat64(v)
	if !ok {
		return "", false, nil
	}
	return strconv.FormatFloat(n, 'e', f.precision, 64), true, nil
}

func (f *FloatField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *FloatField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
