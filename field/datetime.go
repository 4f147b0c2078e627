package field

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// indexTimeLayout is the fixed-width UTC layout (millisecond precision, the
// same resolution as storage) used for every time-valued field's index
// string; a fixed width keeps lexicographic order equal to time order.
const indexTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DateTimeField stores a time.Time as epoch milliseconds; its index form
// is the fixed-width indexTimeLayout string at UTC, which stays
// lexicographically monotone with time.
type DateTimeField struct {
	init *time.Time
}

func WithDateTimeInitial(v time.Time) func(*DateTimeField) {
	return func(f *DateTimeField) { f.init = &v }
}

func DateTime(opts ...func(*DateTimeField)) *DateTimeField {
	f := &DateTimeField{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *DateTimeField) Kind() Kind { return KindDateTime }

func (f *DateTimeField) Initial() (any, bool) {
	if f.init == nil {
		return nil, false
	}
	return *f.init, true
}

func toTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func (f *DateTimeField) Validate(v any) error {
	if _, ok := toTime(v); !ok {
		return fmt.Errorf("expected time.Time, got %T", v)
	}
	return nil
}

func (f *DateTimeField) ToStorage(v any) (types.AttributeValue, error) {
	t, ok := toTime(v)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	}
	return attrN(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (f *DateTimeField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("expected N attribute value, got %T", av)
	}
	ms, err := strconv.ParseInt(m.Value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse epoch millis: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (f *DateTimeField) ToIndexString(v any) (string, bool, error) {
	t, ok := toTime(v)
	if !ok {
		return "", false, nil
	}
	return t.UTC().Format(indexTimeLayout), true, nil
}

func (f *DateTimeField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *DateTimeField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
