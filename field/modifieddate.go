package field

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ModifiedDateField stamps the save time on create and on every subsequent
// save where some other field is dirty; a no-op save leaves it untouched.
type ModifiedDateField struct{}

func ModifiedDate() *ModifiedDateField { return &ModifiedDateField{} }

func (f *ModifiedDateField) Kind() Kind { return KindModifiedDate }

func (f *ModifiedDateField) Initial() (any, bool) { return nil, false }

func (f *ModifiedDateField) Validate(v any) error {
	if _, ok := toTime(v); !ok {
		return fmt.Errorf("expected time.Time, got %T", v)
	}
	return nil
}

func (f *ModifiedDateField) ToStorage(v any) (types.AttributeValue, error) {
	t, ok := toTime(v)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	}
	return attrN(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (f *ModifiedDateField) FromStorage(av types.AttributeValue) (any, error) {
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

func (f *ModifiedDateField) ToIndexString(v any) (string, bool, error) {
	t, ok := toTime(v)
	if !ok {
		return "", false, nil
	}
	return t.UTC().Format(indexTimeLayout), true, nil
}

func (f *ModifiedDateField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *ModifiedDateField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	if isCreate || dirtyOther {
		return NowFunc(), true
	}
	return current, false
}
