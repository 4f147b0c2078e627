package field

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CreateDateField stamps the save time once, on create, and never again.
type CreateDateField struct{}

func CreateDate() *CreateDateField { return &CreateDateField{} }

func (f *CreateDateField) Kind() Kind { return KindCreateDate }

func (f *CreateDateField) Initial() (any, bool) { return nil, false }

func (f *CreateDateField) Validate(v any) error {
	if _, ok := toTime(v); !ok {
		return fmt.Errorf("expected time.Time, got %T", v)
	}
	return nil
}

func (f *CreateDateField) ToStorage(v any) (types.AttributeValue, error) {
	t, ok := toTime(v)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	}
	return attrN(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (f *CreateDateField) FromStorage(av types.AttributeValue) (any, error) {
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

func (f *CreateDateField) ToIndexString(v any) (string, bool, error) {
	t, ok := toTime(v)
	if !ok {
		return "", false, nil
	}
	return t.UTC().Format(indexTimeLayout), true, nil
}

func (f *CreateDateField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

// UpdateBeforeSave assigns the current time only on create; updates never
// touch it, even if the caller passed nothing.
func (f *CreateDateField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	if isCreate {
		if _, ok := toTime(current); !ok {
			return NowFunc(), true
		}
	}
	return current, false
}

// NowFunc is a package-level indirection over time.Now so tests can pin the
// clock for create/modified-date fields.
var NowFunc = func() time.Time { return time.Now().UTC() }
