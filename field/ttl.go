package field

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TTLAttributeName is the attribute name a ttl field must be registered
// under; the backend's time-to-live configuration targets this name
// literally.
const TTLAttributeName = "ttl"

// TTLField stores a time.Time as epoch seconds (not millis, matching the
// backend's native ttl-attribute unit).
type TTLField struct{}

func TTL() *TTLField { return &TTLField{} }

func (f *TTLField) Kind() Kind { return KindTTL }

func (f *TTLField) Initial() (any, bool) { return nil, false }

func (f *TTLField) Validate(v any) error {
	if _, ok := toTime(v); !ok {
		return fmt.Errorf("expected time.Time, got %T", v)
	}
	return nil
}

func (f *TTLField) ToStorage(v any) (types.AttributeValue, error) {
	t, ok := toTime(v)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	}
	return attrN(strconv.FormatInt(t.Unix(), 10)), nil
}

func (f *TTLField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("expected N attribute value, got %T", av)
	}
	sec, err := strconv.ParseInt(m.Value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse epoch seconds: %w", err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (f *TTLField) ToIndexString(v any) (string, bool, error) {
	return "", false, nil
}

func (f *TTLField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *TTLField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
