package field

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// VersionField backs the entity's optimistic-concurrency token.
// UpdateBeforeSave assigns a fresh ulid on create and whenever any other
// field on the same save is dirty, replacing any caller-supplied value, and
// leaves the current value untouched on a pure read or a no-op save. It does
// not reject a caller-supplied value: on an update where the version is the
// only dirty field, the value the caller set is kept.
type VersionField struct{}

func Version() *VersionField { return &VersionField{} }

func (f *VersionField) Kind() Kind { return KindVersion }

func (f *VersionField) Initial() (any, bool) { return NewULID(), true }

func (f *VersionField) Validate(v any) error {
	s, ok := asString(v)
	if !ok || s == "" {
		return fmt.Errorf("version must be a non-empty string, got %T", v)
	}
	return nil
}

func (f *VersionField) ToStorage(v any) (types.AttributeValue, error) {
	s, ok := asString(v)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return attrS(s), nil
}

func (f *VersionField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("expected S attribute value, got %T", av)
	}
	return m.Value, nil
}

func (f *VersionField) ToIndexString(v any) (string, bool, error) {
	s, ok := asString(v)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (f *VersionField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

// UpdateBeforeSave bumps the version on create, and on any update where a
// field other than the version itself is dirty. A save that touches
// nothing else leaves version untouched so repeated reads never look like
// concurrent writers.
func (f *VersionField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	if isCreate || dirtyOther {
		return NewULID(), true
	}
	return current, false
}
