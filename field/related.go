package field

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RelatedField stores another entity's primary id as a plain string. It
// never cascades writes or deletes to the referenced entity; resolving the
// reference into a loaded instance is the query engine's job (component G),
// coalesced through the batch/cache context.
type RelatedField struct {
	modelPrefix string
}

// Related declares a reference to entities registered under modelPrefix.
func Related(modelPrefix string) *RelatedField { return &RelatedField{modelPrefix: modelPrefix} }

func (f *RelatedField) Kind() Kind { return KindRelated }

// TargetModelPrefix reports which entity type this reference points at, so
// the query engine knows which descriptor to hydrate against.
func (f *RelatedField) TargetModelPrefix() string { return f.modelPrefix }

func (f *RelatedField) Initial() (any, bool) { return nil, false }

func (f *RelatedField) Validate(v any) error {
	s, ok := asString(v)
	if !ok || s == "" {
		return fmt.Errorf("related field expects a non-empty primary id string, got %v (%T)", v, v)
	}
	return nil
}

func (f *RelatedField) ToStorage(v any) (types.AttributeValue, error) {
	s, ok := asString(v)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return attrS(s), nil
}

func (f *RelatedField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("expected S attribute value, got %T", av)
	}
	return m.Value, nil
}

func (f *RelatedField) ToIndexString(v any) (string, bool, error) {
	s, ok := asString(v)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (f *RelatedField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *RelatedField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
