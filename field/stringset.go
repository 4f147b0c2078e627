package field

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// StringSet is the full-snapshot, Go-native representation of a string-set
// field's value.
type StringSet map[string]struct{}

// NewStringSet builds a StringSet from a list of members.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

func (s StringSet) sortedMembers() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// StringSetDelta carries the members added and removed since the set was
// loaded; the live-view proxy (schema.Instance) records Add/Delete calls
// into one of these instead of replaying a full snapshot, so saving a set
// field emits DynamoDB ADD/DELETE fragments rather than clobbering
// concurrent writers' unrelated members.
type StringSetDelta struct {
	Add    []string
	Remove []string
}

// StringSetField is a bounded string-set attribute. An empty set is never
// stored: the attribute is simply absent, which is what makes
// {$exists: false} match an entity whose set has no members.
type StringSetField struct {
	maxMemberCount int
	maxStringLen   int
}

type StringSetOption func(*StringSetField)

// WithMaxMemberCount bounds how many members the set may hold. 0 means
// unbounded.
func WithMaxMemberCount(n int) StringSetOption { return func(f *StringSetField) { f.maxMemberCount = n } }

// WithMaxMemberLength bounds the length of any individual member. 0 means
// unbounded.
func WithMaxMemberLength(n int) StringSetOption { return func(f *StringSetField) { f.maxStringLen = n } }

func StringSetKind(opts ...StringSetOption) *StringSetField {
	f := &StringSetField{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *StringSetField) Kind() Kind { return KindStringSet }

func (f *StringSetField) Initial() (any, bool) { return StringSet{}, true }

func (f *StringSetField) validateMembers(members []string) error {
	if f.maxMemberCount > 0 && len(members) > f.maxMemberCount {
		return fmt.Errorf("set has %d members, exceeds max of %d", len(members), f.maxMemberCount)
	}
	if f.maxStringLen > 0 {
		for _, m := range members {
			if len(m) > f.maxStringLen {
				return fmt.Errorf("member %q exceeds max length %d", m, f.maxStringLen)
			}
		}
	}
	return nil
}

func (f *StringSetField) Validate(v any) error {
	switch s := v.(type) {
	case StringSet:
		return f.validateMembers(s.sortedMembers())
	case StringSetDelta:
		return f.validateMembers(append(append([]string{}, s.Add...), s.Remove...))
	default:
		return fmt.Errorf("expected StringSet or StringSetDelta, got %T", v)
	}
}

func (f *StringSetField) ToStorage(v any) (types.AttributeValue, error) {
	s, ok := v.(StringSet)
	if !ok {
		return nil, fmt.Errorf("expected StringSet, got %T", v)
	}
	members := s.sortedMembers()
	if len(members) == 0 {
		return nil, fmt.Errorf("empty string set has no storage representation, caller must omit the attribute")
	}
	return &types.AttributeValueMemberSS{Value: members}, nil
}

func (f *StringSetField) FromStorage(av types.AttributeValue) (any, error) {
	if av == nil {
		return StringSet{}, nil
	}
	m, ok := av.(*types.AttributeValueMemberSS)
	if !ok {
		return nil, fmt.Errorf("expected SS attribute value, got %T", av)
	}
	return NewStringSet(m.Value...), nil
}

func (f *StringSetField) ToIndexString(v any) (string, bool, error) {
	return "", false, nil
}

// UpdateExpression emits ADD/DELETE fragments for a delta, or a SET/REMOVE
// pair for a full-snapshot replacement.
func (f *StringSetField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	switch s := v.(type) {
	case StringSetDelta:
		if len(s.Add) > 0 {
			u = u.Add(expression.Name(attr), expression.Value(&types.AttributeValueMemberSS{Value: s.Add}))
		}
		if len(s.Remove) > 0 {
			u = u.Delete(expression.Name(attr), expression.Value(&types.AttributeValueMemberSS{Value: s.Remove}))
		}
		return u, nil
	case StringSet:
		members := s.sortedMembers()
		if len(members) == 0 {
			return u.Remove(expression.Name(attr)), nil
		}
		return u.Set(expression.Name(attr), expression.Value(&types.AttributeValueMemberSS{Value: members})), nil
	case nil:
		return u.Remove(expression.Name(attr)), nil
	default:
		return u, fmt.Errorf("expected StringSet or StringSetDelta, got %T", v)
	}
}

func (f *StringSetField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	return current, false
}
