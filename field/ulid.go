package field

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid"
)

// ULIDField validates the 26-character Crockford-base32 ULID form and,
// optionally, auto-assigns a fresh one on create when the caller supplied
// none.
type ULIDField struct {
	autoAssign bool
}

type ULIDOption func(*ULIDField)

// AutoAssignOnCreate marks the field to receive a freshly generated ULID
// when absent from create input.
func AutoAssignOnCreate() ULIDOption { return func(f *ULIDField) { f.autoAssign = true } }

func ULID(opts ...ULIDOption) *ULIDField {
	f := &ULIDField{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *ULIDField) Kind() Kind { return KindULID }

func (f *ULIDField) Initial() (any, bool) {
	if !f.autoAssign {
		return nil, false
	}
	return NewULID(), true
}

func (f *ULIDField) Validate(v any) error {
	s, ok := asString(v)
	if !ok {
		return fmt.Errorf("expected string, got %T", v)
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return fmt.Errorf("invalid ulid %q: %w", s, err)
	}
	return nil
}

func (f *ULIDField) ToStorage(v any) (types.AttributeValue, error) {
	s, ok := asString(v)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return attrS(s), nil
}

func (f *ULIDField) FromStorage(av types.AttributeValue) (any, error) {
	m, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("expected S attribute value, got %T", av)
	}
	return m.Value, nil
}

func (f *ULIDField) ToIndexString(v any) (string, bool, error) {
	s, ok := asString(v)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (f *ULIDField) UpdateExpression(attr string, v any, u expression.UpdateBuilder) (expression.UpdateBuilder, error) {
	if v == nil {
		return u.Remove(expression.Name(attr)), nil
	}
	av, err := f.ToStorage(v)
	if err != nil {
		return u, err
	}
	return u.Set(expression.Name(attr), expression.Value(av)), nil
}

func (f *ULIDField) UpdateBeforeSave(current any, dirtyOther bool, isCreate bool) (any, bool) {
	if isCreate && f.autoAssign {
		if _, ok := asString(current); !ok || current == "" {
			return NewULID(), true
		}
	}
	return current, false
}

var ulidEntropyMu sync.Mutex
var ulidEntropy = ulid.Monotonic(rand.Reader, 0)

// NewULID generates a fresh, monotonically-increasing-within-process ULID
// string, used both by auto-assigned id fields and by VersionField.
func NewULID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy)
	return id.String()
}
