package schema

import (
	"testing"

	"github.com/normwc/norm/field"
)

func TestRegistry_RejectsUnderscorePrefixedFieldName(t *testing.T) {
	d := &Descriptor{
		ModelPrefix: "user",
		Fields: []FieldSpec{
			{Name: "_internal", Field: field.String()},
		},
		PrimaryKey: PrimaryKeySpec{PKField: "_internal"},
	}
	if err := NewRegistry().Register(d); err == nil {
		t.Fatal("expected registration to reject a field name starting with an underscore")
	}
}

func TestRegistry_RejectsNonTTLFieldNamedTTL(t *testing.T) {
	d := &Descriptor{
		ModelPrefix: "user",
		Fields: []FieldSpec{
			{Name: "ttl", Field: field.String()},
		},
		PrimaryKey: PrimaryKeySpec{PKField: "ttl"},
	}
	if err := NewRegistry().Register(d); err == nil {
		t.Fatal("expected registration to reject a non-ttl field named ttl")
	}
}

func TestRegistry_RejectsSetFieldInIndex(t *testing.T) {
	d := &Descriptor{
		ModelPrefix: "user",
		Fields: []FieldSpec{
			{Name: "email", Field: field.String()},
			{Name: "tags", Field: field.StringSetKind()},
		},
		PrimaryKey: PrimaryKeySpec{PKField: "email"},
		Indexes: []IndexSpec{
			{Name: "byTags", Slot: IndexSlot1, PKField: "tags"},
		},
	}
	if err := NewRegistry().Register(d); err == nil {
		t.Fatal("expected registration to reject a set field used in an index")
	}
}

func TestRegistry_RejectsDuplicateIndexSlot(t *testing.T) {
	d := &Descriptor{
		ModelPrefix: "user",
		Fields: []FieldSpec{
			{Name: "email", Field: field.String()},
			{Name: "status", Field: field.String()},
		},
		PrimaryKey: PrimaryKeySpec{PKField: "email"},
		Indexes: []IndexSpec{
			{Name: "a", Slot: IndexSlot1, PKField: "status"},
			{Name: "b", Slot: IndexSlot1, PKField: "email"},
		},
	}
	if err := NewRegistry().Register(d); err == nil {
		t.Fatal("expected registration to reject two indexes sharing a slot")
	}
}

func TestRegistry_RejectsSignedIntInKeyPosition(t *testing.T) {
	d := &Descriptor{
		ModelPrefix: "acct",
		Fields: []FieldSpec{
			{Name: "balance", Field: field.Int(field.AllowNegative())},
		},
		PrimaryKey: PrimaryKeySpec{PKField: "balance"},
	}
	if err := NewRegistry().Register(d); err == nil {
		t.Fatal("expected registration to reject a signed integer field as a key")
	}
}

func TestRegistry_Register_IsIdempotentForSameShape(t *testing.T) {
	newDescriptor := func() *Descriptor {
		return &Descriptor{
			ModelPrefix: "user",
			Fields: []FieldSpec{
				{Name: "email", Field: field.String()},
			},
			PrimaryKey: PrimaryKeySpec{PKField: "email"},
		}
	}
	reg := NewRegistry()
	if err := reg.Register(newDescriptor()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(newDescriptor()); err != nil {
		t.Fatalf("expected re-registration of the same shape to be a no-op, got: %v", err)
	}
}

func TestRegistry_UniquenessConstraintOutOfRangeSlot(t *testing.T) {
	d := &Descriptor{
		ModelPrefix: "user",
		Fields: []FieldSpec{
			{Name: "email", Field: field.String()},
		},
		PrimaryKey:        PrimaryKeySpec{PKField: "email"},
		UniqueConstraints: []UniqueConstraint{{Field: "email", Slot: 7}},
	}
	if err := NewRegistry().Register(d); err == nil {
		t.Fatal("expected registration to reject an out-of-range constraint slot")
	}
}
