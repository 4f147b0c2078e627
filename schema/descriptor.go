// Package schema holds the entity descriptor (component B) and the single
// generic entity-instance type (component H) that every registered entity
// shares, following the teacher's table-driven (not code-generated) entity
// plumbing.
package schema

import (
	"github.com/normwc/norm/field"
)

// ModelPrefixSentinel is the sentinel primary-key field name meaning "use
// the entity's modelPrefix as the literal key component" instead of an
// actual field value.
const ModelPrefixSentinel = "$modelPrefix"

// ReservedAttrPrefix marks physical attributes derived by the codec
// (_pk, _sk, _s1_pk..._s5_sk) that user field names may never collide with.
const ReservedAttrPrefix = "_"

// IndexSlot identifies one of the five reserved physical secondary-index
// key pairs.
type IndexSlot int

const (
	IndexSlot1 IndexSlot = 1
	IndexSlot2 IndexSlot = 2
	IndexSlot3 IndexSlot = 3
	IndexSlot4 IndexSlot = 4
	IndexSlot5 IndexSlot = 5
)

// ConstraintSlot identifies one of the three reserved uniqueness-constraint
// partition namespaces.
type ConstraintSlot int

const (
	ConstraintSlot1 ConstraintSlot = 1
	ConstraintSlot2 ConstraintSlot = 2
	ConstraintSlot3 ConstraintSlot = 3
)

// FieldSpec pairs a field name with its kernel implementation.
type FieldSpec struct {
	Name  string
	Field field.Field
}

// PrimaryKeySpec names the fields backing the table's physical (_pk, _sk).
// Either may be ModelPrefixSentinel.
type PrimaryKeySpec struct {
	PKField string
	SKField string
}

// IndexSpec declares one of the five named secondary indexes.
type IndexSpec struct {
	Name    string
	Slot    IndexSlot
	PKField string
	SKField string
}

// UniqueConstraint declares a uniqueness constraint on a single field.
type UniqueConstraint struct {
	Field string
	Slot  ConstraintSlot
}

// IterationSpec configures the iteration (keys-only scan) GSI for an
// iterable entity.
type IterationSpec struct {
	Enabled     bool
	BucketCount int
}

// Descriptor is the frozen, per-entity metadata produced by Registry.Register.
// It is immutable after registration.
type Descriptor struct {
	ModelPrefix      string
	Fields           []FieldSpec
	PrimaryKey       PrimaryKeySpec
	Indexes          []IndexSpec
	UniqueConstraints []UniqueConstraint
	Iteration        IterationSpec
	TenantScoped     bool
	DefaultQueryLimit int32

	fieldByName map[string]field.Field
}

// Field looks up a field kernel by name.
func (d *Descriptor) Field(name string) (field.Field, bool) {
	f, ok := d.fieldByName[name]
	return f, ok
}

// RequiredFields returns field names that must be present at create time:
// the primary key's declared fields (invariant c), excluding the sentinel.
func (d *Descriptor) RequiredFields() []string {
	var out []string
	if d.PrimaryKey.PKField != ModelPrefixSentinel {
		out = append(out, d.PrimaryKey.PKField)
	}
	if d.PrimaryKey.SKField != ModelPrefixSentinel && d.PrimaryKey.SKField != "" {
		out = append(out, d.PrimaryKey.SKField)
	}
	return out
}

// TTLFieldName returns the name of the descriptor's ttl field, if any.
func (d *Descriptor) TTLFieldName() (string, bool) {
	for _, fs := range d.Fields {
		if fs.Field.Kind() == field.KindTTL {
			return fs.Name, true
		}
	}
	return "", false
}

// VersionFieldName returns the name of the descriptor's version field, if any.
func (d *Descriptor) VersionFieldName() (string, bool) {
	for _, fs := range d.Fields {
		if fs.Field.Kind() == field.KindVersion {
			return fs.Name, true
		}
	}
	return "", false
}

// IndexBySlot finds the secondary index declared for a given slot.
func (d *Descriptor) IndexBySlot(slot IndexSlot) (IndexSpec, bool) {
	for _, ix := range d.Indexes {
		if ix.Slot == slot {
			return ix, true
		}
	}
	return IndexSpec{}, false
}

// IndexByName finds a secondary index by its declared name.
func (d *Descriptor) IndexByName(name string) (IndexSpec, bool) {
	for _, ix := range d.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexSpec{}, false
}
