package schema

import (
	"strings"
	"sync"

	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/field"
)

// Registry owns the set of descriptors registered for one tenant.
// Registration is the single validation point; the registry is mutated only
// during registration and is safe to read concurrently thereafter.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]*Descriptor)}
}

// Get looks up a registered descriptor by its modelPrefix.
func (r *Registry) Get(modelPrefix string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[modelPrefix]
	return d, ok
}

// Register validates d against the invariants in §3 and freezes it into the
// registry. Re-registering an already-registered modelPrefix is a no-op
// when both descriptors have the same primary key and the same numbers of
// fields, indexes and uniqueness constraints, and a ConfigurationError when
// any of those differ. Field names, field kinds and the index and constraint
// definitions themselves are not compared.
func (r *Registry) Register(d *Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}
	d.fieldByName = make(map[string]field.Field, len(d.Fields))
	for _, fs := range d.Fields {
		d.fieldByName[fs.Name] = fs.Field
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.descriptors[d.ModelPrefix]; ok {
		if !sameShape(existing, d) {
			return ddberr.Configuration("entity %q already registered with a different shape", d.ModelPrefix)
		}
		return nil
	}
	r.descriptors[d.ModelPrefix] = d
	return nil
}

// MustRegister is Register, but panics on error; intended for
// package-init-time registration where a malformed descriptor is a
// programmer error, not a runtime condition.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

func sameShape(a, b *Descriptor) bool {
	return len(a.Fields) == len(b.Fields) &&
		a.PrimaryKey == b.PrimaryKey &&
		len(a.Indexes) == len(b.Indexes) &&
		len(a.UniqueConstraints) == len(b.UniqueConstraints)
}

func validate(d *Descriptor) error {
	if d.ModelPrefix == "" {
		return ddberr.Configuration("descriptor must declare a non-empty modelPrefix")
	}
	if len(d.Fields) == 0 {
		return ddberr.Configuration("entity %q: must declare at least one field", d.ModelPrefix)
	}

	fieldNames := make(map[string]field.Field, len(d.Fields))
	for _, fs := range d.Fields {
		if fs.Name == "" {
			return ddberr.Configuration("entity %q: field name must not be empty", d.ModelPrefix)
		}
		// invariant (a): no user field may start with "_".
		if strings.HasPrefix(fs.Name, ReservedAttrPrefix) {
			return ddberr.Configuration("entity %q: field %q may not start with %q (reserved for derived attributes)", d.ModelPrefix, fs.Name, ReservedAttrPrefix)
		}
		if _, dup := fieldNames[fs.Name]; dup {
			return ddberr.Configuration("entity %q: field %q declared more than once", d.ModelPrefix, fs.Name)
		}
		fieldNames[fs.Name] = fs.Field
	}

	// invariant (b): a field literally named "ttl" must be a ttl field.
	if f, ok := fieldNames[field.TTLAttributeName]; ok && f.Kind() != field.KindTTL {
		return ddberr.Configuration("entity %q: field named %q must be a ttl field, got kind %q", d.ModelPrefix, field.TTLAttributeName, f.Kind())
	}

	if err := validatePKField(d, fieldNames); err != nil {
		return err
	}

	seenSlots := map[IndexSlot]bool{}
	for _, ix := range d.Indexes {
		if ix.Slot < IndexSlot1 || ix.Slot > IndexSlot5 {
			return ddberr.Configuration("entity %q: index %q declares out-of-range slot %d", d.ModelPrefix, ix.Name, ix.Slot)
		}
		if seenSlots[ix.Slot] {
			return ddberr.Configuration("entity %q: index slot %d used more than once", d.ModelPrefix, ix.Slot)
		}
		seenSlots[ix.Slot] = true

		// invariant (d): set fields may never appear in any index.
		if err := requireNotSet(d, fieldNames, ix.PKField); err != nil {
			return err
		}
		if ix.SKField != "" && ix.SKField != ModelPrefixSentinel {
			if err := requireNotSet(d, fieldNames, ix.SKField); err != nil {
				return err
			}
		}
		if ix.PKField != ModelPrefixSentinel {
			if _, ok := fieldNames[ix.PKField]; !ok {
				return ddberr.Configuration("entity %q: index %q references undeclared field %q", d.ModelPrefix, ix.Name, ix.PKField)
			}
		}
		for _, name := range []string{ix.PKField, ix.SKField} {
			if signed, ok := fieldNames[name].(interface{ Signed() bool }); ok && signed.Signed() {
				return ddberr.Configuration("entity %q: signed integer field %q cannot be used in index %q", d.ModelPrefix, name, ix.Name)
			}
		}
	}

	seenConstraintSlots := map[ConstraintSlot]bool{}
	for _, uc := range d.UniqueConstraints {
		if uc.Slot < ConstraintSlot1 || uc.Slot > ConstraintSlot3 {
			return ddberr.Configuration("entity %q: uniqueness constraint on %q declares out-of-range slot %d", d.ModelPrefix, uc.Field, uc.Slot)
		}
		if seenConstraintSlots[uc.Slot] {
			return ddberr.Configuration("entity %q: uniqueness constraint slot %d used more than once", d.ModelPrefix, uc.Slot)
		}
		seenConstraintSlots[uc.Slot] = true
		if _, ok := fieldNames[uc.Field]; !ok {
			return ddberr.Configuration("entity %q: uniqueness constraint references undeclared field %q", d.ModelPrefix, uc.Field)
		}
		if signed, ok := fieldNames[uc.Field].(interface{ Signed() bool }); ok && signed.Signed() {
			return ddberr.Configuration("entity %q: signed integer field %q cannot back a uniqueness constraint", d.ModelPrefix, uc.Field)
		}
	}

	if d.Iteration.Enabled {
		if d.Iteration.BucketCount < 1 || d.Iteration.BucketCount > 1000 {
			return ddberr.Configuration("entity %q: iteration bucket count %d out of range [1,1000]", d.ModelPrefix, d.Iteration.BucketCount)
		}
	}

	return nil
}

func validatePKField(d *Descriptor, fieldNames map[string]field.Field) error {
	if d.PrimaryKey.PKField == "" {
		return ddberr.Configuration("entity %q: primary key must declare a pk field", d.ModelPrefix)
	}
	if d.PrimaryKey.PKField != ModelPrefixSentinel {
		f, ok := fieldNames[d.PrimaryKey.PKField]
		if !ok {
			return ddberr.Configuration("entity %q: primary key references undeclared field %q", d.ModelPrefix, d.PrimaryKey.PKField)
		}
		if signed, ok := f.(interface{ Signed() bool }); ok && signed.Signed() {
			return ddberr.Configuration("entity %q: signed integer field %q cannot be used as a key field", d.ModelPrefix, d.PrimaryKey.PKField)
		}
	}
	if d.PrimaryKey.SKField != "" && d.PrimaryKey.SKField != ModelPrefixSentinel {
		f, ok := fieldNames[d.PrimaryKey.SKField]
		if !ok {
			return ddberr.Configuration("entity %q: primary key references undeclared sort field %q", d.ModelPrefix, d.PrimaryKey.SKField)
		}
		if signed, ok := f.(interface{ Signed() bool }); ok && signed.Signed() {
			return ddberr.Configuration("entity %q: signed integer field %q cannot be used as a key field", d.ModelPrefix, d.PrimaryKey.SKField)
		}
	}
	return nil
}

func requireNotSet(d *Descriptor, fieldNames map[string]field.Field, name string) error {
	if name == ModelPrefixSentinel || name == "" {
		return nil
	}
	f, ok := fieldNames[name]
	if !ok {
		return nil // reported separately as an undeclared-field error
	}
	if f.Kind() == field.KindStringSet {
		return ddberr.Configuration("entity %q: set field %q may not be used in an index", d.ModelPrefix, name)
	}
	return nil
}
