package schema

import (
	"github.com/normwc/norm/field"
)

// Capacity is the consumed read/write capacity accrued by an operation, or
// accumulated across many. Every backend response contributes one of these;
// reqctx accumulates them per request, Instance accumulates them per
// operation and, inclusive of related-field loads, per load-tree.
type Capacity struct {
	Read  float64
	Write float64
}

// Add returns the sum of two capacity records.
func (c Capacity) Add(o Capacity) Capacity {
	return Capacity{Read: c.Read + o.Read, Write: c.Write + o.Write}
}

// Instance is the single generic entity-instance type shared by every
// registered entity (Design Notes §9: table-driven descriptors, not
// per-entity generated types). Field access is mediated through the
// descriptor's field kernel rather than struct reflection.
type Instance struct {
	Descriptor *Descriptor

	values map[string]any // current, possibly-dirty values
	clean  map[string]any // last-loaded snapshot; nil for a never-saved instance
	dirty  map[string]bool
	deltas map[string]field.StringSetDelta // pending set-field ADD/DELETE deltas

	existing bool // materialized from a non-empty backend item

	related      map[string]*Instance // loaded related-field targets
	relatedMiss  map[string]bool      // related fields resolved to "not found"
	capacity     Capacity
	relatedCap   Capacity
}

// New constructs a fresh, never-saved instance seeded with each field's
// initial value (where one exists) and the caller-supplied values layered
// on top.
func New(d *Descriptor, input map[string]any) *Instance {
	values := make(map[string]any, len(d.Fields))
	for _, fs := range d.Fields {
		if iv, ok := fs.Field.Initial(); ok {
			values[fs.Name] = iv
		}
	}
	for k, v := range input {
		values[k] = v
	}
	return &Instance{
		Descriptor: d,
		values:     values,
		dirty:      markAllDirty(d, values),
	}
}

func markAllDirty(d *Descriptor, values map[string]any) map[string]bool {
	dirty := make(map[string]bool, len(values))
	for _, fs := range d.Fields {
		if _, ok := values[fs.Name]; ok {
			dirty[fs.Name] = true
		}
	}
	return dirty
}

// Load materializes an instance from a clean backend item (Go-native form,
// already decoded through each field's FromStorage).
func Load(d *Descriptor, item map[string]any) *Instance {
	clean := make(map[string]any, len(item))
	values := make(map[string]any, len(item))
	for k, v := range item {
		clean[k] = v
		values[k] = v
	}
	return &Instance{
		Descriptor: d,
		values:     values,
		clean:      clean,
		dirty:      map[string]bool{},
		existing:   true,
	}
}

// Existing reports whether this instance was materialized from a non-empty
// backend item.
func (i *Instance) Existing() bool { return i.existing }

// Get returns the current value of a field.
func (i *Instance) Get(name string) (any, bool) {
	v, ok := i.values[name]
	return v, ok
}

// CleanValue returns a field's last-saved value, before any pending changes
// in the current save, for an instance materialized via Load. Absent for a
// never-saved instance or a field with no prior value.
func (i *Instance) CleanValue(name string) (any, bool) {
	v, ok := i.clean[name]
	return v, ok
}

// Snapshot returns a shallow copy of the instance's current field values,
// used by the mutation pipeline to rebase after a successful save.
func (i *Instance) Snapshot() map[string]any {
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out
}

// Set assigns a scalar field's value and marks it dirty. Set fields must go
// through SetView instead.
func (i *Instance) Set(name string, v any) {
	i.values[name] = v
	if i.dirty == nil {
		i.dirty = map[string]bool{}
	}
	i.dirty[name] = true
}

// DirtyFields returns the names of every field with a pending change.
func (i *Instance) DirtyFields() []string {
	out := make([]string, 0, len(i.dirty))
	for k, isDirty := range i.dirty {
		if isDirty {
			out = append(out, k)
		}
	}
	return out
}

// IsDirty reports whether any field other than the named one is dirty; used
// by version/modified-date UpdateBeforeSave hooks to distinguish a pure
// touch-save from a real change.
func (i *Instance) IsDirty(excluding string) bool {
	for name, d := range i.dirty {
		if d && name != excluding {
			return true
		}
	}
	return false
}

// SetView returns the live string-set proxy for a set field, creating one
// bound to this instance's current value if none exists yet. Mutations
// through the returned view record into the instance's dirty set.
func (i *Instance) SetView(name string) *SetFieldView {
	return &SetFieldView{instance: i, field: name}
}

// Rebase replaces the clean snapshot with the instance's current values
// (called by the mutation pipeline after a successful save) and clears the
// dirty set.
func (i *Instance) Rebase(saved map[string]any) {
	clean := make(map[string]any, len(saved))
	values := make(map[string]any, len(saved))
	for k, v := range saved {
		clean[k] = v
		values[k] = v
	}
	i.clean = clean
	i.values = values
	i.dirty = map[string]bool{}
	i.deltas = nil
	i.existing = true
}

// AddCapacity accrues capacity from an operation performed directly on this
// instance (a save, a delete).
func (i *Instance) AddCapacity(c Capacity) { i.capacity = i.capacity.Add(c) }

// Capacity returns the capacity consumed loading/saving this instance
// alone, excluding related-field loads.
func (i *Instance) Capacity() Capacity { return i.capacity }

// TotalCapacity returns this instance's own capacity plus every related
// instance loaded through it.
func (i *Instance) TotalCapacity() Capacity { return i.capacity.Add(i.relatedCap) }

// AttachRelated records a loaded (or missing) related-field target.
func (i *Instance) AttachRelated(name string, target *Instance, cap Capacity) {
	if i.related == nil {
		i.related = map[string]*Instance{}
	}
	if i.relatedMiss == nil {
		i.relatedMiss = map[string]bool{}
	}
	if target == nil {
		i.relatedMiss[name] = true
	} else {
		i.related[name] = target
	}
	i.relatedCap = i.relatedCap.Add(cap)
}

// Related returns a previously-loaded related-field target.
func (i *Instance) Related(name string) (*Instance, bool) {
	r, ok := i.related[name]
	return r, ok
}

// RelatedMissing reports whether a related field was resolved and found
// absent (as opposed to never having been loaded at all).
func (i *Instance) RelatedMissing(name string) bool { return i.relatedMiss[name] }

// SetFieldView is the live view over a string-set field: Add/Delete record
// into the owning instance's dirty set instead of replaying a full
// snapshot, so a save emits ADD/DELETE update fragments.
type SetFieldView struct {
	instance *Instance
	field    string
}

func (v *SetFieldView) current() field.StringSet {
	raw, ok := v.instance.values[v.field]
	if !ok {
		return field.StringSet{}
	}
	switch s := raw.(type) {
	case field.StringSet:
		return s
	case field.StringSetDelta:
		// Bases off whatever is already materialized; callers normally
		// only mutate a view once per save.
		return field.StringSet{}
	default:
		return field.StringSet{}
	}
}

// Members returns the set's current members.
func (v *SetFieldView) Members() []string {
	cur := v.current()
	out := make([]string, 0, len(cur))
	for m := range cur {
		out = append(out, m)
	}
	return out
}

// Contains reports whether member is currently in the set.
func (v *SetFieldView) Contains(member string) bool {
	_, ok := v.current()[member]
	return ok
}

func (v *SetFieldView) delta() field.StringSetDelta {
	d, ok := v.instance.values[v.field].(field.StringSetDelta)
	if !ok {
		return field.StringSetDelta{}
	}
	return d
}

// Add records member as added. Present members are left alone.
func (v *SetFieldView) Add(member string) {
	cur := v.current()
	if _, already := cur[member]; already {
		return
	}
	cur[member] = struct{}{}
	v.instance.values[v.field] = cur
	d := v.delta()
	d.Add = appendUnique(d.Add, member)
	d.Remove = removeFrom(d.Remove, member)
	v.commit(d)
}

// Delete records member as removed.
func (v *SetFieldView) Delete(member string) {
	cur := v.current()
	if _, present := cur[member]; !present {
		return
	}
	delete(cur, member)
	v.instance.values[v.field] = cur
	d := v.delta()
	d.Remove = appendUnique(d.Remove, member)
	d.Add = removeFrom(d.Add, member)
	v.commit(d)
}

func (v *SetFieldView) commit(d field.StringSetDelta) {
	// Record the delta alongside the snapshot so UpdateExpression can find
	// it; the mutation pipeline reads the delta through SetDelta (the
	// instance's deltas map), not off v.instance.values, since that was just
	// overwritten with the plain StringSet above.
	if v.instance.dirty == nil {
		v.instance.dirty = map[string]bool{}
	}
	v.instance.dirty[v.field] = true
	v.instance.setDeltas()[v.field] = d
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func removeFrom(list []string, s string) []string {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

// setDeltas lazily allocates the per-instance map of set-field deltas
// tracked alongside the plain snapshot values.
func (i *Instance) setDeltas() map[string]field.StringSetDelta {
	if i.deltas == nil {
		i.deltas = map[string]field.StringSetDelta{}
	}
	return i.deltas
}

// SetDelta returns the recorded add/delete delta for a set field, if any
// mutation has been made through its SetView since the last save.
func (i *Instance) SetDelta(name string) (field.StringSetDelta, bool) {
	d, ok := i.deltas[name]
	return d, ok
}
