package mutate

import "github.com/normwc/norm/schema"

// applyBeforeSaveHooks runs every field's UpdateBeforeSave hook (ulid bump
// for version, stamp for create/modified-date, auto-assign for an
// auto-assigning ulid field) against the set of fields the caller actually
// touched, so a version field's "any other field dirty" check reflects the
// caller's intent rather than hooks reacting to each other.
func applyBeforeSaveHooks(d *schema.Descriptor, inst *schema.Instance, isCreate bool) {
	dirtyBefore := map[string]bool{}
	for _, name := range inst.DirtyFields() {
		dirtyBefore[name] = true
	}
	otherDirty := func(excluding string) bool {
		for name := range dirtyBefore {
			if name != excluding {
				return true
			}
		}
		return false
	}

	for _, fs := range d.Fields {
		current, _ := inst.Get(fs.Name)
		newValue, changed := fs.Field.UpdateBeforeSave(current, otherDirty(fs.Name), isCreate)
		if changed {
			inst.Set(fs.Name, newValue)
		}
	}
}
