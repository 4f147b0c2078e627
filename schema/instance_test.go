package schema

import (
	"testing"

	"github.com/normwc/norm/field"
)

func testDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	d := &Descriptor{
		ModelPrefix: "doc",
		Fields: []FieldSpec{
			{Name: "name", Field: field.String()},
			{Name: "tags", Field: field.StringSetKind()},
			{Name: "version", Field: field.Version()},
		},
		PrimaryKey: PrimaryKeySpec{PKField: "name", SKField: ModelPrefixSentinel},
	}
	reg := NewRegistry()
	if err := reg.Register(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	return d
}

func TestInstance_SetFieldView_RecordsAddDeleteDelta(t *testing.T) {
	d := testDescriptor(t)
	inst := Load(d, map[string]any{
		"name": "n0",
		"tags": field.NewStringSet("a", "b", "c"),
	})

	view := inst.SetView("tags")
	view.Add("d")
	view.Delete("a")

	delta, ok := inst.SetDelta("tags")
	if !ok {
		t.Fatal("expected a recorded delta after Add/Delete")
	}
	if len(delta.Add) != 1 || delta.Add[0] != "d" {
		t.Fatalf("expected Add=[d], got %v", delta.Add)
	}
	if len(delta.Remove) != 1 || delta.Remove[0] != "a" {
		t.Fatalf("expected Remove=[a], got %v", delta.Remove)
	}
	if view.Contains("a") {
		t.Fatal("expected a to no longer be a member after Delete")
	}
	if !view.Contains("d") {
		t.Fatal("expected d to be a member after Add")
	}
	if !inst.IsDirty("version") {
		t.Fatal("expected tags mutation to mark the instance dirty")
	}
}

func TestInstance_New_SeedsInitialValues(t *testing.T) {
	d := testDescriptor(t)
	inst := New(d, map[string]any{"name": "n0"})
	if v, ok := inst.Get("version"); !ok || v == "" {
		t.Fatalf("expected version field to get an initial value, got %v ok=%v", v, ok)
	}
	if !inst.IsDirty("nonexistent") {
		t.Fatal("expected a freshly constructed instance to be dirty")
	}
}

func TestInstance_Rebase_ClearsDirtyState(t *testing.T) {
	d := testDescriptor(t)
	inst := New(d, map[string]any{"name": "n0"})
	inst.Rebase(map[string]any{"name": "n0", "version": "v1"})
	if len(inst.DirtyFields()) != 0 {
		t.Fatalf("expected no dirty fields after rebase, got %v", inst.DirtyFields())
	}
	if !inst.Existing() {
		t.Fatal("expected instance to be marked existing after rebase")
	}
}
