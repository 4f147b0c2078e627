package field

import (
	"testing"
	"time"
)

func TestIntField_ToIndexString_PreservesNumericOrder(t *testing.T) {
	f := Int()
	small, _, err := f.ToIndexString(int64(3))
	if err != nil {
		t.Fatalf("ToIndexString(3): %v", err)
	}
	big, _, err := f.ToIndexString(int64(20))
	if err != nil {
		t.Fatalf("ToIndexString(20): %v", err)
	}
	if !(small < big) {
		t.Fatalf("expected lexicographic order to match numeric order: %q >= %q", small, big)
	}
}

func TestIntField_RejectsNegativeUnlessSigned(t *testing.T) {
	if err := Int().Validate(int64(-1)); err == nil {
		t.Fatal("expected error validating negative value on unsigned int field")
	}
	if err := Int(AllowNegative()).Validate(int64(-1)); err != nil {
		t.Fatalf("signed field should accept negative value: %v", err)
	}
	if _, _, err := Int(AllowNegative()).ToIndexString(int64(-1)); err == nil {
		t.Fatal("expected negative values to be rejected in index position even when signed")
	}
}

func TestVersionField_BumpsOnlyWhenOtherFieldDirty(t *testing.T) {
	f := Version()
	v, changed := f.UpdateBeforeSave("v1", false, false)
	if changed {
		t.Fatalf("expected no bump on a save with no other dirty field, got %v", v)
	}
	v2, changed := f.UpdateBeforeSave("v1", true, false)
	if !changed || v2 == "v1" {
		t.Fatalf("expected a fresh version when another field is dirty, got %v changed=%v", v2, changed)
	}
	v3, changed := f.UpdateBeforeSave("", false, true)
	if !changed || v3 == "" {
		t.Fatal("expected version to be assigned on create")
	}
}

func TestCreateDateField_SetsOnceOnCreateOnly(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := NowFunc
	NowFunc = func() time.Time { return fixed }
	defer func() { NowFunc = orig }()

	f := CreateDate()
	v, changed := f.UpdateBeforeSave(nil, true, true)
	if !changed || v.(time.Time) != fixed {
		t.Fatalf("expected create-date to be stamped on create, got %v changed=%v", v, changed)
	}

	existing := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	v2, changed2 := f.UpdateBeforeSave(existing, true, false)
	if changed2 || v2.(time.Time) != existing {
		t.Fatalf("expected create-date to stay fixed on update, got %v changed=%v", v2, changed2)
	}
}

func TestModifiedDateField_UpdatesOnAnyDirtySave(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := NowFunc
	NowFunc = func() time.Time { return fixed }
	defer func() { NowFunc = orig }()

	f := ModifiedDate()
	if _, changed := f.UpdateBeforeSave(nil, false, false); changed {
		t.Fatal("expected no-op save to leave modified-date untouched")
	}
	v, changed := f.UpdateBeforeSave(nil, true, false)
	if !changed || v.(time.Time) != fixed {
		t.Fatal("expected modified-date to stamp the current time when another field is dirty")
	}
}

func TestCounterField_ValidatesDeltaAndAbsoluteForms(t *testing.T) {
	f := Counter()
	if err := f.Validate("+3"); err != nil {
		t.Fatalf("expected delta string to validate: %v", err)
	}
	if err := f.Validate(int64(5)); err != nil {
		t.Fatalf("expected absolute int to validate: %v", err)
	}
	if err := f.Validate("not-a-delta"); err == nil {
		t.Fatal("expected invalid counter value to fail validation")
	}
}

func TestStringSetField_EmptySetHasNoStorageRepresentation(t *testing.T) {
	f := StringSetKind()
	if _, err := f.ToStorage(StringSet{}); err == nil {
		t.Fatal("expected empty set to be rejected at ToStorage; caller must omit the attribute instead")
	}
	v, err := f.FromStorage(nil)
	if err != nil {
		t.Fatalf("FromStorage(nil): %v", err)
	}
	if len(v.(StringSet)) != 0 {
		t.Fatalf("expected empty set from nil attribute, got %v", v)
	}
}

func TestStringSetField_RejectsOverMaxMembers(t *testing.T) {
	f := StringSetKind(WithMaxMemberCount(2))
	if err := f.Validate(NewStringSet("a", "b")); err != nil {
		t.Fatalf("expected 2 members to validate under max of 2: %v", err)
	}
	if err := f.Validate(NewStringSet("a", "b", "c")); err == nil {
		t.Fatal("expected 3 members to exceed max of 2")
	}
}

func TestULIDField_ValidatesCrockfordForm(t *testing.T) {
	f := ULID()
	if err := f.Validate(NewULID()); err != nil {
		t.Fatalf("expected freshly generated ulid to validate: %v", err)
	}
	if err := f.Validate("not-a-ulid"); err == nil {
		t.Fatal("expected malformed ulid to fail validation")
	}
}

func TestBoolField_NeverUsableAsIndexKey(t *testing.T) {
	if _, ok, _ := Bool().ToIndexString(true); ok {
		t.Fatal("expected bool field to decline index-string projection")
	}
}
