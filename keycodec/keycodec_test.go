package keycodec

import "testing"

func TestPrimaryPartition_FixedVector(t *testing.T) {
	got := PrimaryPartition("user", "a@x.com")
	want := "user#a@x.com"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPrimarySort_SentinelUsesModelPrefix(t *testing.T) {
	if got := PrimarySort("user", "ignored", true); got != "user" {
		t.Fatalf("got %q, want literal modelPrefix", got)
	}
	if got := PrimarySort("user", "2026-01-01", false); got != "2026-01-01" {
		t.Fatalf("got %q, want the sk index string", got)
	}
}

func TestSecondaryPartition_FixedVector(t *testing.T) {
	got := SecondaryPartition("post", 2, "active")
	want := "post#2#active"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUniquenessPartition_FixedVector(t *testing.T) {
	got := UniquenessPartition(1, "user", "email", "a@x.com")
	want := "_uniq#1#user#email:a@x.com"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIterationPartition_FixedVector(t *testing.T) {
	got := IterationPartition("post", 7)
	want := "post#iter#7"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBucketIndex_IsDeterministicAndInRange(t *testing.T) {
	const buckets = 16
	a := BucketIndex("post#1", buckets)
	b := BucketIndex("post#1", buckets)
	if a != b {
		t.Fatalf("expected deterministic bucket index, got %d then %d", a, b)
	}
	if a < 0 || a >= buckets {
		t.Fatalf("bucket index %d out of range [0,%d)", a, buckets)
	}
}

func TestEncodeDecodePrimaryID_RoundTrips(t *testing.T) {
	cases := []struct {
		pk, sk      string
		skSentinel  bool
	}{
		{"a@x.com", "profile", false},
		{"a@x.com", "", true},
		{"contains#hash:and:colons", "2026-01-01T00:00:00Z", false},
		{"", "", false},
	}
	for _, c := range cases {
		id, err := EncodePrimaryID(c.pk, c.sk, c.skSentinel)
		if err != nil {
			t.Fatalf("encode(%q,%q,%v): %v", c.pk, c.sk, c.skSentinel, err)
		}
		pk, sk, err := DecodePrimaryID(id, c.skSentinel)
		if err != nil {
			t.Fatalf("decode(%q): %v", id, err)
		}
		if pk != c.pk {
			t.Fatalf("pk round-trip: got %q, want %q", pk, c.pk)
		}
		if !c.skSentinel && sk != c.sk {
			t.Fatalf("sk round-trip: got %q, want %q", sk, c.sk)
		}
	}
}

func TestEncodePrimaryID_SentinelDegeneratesToPKValue(t *testing.T) {
	id, err := EncodePrimaryID("a@x.com", "whatever", true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if id != "a@x.com" {
		t.Fatalf("expected sentinel id to degenerate to bare pk value, got %q", id)
	}
}
