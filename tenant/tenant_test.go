package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/field"
	"github.com/normwc/norm/schema"
)

func widgetDescriptor() *schema.Descriptor {
	return &schema.Descriptor{
		ModelPrefix: "widget",
		Fields:      []schema.FieldSpec{{Name: "id", Field: &field.ULIDField{}}},
		PrimaryKey:  schema.PrimaryKeySpec{PKField: "id", SKField: schema.ModelPrefixSentinel},
	}
}

func TestManager_ResolvesDefaultTenantWhenNotRequired(t *testing.T) {
	m := New(false)
	if err := m.Register(DefaultTenantID, widgetDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.Bind(DefaultTenantID, nil)

	r, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.TenantID != DefaultTenantID {
		t.Errorf("TenantID = %q", r.TenantID)
	}
}

func TestManager_RequiredTenancyFailsClosedWithoutID(t *testing.T) {
	m := New(true)
	_, err := m.Resolve(context.Background())
	var cfgErr *ddberr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestManager_TenantsAreIsolated(t *testing.T) {
	m := New(true)
	if err := m.Register("tenant-a", widgetDescriptor()); err != nil {
		t.Fatalf("register a: %v", err)
	}
	m.Bind("tenant-a", nil)
	m.Bind("tenant-b", nil)

	ctxA := WithTenant(context.Background(), "tenant-a")
	ra, err := m.Resolve(ctxA)
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	if _, ok := ra.Registry.Get("widget"); !ok {
		t.Fatal("expected widget registered under tenant-a")
	}

	ctxB := WithTenant(context.Background(), "tenant-b")
	rb, err := m.Resolve(ctxB)
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}
	if _, ok := rb.Registry.Get("widget"); ok {
		t.Fatal("expected tenant-b's registry to be isolated from tenant-a's registration")
	}
}

func TestManager_UnboundTenantFailsClosed(t *testing.T) {
	m := New(false)
	if err := m.Register("tenant-c", widgetDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := WithTenant(context.Background(), "tenant-c")
	_, err := m.Resolve(ctx)
	var cfgErr *ddberr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for unbound client, got %v", err)
	}
}
