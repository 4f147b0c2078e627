// Package tenant implements tenancy & the manager (component I): one
// descriptor registry and one backend handle per tenant id, plus a
// "default" tenant used when tenancy is not configured as required.
package tenant

import (
	"context"
	"sync"

	"github.com/normwc/norm/ddbapi"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/schema"
)

// DefaultTenantID names the tenant used when no tenant id is in scope and
// tenancy is not required.
const DefaultTenantID = "default"

type ctxKey struct{}

// WithTenant puts a tenant id into the ambient request scope.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// FromContext resolves the tenant id in scope, or DefaultTenantID if none
// was set.
func FromContext(ctx context.Context) string {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return DefaultTenantID
	}
	return id
}

// tenantResources bundles the per-tenant registry and backend handle; the
// backend handle is shared read-only across every descriptor once set.
type tenantResources struct {
	registry *schema.Registry
	client   ddbapi.Client
}

// Manager owns one schema.Registry and one ddbapi.Client per tenant id.
// Registrations on one tenant are invisible to others; the default tenant
// always exists.
type Manager struct {
	required bool // true: entry points fail closed with no tenant id in scope

	mu      sync.RWMutex
	tenants map[string]*tenantResources
}

// New returns a Manager. When required is true, Resolve fails with a
// ConfigurationError whenever the request scope carries no tenant id;
// otherwise absent ids resolve to the default tenant.
func New(required bool) *Manager {
	return &Manager{required: required, tenants: map[string]*tenantResources{
		DefaultTenantID: {registry: schema.NewRegistry()},
	}}
}

// Bind associates a backend client with a tenant id, creating the tenant's
// registry on first use. Rebinding a tenant's client replaces it; existing
// descriptor registrations are untouched.
func (m *Manager) Bind(tenantID string, client ddbapi.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenants[tenantID]
	if t == nil {
		t = &tenantResources{registry: schema.NewRegistry()}
		m.tenants[tenantID] = t
	}
	t.client = client
}

// Register adds a descriptor to a tenant's registry, creating the tenant
// (with no bound client yet) on first use.
func (m *Manager) Register(tenantID string, d *schema.Descriptor) error {
	m.mu.Lock()
	t := m.tenants[tenantID]
	if t == nil {
		t = &tenantResources{registry: schema.NewRegistry()}
		m.tenants[tenantID] = t
	}
	m.mu.Unlock()
	return t.registry.Register(d)
}

// Resolved is one tenant's bound registry and client, handed back by
// Resolve for use by the mutate/query pipelines.
type Resolved struct {
	TenantID string
	Registry *schema.Registry
	Client   ddbapi.Client
}

// Resolve reads the ambient tenant id from ctx and returns its bound
// resources. Fails closed with a ConfigurationError when tenancy is
// required and ctx carries no tenant id, or when the tenant has no bound
// client yet.
func (m *Manager) Resolve(ctx context.Context) (Resolved, error) {
	id, explicit := ctx.Value(ctxKey{}).(string)
	if (!explicit || id == "") && m.required {
		return Resolved{}, ddberr.Configuration("tenancy is required but no tenant id is in scope")
	}
	tenantID := FromContext(ctx)

	m.mu.RLock()
	t, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if !ok {
		return Resolved{}, ddberr.Configuration("tenant %q is not registered", tenantID)
	}
	if t.client == nil {
		return Resolved{}, ddberr.Configuration("tenant %q has no bound backend client", tenantID)
	}
	return Resolved{TenantID: tenantID, Registry: t.registry, Client: t.client}, nil
}
