package main

import (
	"github.com/normwc/norm/ddbapi"
	"github.com/normwc/norm/field"
	"github.com/normwc/norm/schema"
	"github.com/normwc/norm/tenant"
)

// noteDescriptor is the demo entity normcli's ad hoc lookups run against: a
// real application registers its own descriptors the same way, through
// tenant.Manager.Register, instead of generating them from a schema file.
func noteDescriptor() *schema.Descriptor {
	return &schema.Descriptor{
		ModelPrefix: "note",
		Fields: []schema.FieldSpec{
			{Name: "id", Field: field.ULID(field.AutoAssignOnCreate())},
			{Name: "category", Field: field.String()},
			{Name: "title", Field: field.String(field.WithMaxLength(200))},
			{Name: "body", Field: field.String()},
		},
		PrimaryKey: schema.PrimaryKeySpec{PKField: "id", SKField: schema.ModelPrefixSentinel},
		Indexes: []schema.IndexSpec{
			{Name: "by-category", Slot: schema.IndexSlot1, PKField: "category", SKField: "id"},
		},
		DefaultQueryLimit: 25,
	}
}

// buildManager binds the configured backend to the demo descriptor set
// under the default tenant.
func buildManager(client ddbapi.Client) (*tenant.Manager, error) {
	m := tenant.New(false)
	m.Bind(tenant.DefaultTenantID, client)
	if err := m.Register(tenant.DefaultTenantID, noteDescriptor()); err != nil {
		return nil, err
	}
	return m, nil
}
