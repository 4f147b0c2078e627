package query

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/condition"
	"github.com/normwc/norm/field"
	"github.com/normwc/norm/reqctx"
	"github.com/normwc/norm/schema"
)

func postDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	d := &schema.Descriptor{
		ModelPrefix: "post",
		Fields: []schema.FieldSpec{
			{Name: "id", Field: &field.ULIDField{}},
			{Name: "authorId", Field: field.Related("user")},
			{Name: "title", Field: field.String()},
		},
		PrimaryKey: schema.PrimaryKeySpec{PKField: "id", SKField: schema.ModelPrefixSentinel},
		Indexes: []schema.IndexSpec{
			{Name: "by-author", Slot: schema.IndexSlot1, PKField: "authorId", SKField: schema.ModelPrefixSentinel},
		},
	}
	r := schema.NewRegistry()
	if err := r.Register(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	return d
}

func TestEngine_Query_ByIndexHydratesInstances(t *testing.T) {
	d := postDescriptor(t)
	client := &fakeQueryClient{responses: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			{"id": attrS("01ARZ3NDEKTSV4RRFFQ69G5FAV"), "authorId": attrS("u1"), "title": attrS("hello")},
		},
		Count: 1,
	}}}
	e := &Engine{Client: client, TableName: "test-table", Descriptor: d}

	ctx := reqctx.Enter(context.Background(), "req-1")
	res, err := e.Query(ctx, Input{IndexName: "by-author", PKValue: "u1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(res.Instances))
	}
	if v, _ := res.Instances[0].Get("title"); v != "hello" {
		t.Errorf("title = %v", v)
	}

	call := client.calls[0]
	if call.IndexName == nil || *call.IndexName != "s1" {
		t.Errorf("expected IndexName s1 (the slot of by-author), got %v", call.IndexName)
	}
}

func TestEngine_Query_CountOnlySetsSelectAndSkipsHydration(t *testing.T) {
	d := postDescriptor(t)
	client := &fakeQueryClient{responses: []*dynamodb.QueryOutput{{Count: 7}}}
	e := &Engine{Client: client, TableName: "test-table", Descriptor: d}

	ctx := reqctx.Enter(context.Background(), "req-1")
	res, err := e.Query(ctx, Input{IndexName: "by-author", PKValue: "u1", CountOnly: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Count != 7 {
		t.Errorf("Count = %d", res.Count)
	}
	if res.Instances != nil {
		t.Errorf("expected no hydrated instances in count-only mode")
	}
	if client.calls[0].Select != types.SelectCount {
		t.Errorf("expected Select=COUNT, got %v", client.calls[0].Select)
	}
}

func TestEngine_Query_PassesThroughPaginationCursor(t *testing.T) {
	d := postDescriptor(t)
	lastKey := map[string]types.AttributeValue{"_pk": attrS("post#u1")}
	client := &fakeQueryClient{responses: []*dynamodb.QueryOutput{{LastEvaluatedKey: lastKey}}}
	e := &Engine{Client: client, TableName: "test-table", Descriptor: d}

	ctx := reqctx.Enter(context.Background(), "req-1")
	startKey := map[string]types.AttributeValue{"_pk": attrS("post#u0")}
	res, err := e.Query(ctx, Input{IndexName: "by-author", PKValue: "u1", StartKey: startKey})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.LastEvaluatedKey == nil {
		t.Fatal("expected a non-nil LastEvaluatedKey to be returned verbatim")
	}
	if client.calls[0].ExclusiveStartKey == nil {
		t.Error("expected ExclusiveStartKey to be forwarded from Input.StartKey")
	}
}

func TestEngine_Query_BadFilterFailsWithoutCallingBackend(t *testing.T) {
	d := postDescriptor(t)
	client := &fakeQueryClient{}
	e := &Engine{Client: client, TableName: "test-table", Descriptor: d}

	ctx := reqctx.Enter(context.Background(), "req-1")
	_, err := e.Query(ctx, Input{IndexName: "by-author", PKValue: "u1", Filter: condition.C{"title": map[string]any{"$unknownOp": "x"}}})
	if err == nil {
		t.Fatal("expected a compile error for an unknown operator")
	}
	if len(client.calls) != 0 {
		t.Errorf("expected no backend call on a filter compile error, got %d calls", len(client.calls))
	}
}

func userDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	d := &schema.Descriptor{
		ModelPrefix: "user",
		Fields: []schema.FieldSpec{
			{Name: "id", Field: &field.ULIDField{}},
			{Name: "name", Field: field.String()},
		},
		PrimaryKey: schema.PrimaryKeySpec{PKField: "id", SKField: schema.ModelPrefixSentinel},
	}
	r := schema.NewRegistry()
	if err := r.Register(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	return d
}

func TestEngine_Query_RelatedHydrationUsesIdentityCache(t *testing.T) {
	d := postDescriptor(t)
	client := &fakeQueryClient{responses: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{
			{"id": attrS("01ARZ3NDEKTSV4RRFFQ69G5FAV"), "authorId": attrS("u1"), "title": attrS("hello")},
		},
	}}}
	e := &Engine{Client: client, TableName: "test-table", Descriptor: d}

	ctx := reqctx.Enter(context.Background(), "req-1")
	rc, _ := reqctx.From(ctx)
	author := schema.Load(d, map[string]any{"id": "u1"})
	rc.PutCached("user", "u1", author)

	res, err := e.Query(ctx, Input{IndexName: "by-author", PKValue: "u1", LoadRelated: true, RelatedFields: []string{"authorId"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got, ok := res.Instances[0].Related("authorId")
	if !ok || got != author {
		t.Fatalf("expected the post's authorId to resolve to the identity-cached author instance")
	}
}

// TestEngine_Query_RelatedHydrationBulkLoadsCacheMisses covers posts whose
// authors are NOT already warmed into the identity cache: hydrateRelated
// must issue one coalesced BatchGetItem for the distinct missing author
// ids rather than reporting every miss as not found.
func TestEngine_Query_RelatedHydrationBulkLoadsCacheMisses(t *testing.T) {
	postD := postDescriptor(t)
	userD := userDescriptor(t)
	reg := schema.NewRegistry()
	reg.MustRegister(postD)
	reg.MustRegister(userD)

	items := []map[string]types.AttributeValue{
		{"id": attrS("p1"), "authorId": attrS("u1"), "title": attrS("a")},
		{"id": attrS("p2"), "authorId": attrS("u2"), "title": attrS("b")},
		{"id": attrS("p3"), "authorId": attrS("u1"), "title": attrS("c")},
	}
	client := &fakeQueryClient{
		responses: []*dynamodb.QueryOutput{{Items: items}},
		batchResponses: []*dynamodb.BatchGetItemOutput{{
			Responses: map[string][]map[string]types.AttributeValue{
				"test-table": {
					{"_pk": attrS("user#u1"), "_sk": attrS("user"), "id": attrS("u1"), "name": attrS("Alice")},
					{"_pk": attrS("user#u2"), "_sk": attrS("user"), "id": attrS("u2"), "name": attrS("Bob")},
				},
			},
		}},
	}
	e := &Engine{Client: client, TableName: "test-table", Descriptor: postD, Registry: reg}

	ctx := reqctx.Enter(context.Background(), "req-1")
	res, err := e.Query(ctx, Input{IndexName: "by-author", PKValue: "u1", LoadRelated: true, RelatedFields: []string{"authorId"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(client.batchCalls) != 1 {
		t.Fatalf("expected exactly 1 BatchGetItem call, got %d", len(client.batchCalls))
	}
	keys := client.batchCalls[0].RequestItems["test-table"].Keys
	if len(keys) != 2 {
		t.Fatalf("expected 1 bulk read covering the 2 distinct authors, got %d keys", len(keys))
	}

	byTitle := map[string]*schema.Instance{}
	for _, inst := range res.Instances {
		title, _ := inst.Get("title")
		byTitle[title.(string)] = inst
	}

	author1, ok := byTitle["a"].Related("authorId")
	if !ok {
		t.Fatal("expected post a's author to resolve")
	}
	if v, _ := author1.Get("name"); v != "Alice" {
		t.Errorf("post a author name = %v", v)
	}
	author3, ok := byTitle["c"].Related("authorId")
	if !ok {
		t.Fatal("expected post c's author to resolve")
	}
	if v, _ := author3.Get("id"); v != "u1" {
		t.Errorf("post c author id = %v", v)
	}
	author2, ok := byTitle["b"].Related("authorId")
	if !ok {
		t.Fatal("expected post b's author to resolve")
	}
	if v, _ := author2.Get("name"); v != "Bob" {
		t.Errorf("post b author name = %v", v)
	}
}
