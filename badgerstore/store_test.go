package badgerstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{InMemory: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func attrS(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func widgetItem(pk, sk, title string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"_pk":   attrS(pk),
		"_sk":   attrS(sk),
		"title": attrS(title),
	}
}

func TestStore_PutGet_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"

	item := widgetItem("widget#1", "widget", "first")
	if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	out, err := s.GetItem(ctx, &dynamodb.GetItemInput{TableName: &table, Key: map[string]types.AttributeValue{"_pk": attrS("widget#1"), "_sk": attrS("widget")}})
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if out.Item == nil {
		t.Fatal("expected item to be found")
	}
	if got := out.Item["title"].(*types.AttributeValueMemberS).Value; got != "first" {
		t.Errorf("title = %q", got)
	}
}

func TestStore_PutItem_ConditionFailurePreventsOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"
	item := widgetItem("widget#1", "widget", "first")
	if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	cond := expression.AttributeNotExists(expression.Name("_pk"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		t.Fatalf("build expression: %v", err)
	}
	second := widgetItem("widget#1", "widget", "second")
	_, err = s.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 &table,
		Item:                      second,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		t.Fatalf("expected ConditionalCheckFailedException, got %v", err)
	}

	out, err := s.GetItem(ctx, &dynamodb.GetItemInput{TableName: &table, Key: map[string]types.AttributeValue{"_pk": attrS("widget#1"), "_sk": attrS("widget")}})
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got := out.Item["title"].(*types.AttributeValueMemberS).Value; got != "first" {
		t.Errorf("title changed despite failed condition: %q", got)
	}
}

func TestStore_DeleteItem_RemovesRowAndGSIEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"

	item := widgetItem("widget#1", "widget", "first")
	item["_s1_pk"] = attrS("owner#alice")
	item["_s1_sk"] = attrS("widget")
	if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	if _, err := s.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &table, Key: map[string]types.AttributeValue{"_pk": attrS("widget#1"), "_sk": attrS("widget")}}); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	out, err := s.GetItem(ctx, &dynamodb.GetItemInput{TableName: &table, Key: map[string]types.AttributeValue{"_pk": attrS("widget#1"), "_sk": attrS("widget")}})
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if out.Item != nil {
		t.Error("expected item to be gone after delete")
	}

	idxName := "s1"
	qout, err := s.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &table,
		IndexName:                 &idxName,
		KeyConditionExpression:    strPtr("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": "_s1_pk"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": attrS("owner#alice")},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if qout.Count != 0 {
		t.Errorf("expected no GSI rows after delete, got %d", qout.Count)
	}
}

func TestStore_Query_BySecondaryIndexReturnsMatchingRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"

	for _, sk := range []string{"widget#1", "widget#2"} {
		item := widgetItem("pk#"+sk, sk, "title")
		item["_s1_pk"] = attrS("owner#alice")
		item["_s1_sk"] = attrS(sk)
		if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
			t.Fatalf("PutItem: %v", err)
		}
	}
	other := widgetItem("pk#widget#3", "widget#3", "title")
	other["_s1_pk"] = attrS("owner#bob")
	other["_s1_sk"] = attrS("widget#3")
	if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: other}); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	idxName := "s1"
	out, err := s.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &table,
		IndexName:                 &idxName,
		KeyConditionExpression:    strPtr("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": "_s1_pk"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": attrS("owner#alice")},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Count != 2 {
		t.Fatalf("expected 2 matches, got %d", out.Count)
	}
}

func TestStore_Query_CountOnlyOmitsItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"
	item := widgetItem("pk#1", "widget#1", "title")
	item["_s1_pk"] = attrS("owner#alice")
	item["_s1_sk"] = attrS("widget#1")
	if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	idxName := "s1"
	out, err := s.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &table,
		IndexName:                 &idxName,
		KeyConditionExpression:    strPtr("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": "_s1_pk"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": attrS("owner#alice")},
		Select:                    types.SelectCount,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d", out.Count)
	}
	if out.Items != nil {
		t.Error("expected no items for a COUNT-only query")
	}
}

func TestStore_Scan_AppliesFilterExpression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"
	for _, title := range []string{"alpha", "beta", "gamma"} {
		item := widgetItem("pk#"+title, title, title)
		if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
			t.Fatalf("PutItem: %v", err)
		}
	}

	out, err := s.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 &table,
		FilterExpression:          strPtr("#t = :t"),
		ExpressionAttributeNames:  map[string]string{"#t": "title"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":t": attrS("beta")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out.Count != 1 {
		t.Fatalf("Count = %d", out.Count)
	}
}

func TestStore_TransactWriteItems_RollsBackOnConditionFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"

	existing := widgetItem("widget#1", "widget", "first")
	if _, err := s.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: existing}); err != nil {
		t.Fatalf("seed PutItem: %v", err)
	}

	newItem := widgetItem("widget#2", "widget", "second")
	_, err := s.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: &table, Item: newItem}},
			{
				ConditionCheck: &types.ConditionCheck{
					TableName:                &table,
					Key:                      map[string]types.AttributeValue{"_pk": attrS("widget#1"), "_sk": attrS("widget")},
					ConditionExpression:      strPtr("attribute_not_exists(#pk)"),
					ExpressionAttributeNames: map[string]string{"#pk": "_pk"},
				},
			},
		},
	})
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		t.Fatalf("expected TransactionCanceledException, got %v", err)
	}
	if len(tce.CancellationReasons) != 2 {
		t.Fatalf("expected 2 cancellation reasons, got %d", len(tce.CancellationReasons))
	}
	if *tce.CancellationReasons[0].Code != "None" {
		t.Errorf("reason[0].Code = %q", *tce.CancellationReasons[0].Code)
	}
	if *tce.CancellationReasons[1].Code != "ConditionalCheckFailed" {
		t.Errorf("reason[1].Code = %q", *tce.CancellationReasons[1].Code)
	}

	out, err := s.GetItem(ctx, &dynamodb.GetItemInput{TableName: &table, Key: map[string]types.AttributeValue{"_pk": attrS("widget#2"), "_sk": attrS("widget")}})
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if out.Item != nil {
		t.Error("expected the Put to have been rolled back alongside the failed ConditionCheck")
	}
}

func TestStore_TransactWriteItems_AppliesAllActionsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	table := "widgets"

	itemA := widgetItem("widget#1", "widget", "a")
	itemB := widgetItem("widget#2", "widget", "b")
	_, err := s.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: &table, Item: itemA}},
			{Put: &types.Put{TableName: &table, Item: itemB}},
		},
	})
	if err != nil {
		t.Fatalf("TransactWriteItems: %v", err)
	}

	for _, pk := range []string{"widget#1", "widget#2"} {
		out, err := s.GetItem(ctx, &dynamodb.GetItemInput{TableName: &table, Key: map[string]types.AttributeValue{"_pk": attrS(pk), "_sk": attrS("widget")}})
		if err != nil {
			t.Fatalf("GetItem: %v", err)
		}
		if out.Item == nil {
			t.Errorf("expected %s to be written", pk)
		}
	}
}
