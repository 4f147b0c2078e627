package badgerstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// UpdateItem applies a compiled UpdateExpression (SET/REMOVE/ADD/DELETE
// clauses) to an item, creating it if absent. mutate.Pipeline.Update is the
// primary caller, dispatching one fragment per dirty field; Attributes on
// the response always holds the post-update item, regardless of the
// caller's requested ReturnValues.
func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("badgerstore: UpdateItem requires Key")
	}
	pk, sk, err := primaryKeyOf(params.Key)
	if err != nil {
		return nil, err
	}
	key := encodeRowKey(*params.TableName, "", pk, sk)

	var out dynamodb.UpdateItemOutput
	err = s.db.Update(func(txn *badger.Txn) error {
		existing, found, err := txnRead(txn, key)
		if err != nil {
			return err
		}
		if params.ConditionExpression != nil {
			ok, err := EvalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing)
			if err != nil {
				return err
			}
			if !ok {
				return &types.ConditionalCheckFailedException{Message: strPtr("the conditional request failed")}
			}
		}

		doc := map[string]types.AttributeValue{}
		for k, v := range existing {
			doc[k] = v
		}
		for k, v := range params.Key {
			doc[k] = v
		}
		if params.UpdateExpression != nil {
			if err := applyUpdateExpression(*params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, doc); err != nil {
				return err
			}
		}

		itemBytes, err := SerializeItem(doc)
		if err != nil {
			return err
		}
		if err := txn.Set(key, itemBytes); err != nil {
			return err
		}
		out.Attributes = doc
		return writeGSIEntries(txn, *params.TableName, existing, doc)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// applyUpdateExpression mutates doc in place per a compiled
// UpdateExpression string's SET/REMOVE/ADD/DELETE clauses.
func applyUpdateExpression(expr string, names map[string]string, values map[string]types.AttributeValue, doc map[string]types.AttributeValue) error {
	resolve := func(placeholder string) string {
		if real, ok := names[placeholder]; ok {
			return real
		}
		return placeholder
	}

	for _, part := range splitClauses(expr) {
		kw, body := part.keyword, part.body
		for _, item := range splitTopLevel(body, ',') {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			switch kw {
			case "SET":
				eq := strings.Index(item, "=")
				if eq < 0 {
					return fmt.Errorf("badgerstore: malformed SET clause %q", item)
				}
				attr := resolve(strings.TrimSpace(item[:eq]))
				valTok := strings.TrimSpace(item[eq+1:])
				av, ok := values[valTok]
				if !ok {
					return fmt.Errorf("badgerstore: SET clause references unknown value %q", valTok)
				}
				doc[attr] = av
			case "REMOVE":
				attr := resolve(strings.TrimSpace(item))
				delete(doc, attr)
			case "ADD":
				fields := strings.Fields(item)
				if len(fields) != 2 {
					return fmt.Errorf("badgerstore: malformed ADD clause %q", item)
				}
				attr := resolve(fields[0])
				delta, ok := values[fields[1]]
				if !ok {
					return fmt.Errorf("badgerstore: ADD clause references unknown value %q", fields[1])
				}
				doc[attr] = addValues(doc[attr], delta)
			case "DELETE":
				fields := strings.Fields(item)
				if len(fields) != 2 {
					return fmt.Errorf("badgerstore: malformed DELETE clause %q", item)
				}
				attr := resolve(fields[0])
				removed, ok := values[fields[1]]
				if !ok {
					return fmt.Errorf("badgerstore: DELETE clause references unknown value %q", fields[1])
				}
				doc[attr] = removeValues(doc[attr], removed)
			}
		}
	}
	return nil
}

type clausePart struct {
	keyword string
	body    string
}

var clauseKeywords = []string{"SET", "REMOVE", "ADD", "DELETE"}

// splitClauses breaks an UpdateExpression into its SET/REMOVE/ADD/DELETE
// sections, each of which may appear at most once, in any order.
func splitClauses(expr string) []clausePart {
	var parts []clausePart
	rest := strings.TrimSpace(expr)
	for rest != "" {
		kw, body, next := nextClause(rest)
		if kw == "" {
			break
		}
		parts = append(parts, clausePart{keyword: kw, body: body})
		rest = next
	}
	return parts
}

func nextClause(s string) (kw, body, rest string) {
	for _, k := range clauseKeywords {
		if strings.HasPrefix(s, k+" ") || s == k {
			s = strings.TrimSpace(strings.TrimPrefix(s, k))
			end := len(s)
			for _, other := range clauseKeywords {
				if idx := indexOfKeyword(s, other); idx >= 0 && idx < end {
					end = idx
				}
			}
			return k, strings.TrimSpace(s[:end]), strings.TrimSpace(s[end:])
		}
	}
	return "", "", ""
}

func indexOfKeyword(s, kw string) int {
	idx := strings.Index(s, " "+kw+" ")
	if idx < 0 {
		return -1
	}
	return idx + 1
}

// splitTopLevel splits on sep, ignoring occurrences that would be inside
// parens (none of our own compiled expressions nest parens within a
// SET/ADD/REMOVE/DELETE item, so this is a plain split).
func splitTopLevel(s string, sep byte) []string {
	return strings.Split(s, string(sep))
}

func addValues(cur, delta types.AttributeValue) types.AttributeValue {
	switch d := delta.(type) {
	case *types.AttributeValueMemberN:
		base := "0"
		if n, ok := cur.(*types.AttributeValueMemberN); ok {
			base = n.Value
		}
		return &types.AttributeValueMemberN{Value: addNumeric(base, d.Value)}
	case *types.AttributeValueMemberSS:
		existing := map[string]struct{}{}
		if ss, ok := cur.(*types.AttributeValueMemberSS); ok {
			for _, m := range ss.Value {
				existing[m] = struct{}{}
			}
		}
		for _, m := range d.Value {
			existing[m] = struct{}{}
		}
		out := make([]string, 0, len(existing))
		for m := range existing {
			out = append(out, m)
		}
		return &types.AttributeValueMemberSS{Value: out}
	}
	return delta
}

func removeValues(cur, removed types.AttributeValue) types.AttributeValue {
	ss, ok := cur.(*types.AttributeValueMemberSS)
	if !ok {
		return cur
	}
	rem, ok := removed.(*types.AttributeValueMemberSS)
	if !ok {
		return cur
	}
	toRemove := map[string]struct{}{}
	for _, m := range rem.Value {
		toRemove[m] = struct{}{}
	}
	out := make([]string, 0, len(ss.Value))
	for _, m := range ss.Value {
		if _, drop := toRemove[m]; !drop {
			out = append(out, m)
		}
	}
	return &types.AttributeValueMemberSS{Value: out}
}

func addNumeric(a, b string) string {
	fa, _ := strconv.ParseFloat(a, 64)
	fb, _ := strconv.ParseFloat(b, 64)
	return strconv.FormatFloat(fa+fb, 'f', -1, 64)
}
