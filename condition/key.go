package condition

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/field"
	"github.com/normwc/norm/schema"
)

// keyOperators is the restricted operator set permitted against a sort key.
var keyOperators = map[string]bool{
	OpEq: true, OpBeginsWith: true, OpBetween: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
}

// CompileKeyCondition compiles a restricted condition against the sort key
// of the given index. skField is the descriptor field backing that index's
// sort key; skAttr is its physical attribute name (_sk or _sN_sk). c must
// be a single-entry map naming exactly skField's logical field name; any
// other field name, or an attempt to constrain a sentinel sort key, is a
// compile-time QueryError.
func CompileKeyCondition(d *schema.Descriptor, skFieldName, skAttr string, c C) (expression.KeyConditionBuilder, error) {
	if skFieldName == schema.ModelPrefixSentinel {
		return expression.KeyConditionBuilder{}, ddberr.Query("index has no real sort key field to constrain")
	}
	if len(c) != 1 {
		return expression.KeyConditionBuilder{}, ddberr.Query("key condition must name exactly one field, got %d", len(c))
	}
	for name, v := range c {
		if name != skFieldName {
			return expression.KeyConditionBuilder{}, ddberr.Query("key condition field %q is not the declared sort key %q", name, skFieldName)
		}
		f, ok := d.Field(name)
		if !ok {
			return expression.KeyConditionBuilder{}, ddberr.Query("unknown field %q", name)
		}
		return compileKeyOperator(f, skAttr, v)
	}
	panic("unreachable")
}

func compileKeyOperator(f field.Field, attr string, v any) (expression.KeyConditionBuilder, error) {
	key := expression.Key(attr)
	opMap, ok := isOperatorMap(v)
	if !ok {
		s, ok, err := f.ToIndexString(v)
		if err != nil {
			return expression.KeyConditionBuilder{}, err
		}
		if !ok {
			return expression.KeyConditionBuilder{}, ddberr.Query("value has no index-string form")
		}
		return expression.KeyEqual(key, expression.Value(s)), nil
	}
	if len(opMap) != 1 {
		return expression.KeyConditionBuilder{}, ddberr.Query("exactly one operator expected, got %d", len(opMap))
	}
	for op, arg := range opMap {
		if !keyOperators[op] {
			return expression.KeyConditionBuilder{}, ddberr.Query("operator %q is not permitted against a sort key", op)
		}
		switch op {
		case OpEq:
			s, ok, err := f.ToIndexString(arg)
			if err != nil || !ok {
				return expression.KeyConditionBuilder{}, queryErrFor(err, "$eq")
			}
			return expression.KeyEqual(key, expression.Value(s)), nil
		case OpBeginsWith:
			s, ok := arg.(string)
			if !ok {
				return expression.KeyConditionBuilder{}, ddberr.Query("$beginsWith expects a string")
			}
			return expression.KeyBeginsWith(key, s), nil
		case OpBetween:
			pair, ok := arg.([]any)
			if !ok || len(pair) != 2 {
				return expression.KeyConditionBuilder{}, ddberr.Query("$between expects a two-element list")
			}
			lo, ok1, err1 := f.ToIndexString(pair[0])
			hi, ok2, err2 := f.ToIndexString(pair[1])
			if err1 != nil || err2 != nil || !ok1 || !ok2 {
				return expression.KeyConditionBuilder{}, ddberr.Query("$between bounds must have an index-string form")
			}
			return expression.KeyBetween(key, expression.Value(lo), expression.Value(hi)), nil
		case OpGt:
			s, ok, err := f.ToIndexString(arg)
			if err != nil || !ok {
				return expression.KeyConditionBuilder{}, queryErrFor(err, "$gt")
			}
			return expression.KeyGreaterThan(key, expression.Value(s)), nil
		case OpGte:
			s, ok, err := f.ToIndexString(arg)
			if err != nil || !ok {
				return expression.KeyConditionBuilder{}, queryErrFor(err, "$gte")
			}
			return expression.KeyGreaterThanEqual(key, expression.Value(s)), nil
		case OpLt:
			s, ok, err := f.ToIndexString(arg)
			if err != nil || !ok {
				return expression.KeyConditionBuilder{}, queryErrFor(err, "$lt")
			}
			return expression.KeyLessThan(key, expression.Value(s)), nil
		case OpLte:
			s, ok, err := f.ToIndexString(arg)
			if err != nil || !ok {
				return expression.KeyConditionBuilder{}, queryErrFor(err, "$lte")
			}
			return expression.KeyLessThanEqual(key, expression.Value(s)), nil
		}
	}
	return expression.KeyConditionBuilder{}, ddberr.Query("empty operator map")
}

func queryErrFor(err error, op string) error {
	if err != nil {
		return err
	}
	return ddberr.Query("%s operand has no index-string form", op)
}
