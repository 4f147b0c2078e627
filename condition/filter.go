package condition

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/field"
	"github.com/normwc/norm/schema"
)

// CompileFilter compiles a structured condition into a backend
// ConditionBuilder against d's fields. Values are fed through the owning
// field's ToStorage (filter conditions only ever target data attributes,
// never the derived key attributes). Unknown field names and unknown
// operators are hard errors raised here, never silently ignored.
func CompileFilter(d *schema.Descriptor, c C) (expression.ConditionBuilder, error) {
	if len(c) == 0 {
		return expression.ConditionBuilder{}, ddberr.Query("empty condition")
	}
	if len(c) == 1 {
		for k, v := range c {
			switch k {
			case OpAnd:
				return compileLogical(d, v, true)
			case OpOr:
				return compileLogical(d, v, false)
			case OpNot:
				inner, ok := v.(C)
				if !ok {
					if m, ok2 := v.(map[string]any); ok2 {
						inner = C(m)
					} else {
						return expression.ConditionBuilder{}, ddberr.Query("$not expects a condition, got %T", v)
					}
				}
				sub, err := CompileFilter(d, inner)
				if err != nil {
					return expression.ConditionBuilder{}, err
				}
				return expression.Not(sub), nil
			}
		}
	}
	return compileFieldMap(d, c)
}

func compileLogical(d *schema.Descriptor, v any, and bool) (expression.ConditionBuilder, error) {
	list, ok := toConditionList(v)
	if !ok {
		return expression.ConditionBuilder{}, ddberr.Query("%s expects a list of conditions", map[bool]string{true: OpAnd, false: OpOr}[and])
	}
	if len(list) == 0 {
		return expression.ConditionBuilder{}, ddberr.Query("%s requires at least one condition", map[bool]string{true: OpAnd, false: OpOr}[and])
	}
	built := make([]expression.ConditionBuilder, 0, len(list))
	for _, item := range list {
		cb, err := CompileFilter(d, item)
		if err != nil {
			return expression.ConditionBuilder{}, err
		}
		built = append(built, cb)
	}
	out := built[0]
	for _, cb := range built[1:] {
		if and {
			out = out.And(cb)
		} else {
			out = out.Or(cb)
		}
	}
	return out, nil
}

func toConditionList(v any) ([]C, bool) {
	switch list := v.(type) {
	case []C:
		return list, true
	case []any:
		out := make([]C, 0, len(list))
		for _, item := range list {
			switch m := item.(type) {
			case C:
				out = append(out, m)
			case map[string]any:
				out = append(out, C(m))
			default:
				return nil, false
			}
		}
		return out, true
	case []map[string]any:
		out := make([]C, 0, len(list))
		for _, m := range list {
			out = append(out, C(m))
		}
		return out, true
	}
	return nil, false
}

// compileFieldMap compiles every top-level field:value entry and ANDs them
// together (the DSL's implicit conjunction across sibling keys).
func compileFieldMap(d *schema.Descriptor, c C) (expression.ConditionBuilder, error) {
	var out *expression.ConditionBuilder
	for name, v := range c {
		f, ok := d.Field(name)
		if !ok {
			return expression.ConditionBuilder{}, ddberr.Query("unknown field %q", name)
		}
		cb, err := compileFieldCondition(f, name, v)
		if err != nil {
			return expression.ConditionBuilder{}, err
		}
		if out == nil {
			joined := cb
			out = &joined
		} else {
			joined := out.And(cb)
			out = &joined
		}
	}
	return *out, nil
}

func compileFieldCondition(f field.Field, name string, v any) (expression.ConditionBuilder, error) {
	opMap, ok := isOperatorMap(v)
	if !ok {
		av, err := f.ToStorage(v)
		if err != nil {
			return expression.ConditionBuilder{}, fmt.Errorf("field %q: %w", name, err)
		}
		return expression.Name(name).Equal(expression.Value(av)), nil
	}
	if len(opMap) != 1 {
		return expression.ConditionBuilder{}, ddberr.Query("field %q: exactly one operator expected, got %d", name, len(opMap))
	}
	for op, arg := range opMap {
		if !dataOperators[op] {
			return expression.ConditionBuilder{}, ddberr.Query("field %q: unknown operator %q", name, op)
		}
		return compileOperator(f, name, op, arg)
	}
	return expression.ConditionBuilder{}, ddberr.Query("field %q: empty operator map", name)
}

func compileOperator(f field.Field, name, op string, arg any) (expression.ConditionBuilder, error) {
	attr := expression.Name(name)
	switch op {
	case OpExists:
		want, ok := arg.(bool)
		if !ok {
			return expression.ConditionBuilder{}, ddberr.Query("field %q: $exists expects a bool", name)
		}
		if want {
			return attr.AttributeExists(), nil
		}
		return attr.AttributeNotExists(), nil
	case OpContains:
		s, ok := arg.(string)
		if !ok {
			return expression.ConditionBuilder{}, ddberr.Query("field %q: $contains expects a string", name)
		}
		return attr.Contains(s), nil
	case OpSize:
		n, ok := toSizeArg(arg)
		if !ok {
			return expression.ConditionBuilder{}, ddberr.Query("field %q: $size expects an integer", name)
		}
		return attr.Size().Equal(expression.Value(n)), nil
	case OpIn:
		vals, ok := arg.([]any)
		if !ok {
			return expression.ConditionBuilder{}, ddberr.Query("field %q: $in expects a list", name)
		}
		if len(vals) == 0 {
			return expression.ConditionBuilder{}, ddberr.Query("field %q: $in requires at least one value", name)
		}
		operands := make([]expression.OperandBuilder, 0, len(vals)-1)
		encoded := make([]expression.ValueBuilder, 0, len(vals))
		for _, raw := range vals {
			av, err := f.ToStorage(raw)
			if err != nil {
				return expression.ConditionBuilder{}, fmt.Errorf("field %q: %w", name, err)
			}
			encoded = append(encoded, expression.Value(av))
		}
		for _, e := range encoded[1:] {
			operands = append(operands, e)
		}
		return attr.In(encoded[0], operands...), nil
	}

	av, err := f.ToStorage(arg)
	if err != nil {
		return expression.ConditionBuilder{}, fmt.Errorf("field %q: %w", name, err)
	}
	val := expression.Value(av)
	switch op {
	case OpEq:
		return attr.Equal(val), nil
	case OpNe:
		return attr.NotEqual(val), nil
	case OpGt:
		return attr.GreaterThan(val), nil
	case OpGte:
		return attr.GreaterThanEqual(val), nil
	case OpLt:
		return attr.LessThan(val), nil
	case OpLte:
		return attr.LessThanEqual(val), nil
	case OpBeginsWith:
		s, ok := arg.(string)
		if !ok {
			return expression.ConditionBuilder{}, ddberr.Query("field %q: $beginsWith expects a string", name)
		}
		return attr.BeginsWith(s), nil
	}
	return expression.ConditionBuilder{}, ddberr.Query("field %q: unknown operator %q", name, op)
}

func toSizeArg(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
