// Package condition compiles the structured condition DSL (component D)
// into backend filter and key-condition expressions, built directly on
// github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression the way the
// teacher's ddbsdk package does for every write and query path.
package condition

// C is the structured condition value. A bare field-to-value mapping means
// equality; an operator map under a field name selects a named operator;
// "$and", "$or", "$not" are the logical composers.
type C map[string]any

const (
	OpEq         = "$eq"
	OpNe         = "$ne"
	OpGt         = "$gt"
	OpGte        = "$gte"
	OpLt         = "$lt"
	OpLte        = "$lte"
	OpBeginsWith = "$beginsWith"
	OpContains   = "$contains"
	OpExists     = "$exists"
	OpIn         = "$in"
	OpSize       = "$size"
	OpBetween    = "$between"

	OpAnd = "$and"
	OpOr  = "$or"
	OpNot = "$not"
)

// dataOperators is the set of operators usable in a filter (data-attribute)
// condition. Key conditions use keyOperators instead (condition/key.go).
var dataOperators = map[string]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpBeginsWith: true, OpContains: true, OpExists: true, OpIn: true, OpSize: true,
}

func isOperatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for k := range m {
		if len(k) > 0 && k[0] == '$' {
			return m, true
		}
	}
	return nil, false
}
