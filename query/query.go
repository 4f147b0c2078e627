// Package query implements the query engine (component G): index
// resolution, key-condition and filter compilation, pagination, count
// mode, and related-entity hydration coalesced through the batch context.
package query

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/condition"
	"github.com/normwc/norm/ddbapi"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/keycodec"
	"github.com/normwc/norm/mutate"
	"github.com/normwc/norm/reqctx"
	"github.com/normwc/norm/schema"
)

// Direction selects the sort-key scan order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Input is the query engine's single entrypoint: (indexName, pkValue,
// optional skCondition, options).
type Input struct {
	IndexName string // "" selects the primary index
	PKValue   any
	SKCond    condition.C // zero value means "no sort-key constraint"

	Limit         int32
	Direction     Direction
	StartKey      map[string]types.AttributeValue
	CountOnly     bool
	Filter        condition.C
	ReturnWrapped bool // default true; set explicitly via NewInput
	LoadRelated   bool
	RelatedFields []string
	RelatedOnly   bool // requires exactly one RelatedFields entry
}

// NewInput returns an Input with ReturnWrapped defaulted true, matching
// spec's stated default.
func NewInput(pkValue any) Input {
	return Input{PKValue: pkValue, ReturnWrapped: true}
}

// Result is one page of a query.
type Result struct {
	Instances       []*schema.Instance
	Related         map[string]*schema.Instance // set only when RelatedOnly
	Count           int32
	LastEvaluatedKey map[string]types.AttributeValue
	Capacity        schema.Capacity
}

// Engine binds a descriptor to a backend client and table name. Registry
// resolves a related field's target model prefix to its own descriptor so
// hydrateRelated can bulk-load cache misses; it may be left nil when the
// query never requests related fields.
type Engine struct {
	Client     ddbapi.Client
	TableName  string
	Descriptor *schema.Descriptor
	Registry   *schema.Registry
}

// Query compiles in and issues one Query call, hydrating instances and,
// when requested, their related fields.
func (e *Engine) Query(ctx context.Context, in Input) (*Result, error) {
	d := e.Descriptor

	pkAttr, skAttr, skFieldName, err := e.resolveIndex(in.IndexName)
	if err != nil {
		return nil, err
	}

	pkField, _ := d.Field(pkFieldNameFor(d, in.IndexName))
	var pkIndexString string
	if pkField != nil {
		s, ok, perr := pkField.ToIndexString(in.PKValue)
		if perr != nil {
			return nil, perr
		}
		if !ok {
			return nil, ddberr.Query("partition key value has no index-string form")
		}
		pkIndexString = s
	} else {
		// pkField nil only for the modelPrefix-sentinel case: the literal
		// value is the model prefix itself.
		pkIndexString = fmt.Sprintf("%v", in.PKValue)
	}

	physicalPK := formatPhysicalPK(d, in.IndexName, pkIndexString)
	keyCond := expression.KeyEqual(expression.Key(pkAttr), expression.Value(physicalPK))

	if len(in.SKCond) > 0 {
		skc, err := condition.CompileKeyCondition(d, skFieldName, skAttr, in.SKCond)
		if err != nil {
			return nil, err
		}
		keyCond = keyCond.And(skc)
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if len(in.Filter) > 0 {
		filterCond, err := condition.CompileFilter(d, in.Filter)
		if err != nil {
			return nil, err
		}
		builder = builder.WithFilter(filterCond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, err
	}

	limit := in.Limit
	if limit == 0 {
		limit = d.DefaultQueryLimit
	}

	qi := &dynamodb.QueryInput{
		TableName:                 &e.TableName,
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          boolPtr(in.Direction == Ascending),
		ExclusiveStartKey:         in.StartKey,
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	}
	if in.IndexName != "" {
		// The backend's GSIs are named by slot ("s1".."s5"), not by the
		// descriptor-level index name.
		ix, _ := d.IndexByName(in.IndexName)
		slotName := fmt.Sprintf("s%d", ix.Slot)
		qi.IndexName = &slotName
	}
	if limit > 0 {
		qi.Limit = int32Ptr(limit)
	}
	if in.CountOnly {
		qi.Select = types.SelectCount
	}

	out, err := e.Client.Query(ctx, qi)
	if err != nil {
		return nil, err
	}

	cap := readCapacity(out.ConsumedCapacity)
	res := &Result{Count: out.Count, LastEvaluatedKey: out.LastEvaluatedKey, Capacity: cap}
	if in.CountOnly {
		return res, nil
	}

	instances := make([]*schema.Instance, 0, len(out.Items))
	for _, item := range out.Items {
		values, err := decodeQueryItem(d, item)
		if err != nil {
			return nil, err
		}
		instances = append(instances, schema.Load(d, values))
	}
	res.Instances = instances

	if in.LoadRelated && len(in.RelatedFields) > 0 {
		if err := e.hydrateRelated(ctx, instances, in.RelatedFields); err != nil {
			return nil, err
		}
		if in.RelatedOnly && len(in.RelatedFields) == 1 {
			res.Related = map[string]*schema.Instance{}
			for _, inst := range instances {
				if target, ok := inst.Related(in.RelatedFields[0]); ok {
					res.Related[targetKey(inst)] = target
				}
			}
		}
	}

	return res, nil
}

// hydrateRelated loads every requested related field across instances,
// coalescing duplicate targets through the identity cache so N instances
// pointing at the same target issue at most one bulk read per related
// field: every cache hit resolves immediately, and every distinct
// cache-missed target id is then fetched in a single BatchGetItem via
// mutate.NewLoader for that field's target model.
func (e *Engine) hydrateRelated(ctx context.Context, instances []*schema.Instance, names []string) error {
	rc, err := reqctx.From(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		f, ok := e.Descriptor.Field(name)
		if !ok {
			return ddberr.Query("unknown related field %q", name)
		}
		rf, ok := f.(interface{ TargetModelPrefix() string })
		if !ok {
			return ddberr.Query("field %q is not a related field", name)
		}
		targetPrefix := rf.TargetModelPrefix()

		missing := map[string][]*schema.Instance{}
		for _, inst := range instances {
			v, ok := inst.Get(name)
			if !ok {
				continue
			}
			targetID, ok := v.(string)
			if !ok || targetID == "" {
				continue
			}
			if target, cached := rc.CachedInstance(targetPrefix, targetID); cached {
				inst.AttachRelated(name, target, schema.Capacity{})
				continue
			}
			missing[targetID] = append(missing[targetID], inst)
		}
		if len(missing) == 0 {
			continue
		}

		if e.Registry == nil {
			return ddberr.Query("related field %q: no registry configured to resolve target model %q", name, targetPrefix)
		}
		targetDescriptor, ok := e.Registry.Get(targetPrefix)
		if !ok {
			return ddberr.Query("related field %q: target model %q is not registered", name, targetPrefix)
		}

		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		loader := mutate.NewLoader(e.Client, e.TableName, targetDescriptor)
		found, _, cap, err := loader(ctx, ids)
		if err != nil {
			return err
		}
		rc.AddCapacity(cap)

		for id, waiting := range missing {
			target, ok := found[id]
			if ok {
				rc.PutCached(targetPrefix, id, target)
			}
			for _, inst := range waiting {
				if ok {
					inst.AttachRelated(name, target, schema.Capacity{})
				} else {
					inst.AttachRelated(name, nil, schema.Capacity{})
				}
			}
		}
	}
	return nil
}

func targetKey(inst *schema.Instance) string {
	if id, ok := inst.Get("id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// resolveIndex maps an index name ("" for primary) to its physical
// attribute names and the descriptor field backing its sort key.
func (e *Engine) resolveIndex(indexName string) (pkAttr, skAttr, skFieldName string, err error) {
	d := e.Descriptor
	if indexName == "" {
		return keycodec.PKAttr, keycodec.SKAttr, d.PrimaryKey.SKField, nil
	}
	ix, ok := d.IndexByName(indexName)
	if !ok {
		return "", "", "", ddberr.Query("unknown index %q", indexName)
	}
	return keycodec.SlotPKAttr(int(ix.Slot)), keycodec.SlotSKAttr(int(ix.Slot)), ix.SKField, nil
}

func pkFieldNameFor(d *schema.Descriptor, indexName string) string {
	if indexName == "" {
		return d.PrimaryKey.PKField
	}
	if ix, ok := d.IndexByName(indexName); ok {
		return ix.PKField
	}
	return ""
}

func formatPhysicalPK(d *schema.Descriptor, indexName, pkIndexString string) string {
	if indexName == "" {
		return keycodec.PrimaryPartition(d.ModelPrefix, pkIndexString)
	}
	ix, _ := d.IndexByName(indexName)
	return keycodec.SecondaryPartition(d.ModelPrefix, int(ix.Slot), pkIndexString)
}

func decodeQueryItem(d *schema.Descriptor, item map[string]types.AttributeValue) (map[string]any, error) {
	out := map[string]any{}
	for _, fs := range d.Fields {
		av, ok := item[fs.Name]
		if !ok {
			continue
		}
		v, err := fs.Field.FromStorage(av)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fs.Name, err)
		}
		out[fs.Name] = v
	}
	return out, nil
}

func readCapacity(cc *types.ConsumedCapacity) schema.Capacity {
	if cc == nil || cc.CapacityUnits == nil {
		return schema.Capacity{}
	}
	return schema.Capacity{Read: *cc.CapacityUnits}
}

func boolPtr(b bool) *bool    { return &b }
func int32Ptr(n int32) *int32 { return &n }
