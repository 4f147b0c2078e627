package mutate

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/ddbapi"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/keycodec"
	"github.com/normwc/norm/reqctx"
	"github.com/normwc/norm/schema"
)

// Pipeline binds a descriptor and table name to a backend client, exposing
// Create/Update/Delete (component F).
type Pipeline struct {
	Client    ddbapi.Client
	TableName string
	Descriptor *schema.Descriptor
}

// Create runs the create state machine: Validated -> Projected ->
// UniquenessStaged -> Conditioned -> Dispatched -> {Success, Conflict,
// Fatal}. input supplies the fields the caller set explicitly; fields with
// no input value take their declared initial value.
func (p *Pipeline) Create(ctx context.Context, input map[string]any) (*schema.Instance, schema.Capacity, error) {
	d := p.Descriptor
	inst := schema.New(d, input)

	for _, name := range d.RequiredFields() {
		if _, ok := inst.Get(name); !ok {
			return nil, schema.Capacity{}, ddberr.Validation(name, "required primary-key field missing at create")
		}
	}

	applyBeforeSaveHooks(d, inst, true)

	if err := validateFields(d, inst); err != nil {
		return nil, schema.Capacity{}, err
	}

	primaryID, err := PrimaryID(d, inst)
	if err != nil {
		return nil, schema.Capacity{}, err
	}

	keys, err := ProjectKeys(d, inst, primaryID)
	if err != nil {
		return nil, schema.Capacity{}, err
	}
	fields, err := ProjectFields(d, inst)
	if err != nil {
		return nil, schema.Capacity{}, err
	}
	item := mergeItems(keys, fields)

	constraints, err := activeConstraints(d, inst)
	if err != nil {
		return nil, schema.Capacity{}, err
	}
	for _, ac := range constraints {
		if err := checkUnique(ctx, p.Client, p.TableName, d, ac.uc, ac.value, primaryID); err != nil {
			return nil, schema.Capacity{}, err
		}
	}

	cap, err := p.dispatchCreate(ctx, item, constraints, primaryID)
	if err != nil {
		return nil, cap, err
	}

	inst.Rebase(inst.Snapshot())
	if rc, rcErr := reqctx.From(ctx); rcErr == nil {
		rc.PutCached(d.ModelPrefix, primaryID, inst)
	}
	return inst, cap, nil
}

type activeConstraint struct {
	uc    schema.UniqueConstraint
	value string
}

func activeConstraints(d *schema.Descriptor, inst *schema.Instance) ([]activeConstraint, error) {
	var out []activeConstraint
	for _, uc := range d.UniqueConstraints {
		v, ok, err := uniqueFieldValue(d, uc, inst)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, activeConstraint{uc: uc, value: v})
	}
	return out, nil
}

func (p *Pipeline) dispatchCreate(ctx context.Context, item Item, constraints []activeConstraint, primaryID string) (schema.Capacity, error) {
	if len(constraints) == 0 {
		return p.retryWrite(ctx, func() (schema.Capacity, error) {
			cond := expression.Name(keycodec.PKAttr).AttributeNotExists()
			expr, err := expression.NewBuilder().WithCondition(cond).Build()
			if err != nil {
				return schema.Capacity{}, err
			}
			out, err := p.Client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:                 &p.TableName,
				Item:                      map[string]types.AttributeValue(item),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
				ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
			})
			if err != nil {
				return schema.Capacity{}, classifyWriteError(err)
			}
			return capacityFrom(out.ConsumedCapacity), nil
		})
	}

	var items []types.TransactWriteItem
	cond := expression.Name(keycodec.PKAttr).AttributeNotExists()
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return schema.Capacity{}, err
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 &p.TableName,
			Item:                      map[string]types.AttributeValue(item),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	})
	for _, ac := range constraints {
		row := companionRow(p.Descriptor, ac.uc, ac.value, primaryID)
		ucCond := companionRowPutCondition(p.Descriptor, primaryID)
		ucExpr, err := expression.NewBuilder().WithCondition(ucCond).Build()
		if err != nil {
			return schema.Capacity{}, err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 &p.TableName,
				Item:                      map[string]types.AttributeValue(row),
				ConditionExpression:       ucExpr.Condition(),
				ExpressionAttributeNames:  ucExpr.Names(),
				ExpressionAttributeValues: ucExpr.Values(),
			},
		})
	}

	return p.retryWrite(ctx, func() (schema.Capacity, error) {
		out, err := p.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:          items,
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return schema.Capacity{}, classifyTransactError(err, constraints)
		}
		return capacityFromList(out.ConsumedCapacity), nil
	})
}

func mergeItems(parts ...Item) Item {
	out := Item{}
	for _, part := range parts {
		for k, v := range part {
			out[k] = v
		}
	}
	return out
}

func validateFields(d *schema.Descriptor, inst *schema.Instance) error {
	for _, fs := range d.Fields {
		v, ok := inst.Get(fs.Name)
		if !ok {
			continue
		}
		if err := fs.Field.Validate(v); err != nil {
			return ddberr.Validation(fs.Name, "%s", err.Error())
		}
	}
	return nil
}
