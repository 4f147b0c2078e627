package mutate

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/condition"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/keycodec"
	"github.com/normwc/norm/reqctx"
	"github.com/normwc/norm/schema"
)

// Delete loads the current row, bundles the main item delete with any
// uniqueness-companion-row deletes into a single TransactWriteItems (or a
// direct conditional DeleteItem when the entity has no unique
// constraints), and evicts the id from the request's identity cache.
func (p *Pipeline) Delete(ctx context.Context, primaryID string, cond condition.C) (schema.Capacity, error) {
	d := p.Descriptor
	rc, err := reqctx.From(ctx)
	if err != nil {
		return schema.Capacity{}, err
	}

	inst, loadCap, err := rc.Find(ctx, d.ModelPrefix, primaryID, 0, true, NewLoader(p.Client, p.TableName, d))
	if err != nil {
		return loadCap, err
	}
	if inst == nil {
		return loadCap, ddberr.NotFound(primaryID)
	}

	writeCond := expression.Name(keycodec.PKAttr).AttributeExists()
	if len(cond) > 0 {
		userCond, err := condition.CompileFilter(d, cond)
		if err != nil {
			return loadCap, err
		}
		writeCond = writeCond.And(userCond)
	}

	active, err := activeConstraints(d, inst)
	if err != nil {
		return loadCap, err
	}

	pk, sk, err := physicalKeyFor(d, primaryID)
	if err != nil {
		return loadCap, err
	}

	dispatchCap, err := p.dispatchDelete(ctx, pk, sk, primaryID, active, writeCond)
	if err != nil {
		return loadCap.Add(dispatchCap), err
	}

	rc.EvictCached(d.ModelPrefix, primaryID)
	return loadCap.Add(dispatchCap), nil
}

func (p *Pipeline) dispatchDelete(ctx context.Context, pk, sk, primaryID string, active []activeConstraint, writeCond expression.ConditionBuilder) (schema.Capacity, error) {
	if len(active) == 0 {
		return p.retryWrite(ctx, func() (schema.Capacity, error) {
			expr, err := expression.NewBuilder().WithCondition(writeCond).Build()
			if err != nil {
				return schema.Capacity{}, err
			}
			out, err := p.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: &p.TableName,
				Key: map[string]types.AttributeValue{
					keycodec.PKAttr: attrS(pk),
					keycodec.SKAttr: attrS(sk),
				},
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

	expr, err := expression.NewBuilder().WithCondition(writeCond).Build()
	if err != nil {
		return schema.Capacity{}, err
	}
	items := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName: &p.TableName,
			Key: map[string]types.AttributeValue{
				keycodec.PKAttr: attrS(pk),
				keycodec.SKAttr: attrS(sk),
			},
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}}
	for _, ac := range active {
		delCond := companionRowDeleteCondition(p.Descriptor, primaryID)
		delExpr, err := expression.NewBuilder().WithCondition(delCond).Build()
		if err != nil {
			return schema.Capacity{}, err
		}
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: &p.TableName,
				Key: map[string]types.AttributeValue{
					keycodec.PKAttr: attrS(keycodec.UniquenessPartition(int(ac.uc.Slot), p.Descriptor.ModelPrefix, ac.uc.Field, ac.value)),
					keycodec.SKAttr: attrS(keycodec.UniquenessSortSentinel),
				},
				ConditionExpression:       delExpr.Condition(),
				ExpressionAttributeNames:  delExpr.Names(),
				ExpressionAttributeValues: delExpr.Values(),
			},
		})
	}

	return p.retryWrite(ctx, func() (schema.Capacity, error) {
		out, err := p.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:          items,
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return schema.Capacity{}, classifyTransactError(err, active)
		}
		return capacityFromList(out.ConsumedCapacity), nil
	})
}
