package mutate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/condition"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/keycodec"
	"github.com/normwc/norm/reqctx"
	"github.com/normwc/norm/schema"
)

// Update runs the update state machine: load the current row, apply
// changes, recompute index projections and uniqueness companion rows for
// any field that moved, and dispatch a single conditional UpdateItem or a
// TransactWriteItems when a unique field changed.
func (p *Pipeline) Update(ctx context.Context, primaryID string, changes map[string]any, cond condition.C) (*schema.Instance, schema.Capacity, error) {
	d := p.Descriptor
	rc, err := reqctx.From(ctx)
	if err != nil {
		return nil, schema.Capacity{}, err
	}

	inst, loadCap, err := rc.Find(ctx, d.ModelPrefix, primaryID, 0, true, NewLoader(p.Client, p.TableName, d))
	if err != nil {
		return nil, loadCap, err
	}
	if inst == nil {
		return nil, loadCap, ddberr.NotFound(primaryID)
	}

	for name, v := range changes {
		inst.Set(name, v)
	}
	applyBeforeSaveHooks(d, inst, false)
	if err := validateFields(d, inst); err != nil {
		return nil, loadCap, err
	}

	keys, err := ProjectKeys(d, inst, primaryID)
	if err != nil {
		return nil, loadCap, err
	}

	changedConstraints, err := changedUniqueConstraints(d, inst)
	if err != nil {
		return nil, loadCap, err
	}
	for _, cc := range changedConstraints {
		if !cc.newOK {
			continue
		}
		if err := checkUnique(ctx, p.Client, p.TableName, d, cc.uc, cc.newValue, primaryID); err != nil {
			return nil, loadCap, err
		}
	}

	writeCond, err := p.updateCondition(d, inst, cond)
	if err != nil {
		return nil, loadCap, err
	}

	dispatchCap, err := p.dispatchUpdate(ctx, inst, keys, changedConstraints, primaryID, writeCond)
	if err != nil {
		return nil, loadCap.Add(dispatchCap), err
	}

	inst.Rebase(inst.Snapshot())
	rc.PutCached(d.ModelPrefix, primaryID, inst)
	return inst, loadCap.Add(dispatchCap), nil
}

// updateCondition combines the item's existence, the caller's condition,
// and (when the entity has a version field) an optimistic check against
// the value the instance was loaded with.
func (p *Pipeline) updateCondition(d *schema.Descriptor, inst *schema.Instance, cond condition.C) (expression.ConditionBuilder, error) {
	out := expression.Name(keycodec.PKAttr).AttributeExists()

	if versionField, ok := d.VersionFieldName(); ok {
		if old, had := inst.CleanValue(versionField); had {
			f, _ := d.Field(versionField)
			av, err := f.ToStorage(old)
			if err != nil {
				return expression.ConditionBuilder{}, err
			}
			out = out.And(expression.Name(versionField).Equal(expression.Value(av)))
		}
	}

	if len(cond) > 0 {
		userCond, err := condition.CompileFilter(d, cond)
		if err != nil {
			return expression.ConditionBuilder{}, err
		}
		out = out.And(userCond)
	}
	return out, nil
}

type changedConstraint struct {
	uc       schema.UniqueConstraint
	oldValue string
	oldOK    bool
	newValue string
	newOK    bool
}

// changedUniqueConstraints finds every declared uniqueness constraint whose
// field actually moved in this save, pairing its old and new index-string
// values so the caller can stage a companion-row delete+create.
func changedUniqueConstraints(d *schema.Descriptor, inst *schema.Instance) ([]changedConstraint, error) {
	var out []changedConstraint
	for _, uc := range d.UniqueConstraints {
		if !isDirty(inst, uc.Field) {
			continue
		}
		f, ok := d.Field(uc.Field)
		if !ok {
			continue
		}
		var cc changedConstraint
		cc.uc = uc
		if old, had := inst.CleanValue(uc.Field); had {
			s, ok, err := f.ToIndexString(old)
			if err != nil {
				return nil, err
			}
			cc.oldValue, cc.oldOK = s, ok
		}
		newVal, ok, err := indexString(d, uc.Field, inst)
		if err != nil {
			return nil, err
		}
		cc.newValue, cc.newOK = newVal, ok
		if cc.oldOK && cc.newOK && cc.oldValue == cc.newValue {
			continue
		}
		out = append(out, cc)
	}
	return out, nil
}

func isDirty(inst *schema.Instance, name string) bool {
	for _, n := range inst.DirtyFields() {
		if n == name {
			return true
		}
	}
	return false
}

// keyAttrNames lists every physical key attribute an update must keep in
// sync: the primary key, every declared index's slot pair, and the
// iteration bucket key when enabled.
func keyAttrNames(d *schema.Descriptor) []string {
	out := []string{keycodec.PKAttr, keycodec.SKAttr}
	for _, ix := range d.Indexes {
		out = append(out, keycodec.SlotPKAttr(int(ix.Slot)), keycodec.SlotSKAttr(int(ix.Slot)))
	}
	if d.Iteration.Enabled {
		out = append(out, keycodec.IterPKAttr, keycodec.IterSKAttr)
	}
	return out
}

// buildUpdateExpression assembles the SET/ADD/REMOVE/DELETE fragments for
// one save: every physical key attribute is re-set (or removed, when the
// field backing it is now undefined) to track the instance's current
// values, and every dirty declared field contributes its own fragment via
// Field.UpdateExpression, using the field's pending add/remove delta
// instead of its plain value when one is recorded (schema.Instance.SetDelta),
// so e.g. a counter's "+1" is applied as an ADD and a string-set's staged
// members are applied as ADD/DELETE rather than a clobbering SET.
func buildUpdateExpression(d *schema.Descriptor, inst *schema.Instance, keys Item) (expression.UpdateBuilder, error) {
	var ub expression.UpdateBuilder
	for _, name := range keyAttrNames(d) {
		if av, ok := keys[name]; ok {
			ub = ub.Set(expression.Name(name), expression.Value(av))
		} else {
			ub = ub.Remove(expression.Name(name))
		}
	}

	for _, fs := range d.Fields {
		if !isDirty(inst, fs.Name) {
			continue
		}
		v, ok := inst.Get(fs.Name)
		if delta, hasDelta := inst.SetDelta(fs.Name); hasDelta {
			v, ok = delta, true
		}
		if !ok {
			v = nil
		}
		next, err := fs.Field.UpdateExpression(fs.Name, v, ub)
		if err != nil {
			return ub, fmt.Errorf("field %q: %w", fs.Name, err)
		}
		ub = next
	}
	return ub, nil
}

// reconcileDirtyFields replaces every dirty field's in-memory value with the
// one the backend actually stored, read back via ReturnValues: ALL_NEW. A
// field saved as a delta (a counter's "+N", a string-set's staged
// add/delete) holds the delta itself in inst's value map until this runs;
// without it, Rebase would snapshot the delta instead of the field's real
// post-update value.
func reconcileDirtyFields(d *schema.Descriptor, inst *schema.Instance, newItem map[string]types.AttributeValue) {
	if newItem == nil {
		return
	}
	for _, fs := range d.Fields {
		if !isDirty(inst, fs.Name) {
			continue
		}
		av, ok := newItem[fs.Name]
		if !ok {
			inst.Set(fs.Name, nil)
			continue
		}
		v, err := fs.Field.FromStorage(av)
		if err != nil {
			continue
		}
		inst.Set(fs.Name, v)
	}
}

func (p *Pipeline) dispatchUpdate(ctx context.Context, inst *schema.Instance, keys Item, changed []changedConstraint, primaryID string, writeCond expression.ConditionBuilder) (schema.Capacity, error) {
	d := p.Descriptor
	ub, err := buildUpdateExpression(d, inst, keys)
	if err != nil {
		return schema.Capacity{}, err
	}
	keyAttrs := map[string]types.AttributeValue{
		keycodec.PKAttr: keys[keycodec.PKAttr],
		keycodec.SKAttr: keys[keycodec.SKAttr],
	}

	if len(changed) == 0 {
		cap, err := p.retryWrite(ctx, func() (schema.Capacity, error) {
			expr, err := expression.NewBuilder().WithCondition(writeCond).WithUpdate(ub).Build()
			if err != nil {
				return schema.Capacity{}, err
			}
			out, err := p.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:                 &p.TableName,
				Key:                       keyAttrs,
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
				ReturnValues:              types.ReturnValueAllNew,
				ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
			})
			if err != nil {
				return schema.Capacity{}, classifyWriteError(err)
			}
			reconcileDirtyFields(d, inst, out.Attributes)
			return capacityFrom(out.ConsumedCapacity), nil
		})
		return cap, err
	}

	var items []types.TransactWriteItem
	expr, err := expression.NewBuilder().WithCondition(writeCond).WithUpdate(ub).Build()
	if err != nil {
		return schema.Capacity{}, err
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 &p.TableName,
			Key:                       keyAttrs,
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	})

	// asActive holds one entry per companion-row action, in item order, so
	// classifyTransactError's reason index i maps to asActive[i-1].
	var asActive []activeConstraint
	for _, cc := range changed {
		if cc.oldOK {
			delCond := companionRowDeleteCondition(p.Descriptor, primaryID)
			delExpr, err := expression.NewBuilder().WithCondition(delCond).Build()
			if err != nil {
				return schema.Capacity{}, err
			}
			asActive = append(asActive, activeConstraint{uc: cc.uc, value: cc.newValue})
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: &p.TableName,
					Key: map[string]types.AttributeValue{
						keycodec.PKAttr: attrS(keycodec.UniquenessPartition(int(cc.uc.Slot), p.Descriptor.ModelPrefix, cc.uc.Field, cc.oldValue)),
						keycodec.SKAttr: attrS(keycodec.UniquenessSortSentinel),
					},
					ConditionExpression:       delExpr.Condition(),
					ExpressionAttributeNames:  delExpr.Names(),
					ExpressionAttributeValues: delExpr.Values(),
				},
			})
		}
		if cc.newOK {
			row := companionRow(p.Descriptor, cc.uc, cc.newValue, primaryID)
			putCond := companionRowPutCondition(p.Descriptor, primaryID)
			putExpr, err := expression.NewBuilder().WithCondition(putCond).Build()
			if err != nil {
				return schema.Capacity{}, err
			}
			asActive = append(asActive, activeConstraint{uc: cc.uc, value: cc.newValue})
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName:                 &p.TableName,
					Item:                      map[string]types.AttributeValue(row),
					ConditionExpression:       putExpr.Condition(),
					ExpressionAttributeNames:  putExpr.Names(),
					ExpressionAttributeValues: putExpr.Values(),
				},
			})
		}
	}

	return p.retryWrite(ctx, func() (schema.Capacity, error) {
		out, err := p.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:          items,
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return schema.Capacity{}, classifyTransactError(err, asActive)
		}
		return capacityFromList(out.ConsumedCapacity), nil
	})
}
