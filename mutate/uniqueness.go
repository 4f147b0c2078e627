package mutate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/normwc/norm/ddbapi"
	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/keycodec"
	"github.com/normwc/norm/schema"
)

// companionRow is the physical shape of a uniqueness-constraint companion
// row: its own (pk, sk) plus a payload pointing back at the owning item
// (invariant f).
func companionRow(d *schema.Descriptor, uc schema.UniqueConstraint, fieldValue, primaryID string) Item {
	return Item{
		keycodec.PKAttr:                attrS(keycodec.UniquenessPartition(int(uc.Slot), d.ModelPrefix, uc.Field, fieldValue)),
		keycodec.SKAttr:                attrS(keycodec.UniquenessSortSentinel),
		keycodec.UniqueRelatedIDAttr:    attrS(primaryID),
		keycodec.UniqueRelatedModelAttr: attrS(d.ModelPrefix),
	}
}

func uniqueFieldValue(d *schema.Descriptor, uc schema.UniqueConstraint, inst *schema.Instance) (string, bool, error) {
	return indexString(d, uc.Field, inst)
}

// checkUnique pre-checks a single uniqueness constraint with a point read
// on the companion row, returning a ConditionalError naming the field when
// it is already taken by a different owner.
func checkUnique(ctx context.Context, client ddbapi.Client, tableName string, d *schema.Descriptor, uc schema.UniqueConstraint, fieldValue, selfID string) error {
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &tableName,
		Key: map[string]types.AttributeValue{
			keycodec.PKAttr: attrS(keycodec.UniquenessPartition(int(uc.Slot), d.ModelPrefix, uc.Field, fieldValue)),
			keycodec.SKAttr: attrS(keycodec.UniquenessSortSentinel),
		},
	})
	if err != nil {
		return fmt.Errorf("uniqueness pre-check on %q: %w", uc.Field, err)
	}
	if len(out.Item) == 0 {
		return nil
	}
	owner, _ := out.Item[keycodec.UniqueRelatedIDAttr].(*types.AttributeValueMemberS)
	if owner != nil && owner.Value == selfID {
		return nil
	}
	return ddberr.Conditional("%s must be unique", uc.Field)
}

// companionRowPutCondition is the companion-row put condition: either the
// row is absent, or it already belongs to the same owner (re-saving an
// unchanged unique field must not self-conflict).
func companionRowPutCondition(d *schema.Descriptor, selfID string) expression.ConditionBuilder {
	notExists := expression.Name(keycodec.PKAttr).AttributeNotExists()
	selfOwned := companionRowDeleteCondition(d, selfID)
	return notExists.Or(selfOwned)
}

// companionRowDeleteCondition guards a companion-row delete so only its
// owner can remove it.
func companionRowDeleteCondition(d *schema.Descriptor, selfID string) expression.ConditionBuilder {
	return expression.Name(keycodec.UniqueRelatedIDAttr).Equal(expression.Value(selfID)).
		And(expression.Name(keycodec.UniqueRelatedModelAttr).Equal(expression.Value(d.ModelPrefix)))
}
