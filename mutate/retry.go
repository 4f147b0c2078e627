package mutate

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/schema"
)

// retryWrite wraps a single dispatch attempt with retry-on-transient-error:
// up to three attempts (two retries), exponential backoff capped at 400ms. Conditional
// check failures and transaction cancellations never retry — they surface
// immediately as the pipeline's Conflict outcome.
func (p *Pipeline) retryWrite(ctx context.Context, attempt func() (schema.Capacity, error)) (schema.Capacity, error) {
	var result schema.Capacity
	op := func() error {
		c, err := attempt()
		result = c
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 400 * time.Millisecond
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx))
	return result, err
}

func isPermanent(err error) bool {
	var cond *ddberr.ConditionalError
	var notFound *ddberr.ItemNotFoundError
	var validation *ddberr.ValidationError
	return errors.As(err, &cond) || errors.As(err, &notFound) || errors.As(err, &validation)
}

// classifyWriteError turns a raw PutItem/UpdateItem/DeleteItem error into a
// ConditionalError when it is a condition-check failure; any other error is
// returned unchanged so retryWrite treats it as transient.
func classifyWriteError(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ddberr.Conditional("condition check failed")
	}
	return err
}

// classifyTransactError inspects a TransactWriteItems cancellation for a
// uniqueness-companion-row conflict and names the offending field. Any other
// cancellation also becomes a ConditionalError (so it is never retried); an
// error that is not a cancellation is returned unchanged and retried as
// transient.
func classifyTransactError(err error, constraints []activeConstraint) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return err
	}
	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
			continue
		}
		// index 0 is always the main item's own write; index i maps to
		// constraints[i-1] for i>=1.
		if i == 0 {
			return ddberr.Conditional("item already exists")
		}
		if i-1 < len(constraints) {
			return ddberr.Conditional("%s must be unique", constraints[i-1].uc.Field)
		}
	}
	return ddberr.Conditional("transaction cancelled")
}

// capacityFrom converts a single ConsumedCapacity into a Capacity record.
// DynamoDB's per-item responses do not split read/write units, so a write
// path's consumed capacity is booked entirely as Write (and a read path's
// as Read by the caller that invokes this for a GetItem/Query response).
func capacityFrom(cc *types.ConsumedCapacity) schema.Capacity {
	if cc == nil || cc.CapacityUnits == nil {
		return schema.Capacity{}
	}
	return schema.Capacity{Write: *cc.CapacityUnits}
}

// capacityFromList sums consumed capacity across a TransactWriteItems
// response, one entry per table touched.
func capacityFromList(ccs []types.ConsumedCapacity) schema.Capacity {
	var out schema.Capacity
	for i := range ccs {
		out = out.Add(capacityFrom(&ccs[i]))
	}
	return out
}

// capacityFromRead is capacityFrom's read-path counterpart, for
// GetItem/Query/BatchGetItem responses.
func capacityFromRead(cc *types.ConsumedCapacity) schema.Capacity {
	if cc == nil || cc.CapacityUnits == nil {
		return schema.Capacity{}
	}
	return schema.Capacity{Read: *cc.CapacityUnits}
}
