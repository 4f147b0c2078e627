package reqctx

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/schema"
)

// HardTimeout is the per-batch hard timeout; it fires regardless of how
// many retry rounds a bulk read has gone through.
const HardTimeout = 10 * time.Second

// MaxBatchFragment is the largest number of distinct ids issued in one
// bulk-read call.
const MaxBatchFragment = 100

const maxUnprocessedRounds = 3

// BulkLoader issues one bulk read for up to MaxBatchFragment distinct ids.
// found maps the subset of ids that resolved to a live instance;
// unprocessed lists ids the backend did not get to (DynamoDB's partial
// BatchGetItem fulfillment) and which should be retried. Ids absent from
// both found and unprocessed are confirmed not found.
type BulkLoader func(ctx context.Context, ids []string) (found map[string]*schema.Instance, unprocessed []string, capacity schema.Capacity, err error)

type batchKey struct {
	entityType string
	batchDelay time.Duration
}

type waiter struct {
	id     string
	result chan findResult
}

type findResult struct {
	inst *schema.Instance
	cap  schema.Capacity
	err  error
}

type pendingBatch struct {
	mu      sync.Mutex
	ids     map[string]bool
	waiters map[string][]chan findResult
	loader  BulkLoader
	fired   bool
}

func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 400 * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, 2)
}

// Find implements the point-lookup protocol of component E. entityType
// scopes the identity cache and batch key; id is the entity's primary id.
// When batchDelay is 0 or bypassCache is true, Find issues an immediate
// single-id bulk read. Otherwise it coalesces into the pending batch for
// (entityType, batchDelay), arming a timer on first entry and a hard
// 10-second timeout independent of it.
//
// A nil *schema.Instance with a nil error means "not found" — the spec's
// explicit falsy marker, distinguished from an error.
func (c *Context) Find(ctx context.Context, entityType, id string, batchDelay time.Duration, bypassCache bool, loader BulkLoader) (*schema.Instance, schema.Capacity, error) {
	if !bypassCache {
		if inst, ok := c.CachedInstance(entityType, id); ok {
			return inst, schema.Capacity{}, nil
		}
	}

	if batchDelay <= 0 || bypassCache {
		found, _, cap, err := callWithRetry(ctx, loader, []string{id})
		c.AddCapacity(cap)
		if err != nil {
			return nil, cap, err
		}
		inst, ok := found[id]
		if !ok {
			return nil, cap, nil
		}
		if !bypassCache {
			c.PutCached(entityType, id, inst)
		}
		return inst, cap, nil
	}

	return c.findViaBatch(ctx, entityType, id, batchDelay, loader)
}

func (c *Context) findViaBatch(ctx context.Context, entityType, id string, batchDelay time.Duration, loader BulkLoader) (*schema.Instance, schema.Capacity, error) {
	key := batchKey{entityType: entityType, batchDelay: batchDelay}
	resultCh := make(chan findResult, 1)

	c.mu.Lock()
	b, exists := c.batches[key]
	isNew := !exists
	if isNew {
		b = &pendingBatch{
			ids:     map[string]bool{},
			waiters: map[string][]chan findResult{},
			loader:  loader,
		}
		c.batches[key] = b
	}
	c.mu.Unlock()

	b.mu.Lock()
	b.ids[id] = true
	b.waiters[id] = append(b.waiters[id], resultCh)
	b.mu.Unlock()

	if isNew {
		time.AfterFunc(batchDelay, func() { c.fireBatch(context.Background(), key, b) })
		time.AfterFunc(HardTimeout, func() { b.timeout() })
	}

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, r.cap, r.err
		}
		if r.inst != nil {
			c.PutCached(entityType, id, r.inst)
		}
		c.AddCapacity(r.cap)
		return r.inst, r.cap, nil
	case <-ctx.Done():
		return nil, schema.Capacity{}, ctx.Err()
	}
}

// timeout fails every still-pending waiter with BatchTimeoutError. A batch
// that already fired is a no-op here — the waiters channels are buffered
// and already drained.
func (b *pendingBatch) timeout() {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		return
	}
	b.fired = true
	waiters := b.waiters
	b.waiters = nil
	b.mu.Unlock()

	for id, chans := range waiters {
		for _, ch := range chans {
			ch <- findResult{err: ddberr.BatchTimeout(id)}
		}
	}
}

func (c *Context) fireBatch(ctx context.Context, key batchKey, b *pendingBatch) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		return
	}
	b.fired = true
	ids := make([]string, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	waiters := b.waiters
	loader := b.loader
	b.mu.Unlock()

	c.mu.Lock()
	if c.batches[key] == b {
		delete(c.batches, key)
	}
	c.mu.Unlock()

	totalWaiters := 0
	for _, chans := range waiters {
		totalWaiters += len(chans)
	}
	if totalWaiters == 0 {
		return
	}

	found, totalCap, loadErr := resolveWithUnprocessedRetry(ctx, loader, ids)
	perWaiterCap := schema.Capacity{}
	if totalWaiters > 0 {
		perWaiterCap = schema.Capacity{Read: totalCap.Read / float64(totalWaiters), Write: totalCap.Write / float64(totalWaiters)}
	}

	for id, chans := range waiters {
		var r findResult
		if loadErr != nil {
			r = findResult{err: loadErr, cap: perWaiterCap}
		} else {
			r = findResult{inst: found[id], cap: perWaiterCap}
		}
		for _, ch := range chans {
			ch <- r
		}
	}
}

// resolveWithUnprocessedRetry fragments ids into groups of at most
// MaxBatchFragment, issues a bulk read per fragment with transient-error
// retry, and re-enqueues any backend-unprocessed keys for up to three
// further rounds before giving up and logging.
func resolveWithUnprocessedRetry(ctx context.Context, loader BulkLoader, ids []string) (map[string]*schema.Instance, schema.Capacity, error) {
	found := map[string]*schema.Instance{}
	var totalCap schema.Capacity
	remaining := ids

	for round := 0; round <= maxUnprocessedRounds && len(remaining) > 0; round++ {
		var nextRemaining []string
		for _, frag := range chunk(remaining, MaxBatchFragment) {
			frFound, unprocessed, cap, err := callWithRetry(ctx, loader, frag)
			totalCap = totalCap.Add(cap)
			if err != nil {
				return found, totalCap, err
			}
			for id, inst := range frFound {
				found[id] = inst
			}
			nextRemaining = append(nextRemaining, unprocessed...)
		}
		remaining = nextRemaining
	}
	if len(remaining) > 0 {
		log.Printf("reqctx: %d key(s) remained unprocessed after %d retry rounds, treating as not found", len(remaining), maxUnprocessedRounds)
	}
	return found, totalCap, nil
}

func callWithRetry(ctx context.Context, loader BulkLoader, ids []string) (map[string]*schema.Instance, []string, schema.Capacity, error) {
	var found map[string]*schema.Instance
	var unprocessed []string
	var cap schema.Capacity

	op := func() error {
		f, u, c, err := loader(ctx, ids)
		if err != nil {
			return err
		}
		found, unprocessed, cap = f, u, c
		return nil
	}
	if err := backoff.Retry(op, newBackoff()); err != nil {
		return nil, nil, cap, err
	}
	return found, unprocessed, cap, nil
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
