package mutate

import (
	"context"
	"errors"
	"testing"

	"github.com/normwc/norm/ddberr"
	"github.com/normwc/norm/reqctx"
)

func TestPipeline_Update_BumpsVersionAndAppliesChange(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := reqctx.Enter(context.Background(), "req-1")

	created, _, err := p.Create(ctx, map[string]any{"id": "01ARZ3NDEKTSV4RRFFQ69G5FAV", "email": "a@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldVersion, _ := created.Get("version")

	updated, _, err := p.Update(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", map[string]any{"email": "b@example.com"}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v, _ := updated.Get("email"); v != "b@example.com" {
		t.Errorf("email = %v", v)
	}
	if v, _ := updated.Get("version"); v == oldVersion {
		t.Error("expected version to change on update")
	}
}

func TestPipeline_Update_MissingRowFailsNotFound(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := reqctx.Enter(context.Background(), "req-1")

	_, _, err := p.Update(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", map[string]any{"email": "b@example.com"}, nil)
	var notFound *ddberr.ItemNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ItemNotFoundError, got %v", err)
	}
}

func TestPipeline_Update_ChangingUniqueFieldRetagsCompanionRow(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := reqctx.Enter(context.Background(), "req-1")

	if _, _, err := p.Create(ctx, map[string]any{"id": "01ARZ3NDEKTSV4RRFFQ69G5FAV", "email": "a@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := p.Update(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", map[string]any{"email": "c@example.com"}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The old email should now be free to reuse by a different owner.
	if _, _, err := p.Create(ctx, map[string]any{"id": "01ARZ3NDEKTSV4RRFFQ69G5FBV", "email": "a@example.com"}); err != nil {
		t.Fatalf("expected freed email to be reusable, got %v", err)
	}
}
