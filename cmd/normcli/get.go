package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/normwc/norm/mutate"
	"github.com/normwc/norm/reqctx"
)

// runGet fetches one note by its primary id: normcli get <id>.
func runGet(ctx context.Context, cfg Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: normcli get <id>")
	}
	id := args[0]

	client, closeFn, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	m, err := buildManager(client)
	if err != nil {
		return err
	}
	resolved, err := m.Resolve(ctx)
	if err != nil {
		return err
	}
	d, ok := resolved.Registry.Get("note")
	if !ok {
		return fmt.Errorf("descriptor %q not registered", "note")
	}

	ctx = reqctx.Enter(ctx, "normcli-get-"+id)
	rc, err := reqctx.From(ctx)
	if err != nil {
		return err
	}

	loader := mutate.NewLoader(resolved.Client, cfg.TableName, d)
	inst, cap, err := rc.Find(ctx, d.ModelPrefix, id, 0, false, loader)
	if err != nil {
		return err
	}
	if inst == nil {
		fmt.Printf("note %q not found (read units: %.1f)\n", id, cap.Read)
		return nil
	}

	out, err := json.MarshalIndent(inst.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
