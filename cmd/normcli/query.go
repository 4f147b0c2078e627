package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/normwc/norm/query"
	"github.com/normwc/norm/reqctx"
)

// runQuery lists notes in one category: normcli query <category>.
func runQuery(ctx context.Context, cfg Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: normcli query <category>")
	}
	category := args[0]

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

	ctx = reqctx.Enter(ctx, "normcli-query-"+category)

	eng := &query.Engine{Client: resolved.Client, TableName: cfg.TableName, Descriptor: d, Registry: resolved.Registry}
	in := query.NewInput(category)
	in.IndexName = "by-category"

	res, err := eng.Query(ctx, in)
	if err != nil {
		return err
	}

	snapshots := make([]map[string]any, 0, len(res.Instances))
	for _, inst := range res.Instances {
		snapshots = append(snapshots, inst.Snapshot())
	}
	out, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	fmt.Printf("%d item(s), read units: %.1f\n", res.Count, res.Capacity.Read)
	return nil
}
