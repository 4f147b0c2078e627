package main

import (
	"context"
	"fmt"

	"github.com/normwc/norm/awsddb"
	"github.com/normwc/norm/badgerstore"
	"github.com/normwc/norm/ddbapi"
)

// openClient wires cfg's chosen backend into a ddbapi.Client, returning a
// close func that is a no-op for the aws backend.
func openClient(ctx context.Context, cfg Config) (ddbapi.Client, func() error, error) {
	switch cfg.Backend {
	case "", "embedded":
		s, err := badgerstore.New(badgerstore.Options{Path: cfg.DataDir, InMemory: cfg.DataDir == ""})
		if err != nil {
			return nil, nil, fmt.Errorf("opening embedded backend: %w", err)
		}
		return s, s.Close, nil
	case "aws":
		var opts []awsddb.Option
		if cfg.Region != "" {
			opts = append(opts, awsddb.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, awsddb.WithEndpoint(cfg.Endpoint))
		}
		client, err := awsddb.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("opening aws backend: %w", err)
		}
		return client, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want \"embedded\" or \"aws\")", cfg.Backend)
	}
}
