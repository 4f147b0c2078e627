// normcli is a tiny ad hoc lookup tool for a norm-backed table: wire a
// descriptor set and a backend (embedded badger or real DynamoDB) and run
// point gets and index queries against it.
//
// # Commands
//
//	normcli get <id>          fetch one note by id
//	normcli query <category>  list notes in a category
//
// # Configuration
//
// normcli.yaml, searched for from the current directory upward:
//
//	backend: embedded   # or "aws"
//	tableName: norm
//	dataDir: ./data      # embedded backend only; empty means in-memory
//	region: us-east-1    # aws backend only
//	endpoint: http://localhost:8000  # aws backend only, for local servers
package main

import (
	"context"
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	cfg := LoadConfig()
	ctx := context.Background()

	var err error
	switch cmd {
	case "get":
		err = runGet(ctx, cfg, args)
	case "query":
		err = runQuery(ctx, cfg, args)
	case "help", "-h", "--help":
		printUsage()
		return
	case "version", "-v", "--version":
		fmt.Printf("normcli version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "normcli: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "normcli %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`normcli - ad hoc lookups against a norm-backed table

Usage:
  normcli <command> [args]

Commands:
  get <id>          fetch one note by id
  query <category>  list notes in a category

Configuration (optional):
  Create normcli.yaml for backend defaults:

    backend: embedded   # or "aws"
    tableName: norm
    dataDir: ./data`)
}
