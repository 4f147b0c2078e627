// Package badgerstore is an embedded, ACID implementation of ddbapi.Client
// backed by dgraph-io/badger/v4, grounded on the teacher's ddbstore.Store.
// Unlike the teacher's table-definition-driven store, the physical schema
// here is fixed (keycodec.PKAttr/SKAttr plus five GSI slot attribute
// pairs, all ALL-projected), so no per-table GSI configuration is needed:
// every table gets the same six indexes.
package badgerstore

import (
	"bytes"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"

	"github.com/normwc/norm/keycodec"
)

const keySeparator = 0x00

// Store is a DynamoDB-compatible store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Options configures the store.
type Options struct {
	// Path to the database directory. Empty means in-memory.
	Path string
	InMemory bool
}

// New opens (or creates) a BadgerDB-backed store.
func New(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// indexAttrs names the (pk, sk) physical attributes for an index: "" is
// the primary index, "s1".."s5" are the five GSI slots.
func indexAttrs(indexName string) (pkAttr, skAttr string, ok bool) {
	if indexName == "" {
		return keycodec.PKAttr, keycodec.SKAttr, true
	}
	var slot int
	if _, err := fmt.Sscanf(indexName, "s%d", &slot); err != nil || slot < 1 || slot > 5 {
		return "", "", false
	}
	return keycodec.SlotPKAttr(slot), keycodec.SlotSKAttr(slot), true
}

// encodeRowKey builds the badger key for an item's row under one index:
// table \x00 index \x00 pk \x00 sk. Components are raw strings (every
// physical key attribute in this schema is always S), so lexicographic
// byte order already matches the intended DynamoDB sort order.
func encodeRowKey(tableName, indexName, pk, sk string) []byte {
	var buf bytes.Buffer
	buf.WriteString(tableName)
	buf.WriteByte(keySeparator)
	buf.WriteString(indexName)
	buf.WriteByte(keySeparator)
	buf.WriteString(pk)
	buf.WriteByte(keySeparator)
	buf.WriteString(sk)
	return buf.Bytes()
}

// encodePartitionPrefix builds the shared prefix for every row in one
// partition of one index, used both to scan and to bound reverse scans.
func encodePartitionPrefix(tableName, indexName, pk string) []byte {
	var buf bytes.Buffer
	buf.WriteString(tableName)
	buf.WriteByte(keySeparator)
	buf.WriteString(indexName)
	buf.WriteByte(keySeparator)
	buf.WriteString(pk)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

// encodeIndexPrefix builds the shared prefix for every row of one index
// across all of its partitions, used by Scan.
func encodeIndexPrefix(tableName, indexName string) []byte {
	var buf bytes.Buffer
	buf.WriteString(tableName)
	buf.WriteByte(keySeparator)
	buf.WriteString(indexName)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

func attrStr(av types.AttributeValue) (string, bool) {
	m, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return m.Value, true
}

func errNotFoundIs(err error) bool { return err == badger.ErrKeyNotFound }
