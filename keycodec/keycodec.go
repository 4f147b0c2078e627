// Package keycodec formats and parses the physical partition/sort keys
// (component C): the primary key, the five secondary-index key pairs, the
// uniqueness-constraint companion-row key, and the iteration-bucket key.
// Formats are fixed bytewise and must stay byte-stable across versions —
// conformance is tested with fixed vectors, not round-trip-only checks.
package keycodec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// ReservedUniquenessPrefix is the partition namespace reserved for
// uniqueness-constraint companion rows; it can never collide with a
// modelPrefix because modelPrefix values are registration-time identifiers
// chosen by application code and this prefix is reserved the same way
// schema.ReservedAttrPrefix reserves physical attribute names.
const ReservedUniquenessPrefix = "_uniq"

// UniquenessSortSentinel is the fixed sort-key value every uniqueness
// companion row uses.
const UniquenessSortSentinel = "#"

// IterationInfix separates a modelPrefix from its iteration-bucket index.
const IterationInfix = "iter"

// PrimaryPartition formats the main table's partition key.
func PrimaryPartition(modelPrefix, pkIndexString string) string {
	return modelPrefix + "#" + pkIndexString
}

// PrimarySort formats the main table's sort key. skIsSentinel is true when
// the entity's sort key field is the modelPrefix sentinel, meaning there is
// no real sort field and the literal modelPrefix is used instead.
func PrimarySort(modelPrefix, skIndexString string, skIsSentinel bool) string {
	if skIsSentinel {
		return modelPrefix
	}
	return skIndexString
}

// SecondaryPartition formats the partition key for secondary-index slot N.
func SecondaryPartition(modelPrefix string, slot int, pkIndexString string) string {
	return fmt.Sprintf("%s#%d#%s", modelPrefix, slot, pkIndexString)
}

// SecondarySort formats the sort key for a secondary index; same sentinel
// rule as PrimarySort.
func SecondarySort(modelPrefix, skIndexString string, skIsSentinel bool) string {
	return PrimarySort(modelPrefix, skIndexString, skIsSentinel)
}

// UniquenessPartition formats a uniqueness-constraint companion row's
// partition key, encoding (entity, field, value).
func UniquenessPartition(constraintSlot int, modelPrefix, fieldName, value string) string {
	return fmt.Sprintf("%s#%d#%s#%s:%s", ReservedUniquenessPrefix, constraintSlot, modelPrefix, fieldName, value)
}

// IterationPartition formats the partition key for the iteration-bucket
// GSI row of bucketIndex within modelPrefix's bucket space.
func IterationPartition(modelPrefix string, bucketIndex int) string {
	return fmt.Sprintf("%s#%s#%d", modelPrefix, IterationInfix, bucketIndex)
}

// IterationSort formats the iteration GSI's sort key: the entity's own
// primary id.
func IterationSort(primaryID string) string { return primaryID }

// BucketIndex deterministically maps a primary id into [0, bucketCount).
func BucketIndex(primaryID string, bucketCount int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(primaryID))
	return int(h.Sum64() % uint64(bucketCount))
}

// EncodePrimaryID packs (pkIndexString, skIndexString) into one opaque,
// round-tripping string. When skIsSentinel, the id degenerates to the bare
// pk index-string (matching spec.md §3's "Primary id ... degenerates to
// pkValue when sk is the modelPrefix sentinel"). Otherwise it is a
// length-prefixed concatenation, base64 (RawURLEncoding) encoded, so
// neither component's content can introduce an ambiguous delimiter.
func EncodePrimaryID(pkIndexString, skIndexString string, skIsSentinel bool) (string, error) {
	if skIsSentinel {
		return pkIndexString, nil
	}
	buf := make([]byte, 0, len(pkIndexString)+len(skIndexString)+10)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(pkIndexString)))
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, pkIndexString...)
	buf = append(buf, skIndexString...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DecodePrimaryID is the inverse of EncodePrimaryID. When skIsSentinel, id
// is returned verbatim as the pk component with an empty sk component.
func DecodePrimaryID(id string, skIsSentinel bool) (pkIndexString, skIndexString string, err error) {
	if skIsSentinel {
		return id, "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", "", fmt.Errorf("decode primary id: %w", err)
	}
	pkLen, n := binary.Uvarint(raw)
	if n <= 0 {
		return "", "", fmt.Errorf("decode primary id: malformed length prefix")
	}
	rest := raw[n:]
	if uint64(len(rest)) < pkLen {
		return "", "", fmt.Errorf("decode primary id: truncated pk component")
	}
	pkIndexString = string(rest[:pkLen])
	skIndexString = string(rest[pkLen:])
	return pkIndexString, skIndexString, nil
}
