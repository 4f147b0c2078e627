package keycodec

import "fmt"

// Physical attribute names. These are derived, never user-visible
// (invariant e): user field names can never collide with them because
// registration rejects any user field name starting with "_".
const (
	PKAttr  = "_pk"
	SKAttr  = "_sk"
	IterPKAttr = "_iter_pk"
	IterSKAttr = "_iter_sk"

	// UniqueRelatedIDAttr and UniqueRelatedModelAttr are the payload
	// attributes a uniqueness companion row carries back to the owning
	// item (invariant f).
	UniqueRelatedIDAttr    = "_relatedId"
	UniqueRelatedModelAttr = "_relatedModel"
)

// SlotPKAttr names the physical partition-key attribute for secondary
// index slot N.
func SlotPKAttr(slot int) string { return fmt.Sprintf("_s%d_pk", slot) }

// SlotSKAttr names the physical sort-key attribute for secondary index
// slot N.
func SlotSKAttr(slot int) string { return fmt.Sprintf("_s%d_sk", slot) }
