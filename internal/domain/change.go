package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEventKind is returned when a string names no known event kind.
var ErrUnknownEventKind = errors.New("unknown event kind")

// EventKind names a change notification on the bus. It doubles as the topic
// name.
type EventKind string

const (
	KindProductsChanged EventKind = "search.products.changed"
	KindProductsDeleted EventKind = "search.products.deleted"
	KindReviewsChanged  EventKind = "search.reviews.changed"
	KindReviewsDeleted  EventKind = "search.reviews.deleted"

	KindFulfillmentSetChanged EventKind = "search.intermediate.fulfillment_set.changed"
	KindServiceZoneChanged    EventKind = "search.intermediate.service_zone.changed"
	KindShippingOptionChanged EventKind = "search.intermediate.shipping_option.changed"
	KindStockLocationChanged  EventKind = "search.intermediate.stock_location.changed"
	KindInventoryItemChanged  EventKind = "search.intermediate.inventory_item.changed"
)

const intermediatePrefix = "search.intermediate."

// AllEventKinds lists every kind a consumer subscribes to.
func AllEventKinds() []EventKind {
	return []EventKind{
		KindProductsChanged,
		KindProductsDeleted,
		KindReviewsChanged,
		KindReviewsDeleted,
		KindFulfillmentSetChanged,
		KindServiceZoneChanged,
		KindShippingOptionChanged,
		KindStockLocationChanged,
		KindInventoryItemChanged,
	}
}

// IsValid reports whether k is a known kind.
func (k EventKind) IsValid() bool {
	for _, known := range AllEventKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// IsIntermediate reports whether k concerns an entity that is not indexed
// itself but feeds product documents.
func (k EventKind) IsIntermediate() bool {
	return strings.HasPrefix(string(k), intermediatePrefix) && k.IsValid()
}

// IndexType returns the index a direct kind targets. Intermediate kinds
// return IndexProducts since that is the only index they affect.
func (k EventKind) IndexType() IndexType {
	switch k {
	case KindReviewsChanged, KindReviewsDeleted:
		return IndexReviews
	default:
		return IndexProducts
	}
}

func (k EventKind) String() string { return string(k) }

// ParseEventKind converts s to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
	}
	return k, nil
}

// ChangedKind returns the upsert-or-delete notification kind for t.
func ChangedKind(t IndexType) EventKind {
	if t == IndexReviews {
		return KindReviewsChanged
	}
	return KindProductsChanged
}

// DeletedKind returns the delete notification kind for t.
func DeletedKind(t IndexType) EventKind {
	if t == IndexReviews {
		return KindReviewsDeleted
	}
	return KindProductsDeleted
}

// ChangeSet partitions a batch of IDs for one index. Every input ID lands
// in exactly one of the two lists.
type ChangeSet struct {
	ToUpsert []string
	ToDelete []string
}

// Len is the number of classified IDs.
func (c *ChangeSet) Len() int {
	return len(c.ToUpsert) + len(c.ToDelete)
}

// ChangeEvent is one notification carrying a bounded batch of IDs.
type ChangeEvent struct {
	Kind      EventKind
	IndexType IndexType
	IDs       []string
}

// ChangePayload is the wire form of a ChangeEvent inside the bus envelope.
// The kind travels as the envelope event type.
type ChangePayload struct {
	IndexType IndexType `json:"index_type,omitempty"`
	IDs       []string  `json:"ids"`
}

// Payload returns the wire payload of e.
func (e ChangeEvent) Payload() ChangePayload {
	return ChangePayload{IndexType: e.IndexType, IDs: e.IDs}
}
