package domain

import (
	"time"
)

// Modifier is an optional add-on attached to a single order line. Link
// modifiers are mutually exclusive with non-link modifiers on the same
// purchase.
type Modifier struct {
	Name            string `json:"name"`
	PriceAdjustment int64  `json:"price_adjustment"` // minor units, may be negative
	Link            bool   `json:"link"`
}

// Item is one unit of a catalog entry added to a tab. Items are immutable
// once created except for removal; editing a modifier means remove and
// re-add, matching receipt semantics.
type Item struct {
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	BasePrice int64     `json:"base_price"` // minor units
	Modifier  *Modifier `json:"modifier,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// EffectivePrice is always recomputed from base plus adjustment, never
// stored, so catalog price changes mid-event cannot cause drift.
func (i Item) EffectivePrice() int64 {
	if i.Modifier == nil {
		return i.BasePrice
	}
	return i.BasePrice + i.Modifier.PriceAdjustment
}

// Tab is an open order within an event, analogous to a restaurant check.
// Item order is insertion order and is the canonical receipt order.
type Tab struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"` // sequential, e.g. "P3"
	CustomName  string    `json:"custom_name,omitempty"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
}

// Name returns the custom name when set, otherwise the display name.
func (t Tab) Name() string {
	if t.CustomName != "" {
		return t.CustomName
	}
	return t.DisplayName
}

// Subtotal sums the effective price of every item on the tab.
func (t Tab) Subtotal() int64 {
	var total int64
	for _, it := range t.Items {
		total += it.EffectivePrice()
	}
	return total
}

// CatalogEntry is a purchasable entry from the catalog service, polled once
// per session load and not live-updated mid-event.
type CatalogEntry struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	Price     int64      `json:"price"` // minor units
	Modifiers []Modifier `json:"modifiers,omitempty"`
}
