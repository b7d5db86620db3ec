package event

// Item is one product entry of an ecommerce event, matching the GA4 item
// schema. The same JSON shape is rendered by the backend into the
// data-product-info attribute, so a payload attribute unmarshals directly
// into an Item.
type Item struct {
	ItemID        string  `json:"item_id"`
	ItemName      string  `json:"item_name"`
	Affiliation   string  `json:"affiliation,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Price         float64 `json:"price,omitempty"`
	Discount      float64 `json:"discount,omitempty"`
	Quantity      int     `json:"quantity,omitempty"`
	Index         int     `json:"index,omitempty"`
	ItemBrand     string  `json:"item_brand,omitempty"`
	ItemVariant   string  `json:"item_variant,omitempty"`
	ItemListID    string  `json:"item_list_id,omitempty"`
	ItemListName  string  `json:"item_list_name,omitempty"`
	ItemCategory  string  `json:"item_category,omitempty"`
	ItemCategory2 string  `json:"item_category2,omitempty"`
	ItemCategory3 string  `json:"item_category3,omitempty"`
	ItemCategory4 string  `json:"item_category4,omitempty"`
	ItemCategory5 string  `json:"item_category5,omitempty"`
}

// Identified reports whether the item carries at least an id or a name.
// Items failing this are never emitted.
func (i Item) Identified() bool {
	return i.ItemID != "" || i.ItemName != ""
}

// Ecommerce is the ecommerce block of a canonical event.
type Ecommerce struct {
	Currency     string   `json:"currency,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	ItemListID   string   `json:"item_list_id,omitempty"`
	ItemListName string   `json:"item_list_name,omitempty"`
	Items        []Item   `json:"items,omitempty"`
}

// Event is the canonical analytics event pushed to the sinks. Immutable once
// constructed.
type Event struct {
	Event         string         `json:"event"`
	Ecommerce     *Ecommerce     `json:"ecommerce,omitempty"`
	SearchTerm    string         `json:"search_term,omitempty"`
	ShippingTier  string         `json:"shipping_tier,omitempty"`
	PaymentType   string         `json:"payment_type,omitempty"`
	PromotionName string         `json:"promotion_name,omitempty"`
	PromotionID   string         `json:"promotion_id,omitempty"`
	CreativeName  string         `json:"creative_name,omitempty"`
	User          map[string]any `json:"user,omitempty"`
}

// ResetMarker is the sentinel pushed before a data-bearing event. Tag
// managers cache a reference to the last ecommerce object; the explicit null
// clears it so stale fields do not bleed into the next event.
type ResetMarker struct {
	Ecommerce any `json:"ecommerce"`
}

// Reset returns the reset marker entry.
func Reset() ResetMarker {
	return ResetMarker{}
}

// Float is a convenience for optional numeric event fields.
func Float(v float64) *float64 {
	return &v
}
