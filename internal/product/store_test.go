package product

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/csaeum/wsc-datalayer/internal/event"
)

const listingPage = `
	<div class="cms-element-product-listing">
		<div class="product-box" data-product-id="id-1" data-product-number="SW1000">
			<div class="product-name">Widget One</div>
		</div>
		<div class="product-box" data-product-number="SW2000">
			<div class="product-name">Widget Two</div>
		</div>
	</div>`

func TestStoreInit_CollectsIdentity(t *testing.T) {
	doc := parseDoc(t, listingPage)
	store := NewStore()
	store.Init(doc, NewExtractor(doc, false))

	resolved := store.Resolve(event.Item{ItemID: "id-1"})
	assert.Equal(t, "Widget One", resolved.ItemName)

	resolved = store.Resolve(event.Item{ItemID: "SW2000"})
	assert.Equal(t, "Widget Two", resolved.ItemName)
}

func TestStoreInit_Idempotent(t *testing.T) {
	doc := parseDoc(t, listingPage)
	store := NewStore()
	store.Init(doc, NewExtractor(doc, false))

	other := parseDoc(t, `<div class="product-box" data-product-id="late"> <div class="product-name">Late</div></div>`)
	store.Init(other, NewExtractor(other, false))

	resolved := store.Resolve(event.Item{ItemID: "late"})
	assert.Empty(t, resolved.ItemName)
}

func TestStoreResolve_NamePriority(t *testing.T) {
	doc := parseDoc(t, listingPage)
	store := NewStore()
	store.Init(doc, NewExtractor(doc, false))

	store.RecordLastClicked(event.Item{ItemID: "id-9", ItemName: "Last Clicked"})

	// byId wins over last for a known id.
	resolved := store.Resolve(event.Item{ItemID: "id-1"})
	assert.Equal(t, "Widget One", resolved.ItemName)

	// Unknown id falls back to the last clicked name.
	resolved = store.Resolve(event.Item{ItemID: "unknown"})
	assert.Equal(t, "Last Clicked", resolved.ItemName)
}

func TestStoreResolve_MissingIDFromLast(t *testing.T) {
	store := NewStore()
	store.RecordLastClicked(event.Item{ItemID: "SW1000", ItemName: "Widget", Price: 49.99, Currency: "EUR"})

	resolved := store.Resolve(event.Item{Quantity: 3})
	assert.Equal(t, "SW1000", resolved.ItemID)
	assert.Equal(t, "Widget", resolved.ItemName)
	assert.Equal(t, 49.99, resolved.Price)
	assert.Equal(t, 3, resolved.Quantity)
}

func TestStoreResolve_NeverInventsData(t *testing.T) {
	store := NewStore()

	resolved := store.Resolve(event.Item{Quantity: 1})
	assert.False(t, resolved.Identified())
}

func TestStoreReset(t *testing.T) {
	doc := parseDoc(t, listingPage)
	store := NewStore()
	store.Init(doc, NewExtractor(doc, false))
	store.RecordLastClicked(event.Item{ItemID: "id-1", ItemName: "Widget One"})

	store.Reset()

	assert.Nil(t, store.Last())
	resolved := store.Resolve(event.Item{ItemID: "id-1"})
	assert.Empty(t, resolved.ItemName)
}
