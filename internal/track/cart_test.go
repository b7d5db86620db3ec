package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csaeum/wsc-datalayer/internal/event"
	"github.com/csaeum/wsc-datalayer/internal/intercept"
	"github.com/csaeum/wsc-datalayer/internal/sink"
)

const detailPage = `<html><body>
	<div class="product-detail">
		<div class="wsc-product-data-container" data-product-info='{"item_id":"SW1000","item_name":"Widget","price":49.99,"currency":"EUR"}'></div>
		<button class="btn-buy">Add to cart</button>
	</div>
</body></html>`

const buyClick = `<div class="product-detail">
	<div class="wsc-product-data-container" data-product-info='{"item_id":"SW1000","item_name":"Widget","price":49.99,"currency":"EUR"}'></div>
	<button class="btn-buy" data-wsc-target>Add to cart</button>
</div>`

func cartRequest(body string) Interaction {
	return Interaction{
		Type:        TypeRequest,
		Method:      "POST",
		URL:         "https://shop.example/checkout/line-item/add",
		Status:      200,
		ContentType: "application/x-www-form-urlencoded",
		Body:        body,
	}
}

func lastEvent(t *testing.T, q *sink.Queue) *event.Event {
	t.Helper()
	entries := q.Entries()
	require.NotEmpty(t, entries)
	ev, ok := entries[len(entries)-1].(*event.Event)
	require.True(t, ok, "last entry is not a canonical event")
	return ev
}

func TestCartFlow_ClickThenRequestCompletion(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: detailPage, URL: "https://shop.example/widget"})

	s.Handle(Interaction{Type: TypeClick, Fragment: buyClick})
	// Emission is deferred until the cart request succeeds.
	assert.Zero(t, s.DataLayer().Len())

	s.Handle(cartRequest("lineItems[abc][quantity]=3"))

	require.Equal(t, 2, s.DataLayer().Len())
	require.Equal(t, 2, s.MtmLayer().Len())

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "add_to_cart", ev.Event)
	require.NotNil(t, ev.Ecommerce)
	assert.Equal(t, "EUR", ev.Ecommerce.Currency)
	require.NotNil(t, ev.Ecommerce.Value)
	assert.Equal(t, 149.97, *ev.Ecommerce.Value)
	require.Len(t, ev.Ecommerce.Items, 1)
	assert.Equal(t, "SW1000", ev.Ecommerce.Items[0].ItemID)
	assert.Equal(t, "Widget", ev.Ecommerce.Items[0].ItemName)
	assert.Equal(t, 3, ev.Ecommerce.Items[0].Quantity)
}

func TestCartFlow_ResetMarkerPrecedesEvent(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: detailPage, URL: "https://shop.example/widget"})
	s.Handle(Interaction{Type: TypeClick, Fragment: buyClick})
	s.Handle(cartRequest(""))

	entries := s.DataLayer().Entries()
	require.Len(t, entries, 2)
	assert.IsType(t, event.ResetMarker{}, entries[0])
}

func TestCartFlow_QuantityDefaultsToOne(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: detailPage, URL: "https://shop.example/widget"})
	s.Handle(Interaction{Type: TypeClick, Fragment: buyClick})
	s.Handle(cartRequest(""))

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, 1, ev.Ecommerce.Items[0].Quantity)
	assert.Equal(t, 49.99, *ev.Ecommerce.Value)
}

func TestCartFlow_FailedRequestEmitsNothing(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: detailPage, URL: "https://shop.example/widget"})
	s.Handle(Interaction{Type: TypeClick, Fragment: buyClick})

	failed := cartRequest("lineItems[abc][quantity]=3")
	failed.Status = 500
	s.Handle(failed)

	assert.Zero(t, s.DataLayer().Len())
}

func TestCartFlow_UnrelatedRequestIgnored(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: detailPage, URL: "https://shop.example/widget"})
	s.Handle(Interaction{Type: TypeClick, Fragment: buyClick})

	other := cartRequest("")
	other.URL = "https://shop.example/widgets/suggest"
	s.Handle(other)

	assert.Zero(t, s.DataLayer().Len())
}

func TestCartFlow_OverlappingClicksAttributeToMostRecent(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/"})

	clickFor := func(id, name string) Interaction {
		return Interaction{Type: TypeClick, Fragment: `<div class="product-box" data-product-info='{"item_id":"` + id + `","item_name":"` + name + `"}'>
			<button class="btn-buy" data-wsc-target>Add</button>
		</div>`}
	}

	s.Handle(clickFor("A-1", "Product A"))
	s.Handle(clickFor("B-2", "Product B"))

	// A's request resolves after B's click; correlation is by most recent
	// click, the documented limitation.
	s.Handle(cartRequest("lineItems[x][quantity]=1"))

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "B-2", ev.Ecommerce.Items[0].ItemID)
}

func TestCartFlow_NoResolvableProductEmitsNothing(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/"})

	// No prior click, no id in the body: both id and name stay empty.
	s.Handle(cartRequest("lineItems[abc][quantity]=2"))

	assert.Zero(t, s.DataLayer().Len())
	assert.Zero(t, s.MtmLayer().Len())
}

func TestCartFlow_BodyIDWithoutClickResolvesFromStore(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: `<html><body>
		<div class="product-box" data-product-id="id-77"><div class="product-name">Collected Widget</div></div>
	</body></html>`, URL: "https://shop.example/"})

	s.Handle(cartRequest("lineItems[x][id]=id-77&lineItems[x][quantity]=2"))

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "id-77", ev.Ecommerce.Items[0].ItemID)
	assert.Equal(t, "Collected Widget", ev.Ecommerce.Items[0].ItemName)
	assert.Equal(t, 2, ev.Ecommerce.Items[0].Quantity)
}

func TestRemoveFromCart_FormSubmit(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/checkout/cart"})

	s.Handle(Interaction{
		Type:   TypeSubmit,
		Action: "/checkout/line-item/delete/abc",
		Fragment: `<form class="cart-item" data-product-number="SW2000">
			<div class="product-name">Widget 2000</div>
		</form>`,
		Fields: []intercept.Field{{Key: "lineItems[abc][quantity]", Value: "2"}},
	})

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "remove_from_cart", ev.Event)
	require.Len(t, ev.Ecommerce.Items, 1)
	assert.Equal(t, "SW2000", ev.Ecommerce.Items[0].ItemID)
	assert.Equal(t, 2, ev.Ecommerce.Items[0].Quantity)
}

func TestRemoveFromCart_UnrelatedFormIgnored(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/"})

	s.Handle(Interaction{
		Type:     TypeSubmit,
		Action:   "/newsletter/subscribe",
		Fragment: `<form data-product-number="SW2000"></form>`,
	})

	assert.Zero(t, s.DataLayer().Len())
}

func TestWishlist_EmitsImmediately(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/"})

	s.Handle(Interaction{Type: TypeClick, Fragment: `<div class="product-box" data-product-info='{"item_id":"SW5","item_name":"Wished","price":10}'>
		<button class="product-wishlist-action" data-wsc-target></button>
	</div>`})

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "add_to_wishlist", ev.Event)
	assert.Equal(t, 1, ev.Ecommerce.Items[0].Quantity)
	assert.Equal(t, 10.0, *ev.Ecommerce.Value)
}

func TestCurrencyInheritance_FromEarlierSinkEntry(t *testing.T) {
	s := NewSession("s1", Options{})
	s.AppendPageEvent(map[string]any{
		"event":     "view_item",
		"ecommerce": map[string]any{"currency": "CHF", "items": []any{}},
	})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/"})

	s.Handle(Interaction{Type: TypeClick, Fragment: `<div class="product-box" data-product-info='{"item_id":"SW6","item_name":"NoCurrency"}'>
		<button class="btn-buy" data-wsc-target>Add</button>
	</div>`})
	s.Handle(cartRequest("lineItems[x][quantity]=1"))

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "CHF", ev.Ecommerce.Currency)
}
