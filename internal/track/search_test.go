package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overlayPage = `<html><body>
	<div class="search-suggest">
		<a class="search-suggest-product" href="/detail/P1" data-product-id="p-1">
			<div class="search-suggest-product-name">First Hit</div>
		</a>
		<a class="search-suggest-product" href="/detail/P2" data-product-id="p-2">
			<div class="search-suggest-product-name">Second Hit</div>
		</a>
	</div>
</body></html>`

func TestSearch_DebouncedEmissionKeepsFinalTerm(t *testing.T) {
	window := 20 * time.Millisecond
	s := NewSession("s1", Options{DebounceWindow: window})
	s.Handle(Interaction{Type: TypePageView, Fragment: overlayPage, URL: "https://shop.example/"})

	for _, term := range []string{"a", "ab", "abc", "abcd"} {
		s.Handle(Interaction{Type: TypeInput, Value: term})
	}

	require.Eventually(t, func() bool {
		return s.DataLayer().Len() == 2
	}, time.Second, 2*time.Millisecond)

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "search", ev.Event)
	assert.Equal(t, "abcd", ev.SearchTerm)
	require.NotNil(t, ev.Ecommerce)
	assert.Equal(t, "search_suggest", ev.Ecommerce.ItemListName)
	require.Len(t, ev.Ecommerce.Items, 2)
	assert.Equal(t, "p-1", ev.Ecommerce.Items[0].ItemID)
	assert.Equal(t, "First Hit", ev.Ecommerce.Items[0].ItemName)
	assert.Equal(t, 1, ev.Ecommerce.Items[0].Index)
	assert.Equal(t, 2, ev.Ecommerce.Items[1].Index)

	// The burst emits once; the quiet period adds nothing.
	time.Sleep(3 * window)
	assert.Equal(t, 2, s.DataLayer().Len())
}

func TestSearch_RepeatedTermSuppressed(t *testing.T) {
	window := 10 * time.Millisecond
	s := NewSession("s1", Options{DebounceWindow: window})
	s.Handle(Interaction{Type: TypePageView, Fragment: overlayPage, URL: "https://shop.example/"})

	s.Handle(Interaction{Type: TypeInput, Value: "abcd"})
	require.Eventually(t, func() bool {
		return s.DataLayer().Len() == 2
	}, time.Second, 2*time.Millisecond)

	s.Handle(Interaction{Type: TypeInput, Value: "abcd"})
	time.Sleep(3 * window)
	assert.Equal(t, 2, s.DataLayer().Len())

	s.Handle(Interaction{Type: TypeInput, Value: "abcde"})
	require.Eventually(t, func() bool {
		return s.DataLayer().Len() == 4
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, "abcde", lastEvent(t, s.DataLayer()).SearchTerm)
}

func TestSearch_ShortTermNeverEmits(t *testing.T) {
	window := 10 * time.Millisecond
	s := NewSession("s1", Options{DebounceWindow: window})
	s.Handle(Interaction{Type: TypePageView, Fragment: overlayPage, URL: "https://shop.example/"})

	s.Handle(Interaction{Type: TypeInput, Value: "a"})
	s.Handle(Interaction{Type: TypeInput, Value: " b "})

	time.Sleep(3 * window)
	assert.Zero(t, s.DataLayer().Len())
}

func TestSearchSelect_OverlayClick(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/search?search=widgets"})

	s.Handle(Interaction{Type: TypeClick, Fragment: `<div class="search-suggest">
		<a href="/detail/P1" data-product-id="p-1" data-wsc-target>
			<div class="search-suggest-product-name">First Hit</div>
		</a>
	</div>`})

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "select_item", ev.Event)
	assert.Equal(t, "widgets", ev.SearchTerm)
	assert.Equal(t, "search_suggest", ev.Ecommerce.ItemListName)
	require.Len(t, ev.Ecommerce.Items, 1)
	assert.Equal(t, "p-1", ev.Ecommerce.Items[0].ItemID)
}

func TestSearchSelect_ResultsPageClick(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/search?search=widgets"})

	s.Handle(Interaction{Type: TypeClick, Fragment: `<div class="product-listing">
		<div class="product-box" data-product-id="p-9">
			<a href="/detail/P9" data-wsc-target><div class="product-name">Niner</div></a>
		</div>
	</div>`})

	ev := lastEvent(t, s.DataLayer())
	assert.Equal(t, "select_item", ev.Event)
	assert.Equal(t, "view_search_results", ev.Ecommerce.ItemListName)
	assert.Equal(t, "Niner", ev.Ecommerce.Items[0].ItemName)
}

func TestSearchSelect_ProductClickOffSearchSurfacesIgnored(t *testing.T) {
	s := NewSession("s1", Options{})
	s.Handle(Interaction{Type: TypePageView, Fragment: "<html><body></body></html>", URL: "https://shop.example/"})

	// Not in the overlay and not on a search page.
	s.Handle(Interaction{Type: TypeClick, Fragment: `<div class="product-listing">
		<div class="product-box" data-product-id="p-9">
			<a href="/detail/P9" data-wsc-target><div class="product-name">Niner</div></a>
		</div>
	</div>`})

	assert.Zero(t, s.DataLayer().Len())
}
