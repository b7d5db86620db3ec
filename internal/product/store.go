package product

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/csaeum/wsc-datalayer/internal/event"
)

// Store is the page-scoped product context cache. It is built once per page
// view from the markup present at init time and updated on every
// add-to-cart click. Elements inserted into the DOM later are not collected
// retroactively; only direct interactions resolve them live.
type Store struct {
	byID        map[string]string
	byNumber    map[string]string
	last        *event.Item
	initialized bool
}

// NewStore returns an empty, uninitialized store.
func NewStore() *Store {
	return &Store{
		byID:     make(map[string]string),
		byNumber: make(map[string]string),
	}
}

// Init collects product identity from the page document. Idempotent: a
// second call within the same page view is a no-op.
func (s *Store) Init(page *goquery.Document, ex *Extractor) {
	if s.initialized {
		return
	}
	s.initialized = true
	if page == nil {
		return
	}

	page.Find("[data-product-id], [data-product-number]").Each(func(_ int, sel *goquery.Selection) {
		name := ex.ResolveName(sel)
		if id, ok := sel.Attr("data-product-id"); ok && id != "" {
			s.byID[id] = name
		}
		if number, ok := sel.Attr("data-product-number"); ok && number != "" {
			s.byNumber[number] = name
		}
	})

	log.Debug().
		Int("by_id", len(s.byID)).
		Int("by_number", len(s.byNumber)).
		Msg("Product context store collected")
}

// Reset clears the store for a new page view.
func (s *Store) Reset() {
	s.byID = make(map[string]string)
	s.byNumber = make(map[string]string)
	s.last = nil
	s.initialized = false
}

// RecordLastClicked stores the context of the most recent add-to-cart
// trigger. Runs synchronously in the click handler, before the cart
// request's completion callback can fire. A later click overwrites the
// context; an abandoned request simply never reads it.
func (s *Store) RecordLastClicked(item event.Item) {
	clone := item
	s.last = &clone
	if item.ItemID != "" {
		if _, ok := s.byID[item.ItemID]; !ok || item.ItemName != "" {
			s.byID[item.ItemID] = item.ItemName
		}
	}
}

// Last returns the most recently clicked context, or nil.
func (s *Store) Last() *event.Item {
	return s.last
}

// Resolve fills the missing fields of a partial context from the cache.
// Names come from byID, byNumber, then the last clicked context; a missing
// id comes from the last clicked context only. When the context matches the
// last clicked product the rest of its payload (price, brand, categories)
// is carried over as well. Resolve never invents data absent from all
// sources.
func (s *Store) Resolve(item event.Item) event.Item {
	if item.ItemName == "" && item.ItemID != "" {
		if name, ok := s.byID[item.ItemID]; ok && name != "" {
			item.ItemName = name
		} else if name, ok := s.byNumber[item.ItemID]; ok && name != "" {
			item.ItemName = name
		}
	}

	if s.last == nil {
		return item
	}

	if item.ItemID == "" || item.ItemID == s.last.ItemID {
		merged := *s.last
		if item.ItemID != "" {
			merged.ItemID = item.ItemID
		}
		if item.ItemName != "" {
			merged.ItemName = item.ItemName
		}
		if item.Quantity != 0 {
			merged.Quantity = item.Quantity
		}
		return merged
	}

	if item.ItemName == "" {
		item.ItemName = s.last.ItemName
	}
	return item
}
