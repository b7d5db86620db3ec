package track

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/csaeum/wsc-datalayer/internal/event"
	"github.com/csaeum/wsc-datalayer/internal/intercept"
	"github.com/csaeum/wsc-datalayer/internal/normalize"
)

const (
	buyTrigger      = ".btn-buy, [data-add-to-cart], button[data-product-id]"
	wishlistTrigger = "[data-wishlist-add], [data-wishlist-add-id], [data-add-to-wishlist], .product-wishlist-action, .wishlist-add"
)

// cartClick records the clicked product context synchronously. The
// add_to_cart emission is deferred to the cart request's completion
// observer, since success is not known at click time. A later click
// overwrites the context; correlation is by most recent click, not request
// identity (the endpoint exposes no request id).
func (s *Session) cartClick(target *goquery.Selection) {
	trigger := target.Closest(buyTrigger)
	if trigger.Length() == 0 {
		return
	}

	item := s.extractor.FromElement(trigger)
	if !item.Identified() {
		if s.opts.Debug {
			log.Debug().Str("session_id", s.id).Msg("Add-to-cart click without resolvable product")
		}
		return
	}

	s.store.RecordLastClicked(item)
}

// onCartRequestComplete fires when an observed add-line-item request
// finished with a 2xx status.
func (s *Session) onCartRequestComplete(req intercept.CompletedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := intercept.ExtractCartFields(req)

	item := s.store.Resolve(event.Item{ItemID: fields.ItemID, Quantity: fields.Quantity})
	item.Quantity = fields.Quantity
	if !item.Identified() {
		if s.opts.Debug {
			log.Debug().Str("url", req.URL).Msg("Cart request completed without resolvable product")
		}
		return
	}

	s.pushItemEvent("add_to_cart", item)
}

// wishlistClick emits add_to_wishlist immediately; there is no server
// correlation for wishlist mutations.
func (s *Session) wishlistClick(target *goquery.Selection) {
	trigger := target.Closest(wishlistTrigger)
	if trigger.Length() == 0 {
		return
	}

	item := s.extractor.FromElement(trigger)
	if !item.Identified() {
		return
	}
	item.Quantity = 1

	s.pushItemEvent("add_to_wishlist", item)
}

// handleRemoveSubmit emits remove_from_cart for a matching form submit.
// Remove is synchronous from the UI's perspective, so no network
// correlation is involved; quantity comes from the form's own fields.
func (s *Session) handleRemoveSubmit(it Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.matchesRemoveAction(it.Action) {
		return
	}

	form := s.parseTarget(it.Fragment)
	if form == nil {
		return
	}

	item := s.extractor.FromElement(form)
	if !item.Identified() {
		return
	}
	item.Quantity = intercept.ExtractFormQuantity(it.Fields)

	s.pushItemEvent("remove_from_cart", item)
}

func (s *Session) matchesRemoveAction(action string) bool {
	for _, pattern := range s.opts.RemoveActions {
		if strings.Contains(action, pattern) {
			return true
		}
	}
	return false
}

// pushItemEvent flushes a single-item monetary event, resolving currency
// from the item or the sink history and computing value at the point of
// emission.
func (s *Session) pushItemEvent(name string, item event.Item) {
	currency := item.Currency
	if currency == "" {
		currency = s.pusher.ResolveCurrency()
	}
	value := normalize.Value(item.Price, item.Quantity)

	s.pusher.Push(&event.Event{
		Event: name,
		Ecommerce: &event.Ecommerce{
			Currency: currency,
			Value:    event.Float(value),
			Items:    []event.Item{item},
		},
	})
}
