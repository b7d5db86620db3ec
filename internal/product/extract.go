// Package product resolves product identity and name from storefront DOM
// structure.
package product

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/csaeum/wsc-datalayer/internal/event"
)

// Selectors consumed from the storefront markup. The data-product-info
// attribute is the preferred source; the rest are fallbacks for markup the
// backend renderer does not annotate.
const (
	payloadAttr      = "data-product-info"
	payloadContainer = "[data-product-info], .product-box, .product-detail, .buy-widget"
	payloadGlobal    = ".wsc-product-data-container[data-product-info]"

	identityContainer = "[data-product-id], [data-product-number], .product-box, .product-detail, .search-suggest-product, .line-item, .cart-item"
	nameSelector      = ".product-name, .product-box-title, .product-detail-name, .search-suggest-product-name"
	numberLabel       = ".product-detail-ordernumber, .product-number, [itemprop=sku]"
	productLink       = "a[href*='/detail/'], a.product-name, a.product-image-link"
)

var skuPattern = regexp.MustCompile(`[A-Z0-9][A-Z0-9.-]*`)

// Extractor resolves ProductContexts against a parsed page document.
// Interaction fragments are resolved first; global fallbacks (the product
// detail data container) run against the page document.
type Extractor struct {
	page  *goquery.Document
	debug bool
}

// NewExtractor returns an extractor bound to the given page document. A nil
// document disables the global fallbacks but keeps fragment resolution
// working.
func NewExtractor(page *goquery.Document, debug bool) *Extractor {
	return &Extractor{page: page, debug: debug}
}

// FromElement resolves a ProductContext for the given interaction target.
// The resolvers run as an ordered fallback chain; a context with empty id
// and name is returned when nothing matches, never an error.
func (e *Extractor) FromElement(sel *goquery.Selection) event.Item {
	if item, ok := e.fromPayload(sel); ok {
		return item
	}

	var item event.Item
	for _, resolve := range []func(*goquery.Selection) (string, bool){
		e.fromDataAttributes,
		e.fromNumberLabel,
		e.fromProductHref,
	} {
		if id, ok := resolve(sel); ok {
			item.ItemID = id
			break
		}
	}

	// Name resolution is independent of identity resolution.
	item.ItemName = e.ResolveName(sel)
	return item
}

// fromPayload reads the backend-provided JSON payload attribute near the
// target. Preferred over any scraped identity when present and non-empty.
func (e *Extractor) fromPayload(sel *goquery.Selection) (event.Item, bool) {
	container := sel.Closest(payloadContainer)

	var dataEl *goquery.Selection
	if container.Length() > 0 {
		if found := container.Find("[" + payloadAttr + "]").First(); found.Length() > 0 {
			dataEl = found
		} else if _, ok := container.Attr(payloadAttr); ok {
			dataEl = container
		}
	}
	if dataEl == nil && e.page != nil {
		if found := e.page.Find(payloadGlobal).First(); found.Length() > 0 {
			dataEl = found
		}
	}
	if dataEl == nil && e.page != nil {
		if found := e.page.Find("[" + payloadAttr + "]").First(); found.Length() > 0 {
			dataEl = found
		}
	}
	if dataEl == nil {
		return event.Item{}, false
	}

	raw, _ := dataEl.Attr(payloadAttr)
	if strings.TrimSpace(raw) == "" {
		return event.Item{}, false
	}

	var item event.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		if e.debug {
			log.Debug().Err(err).Str("payload", raw).Msg("Failed to parse product payload attribute")
		}
		return event.Item{}, false
	}
	if !item.Identified() {
		return event.Item{}, false
	}
	return item, true
}

// fromDataAttributes reads identity from the nearest product-bearing
// container, preferring data-product-id over data-product-number.
func (e *Extractor) fromDataAttributes(sel *goquery.Selection) (string, bool) {
	container := sel.Closest(identityContainer)
	if container.Length() == 0 {
		return "", false
	}
	if id, ok := container.Attr("data-product-id"); ok && id != "" {
		return id, true
	}
	if number, ok := container.Attr("data-product-number"); ok && number != "" {
		return number, true
	}
	return "", false
}

// fromNumberLabel scrapes a SKU-shaped token out of a labelled product
// number text node ("Product number: SW1000").
func (e *Extractor) fromNumberLabel(sel *goquery.Selection) (string, bool) {
	scope := sel.Closest(identityContainer)
	if scope.Length() == 0 {
		scope = sel
	}
	label := scope.Find(numberLabel).First()
	if label.Length() == 0 {
		return "", false
	}
	text := label.Text()
	if idx := strings.Index(text, ":"); idx >= 0 {
		text = text[idx+1:]
	}
	if sku := skuPattern.FindString(strings.TrimSpace(text)); sku != "" {
		return sku, true
	}
	return "", false
}

// fromProductHref takes the last path segment of a product link when it is
// SKU-shaped.
func (e *Extractor) fromProductHref(sel *goquery.Selection) (string, bool) {
	link := sel.Closest("a")
	if link.Length() == 0 {
		link = sel.Find(productLink).First()
	}
	if link.Length() == 0 {
		return "", false
	}
	href, _ := link.Attr("href")
	if href == "" {
		return "", false
	}
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	segment := href[strings.LastIndex(href, "/")+1:]
	if segment != "" && skuPattern.FindString(segment) == segment {
		return segment, true
	}
	return "", false
}

// FromListElement resolves identity and name without consulting the page's
// product payload attribute. Listing and suggestion entries use this; the
// payload attribute on a detail page would attribute the wrong product to
// them.
func (e *Extractor) FromListElement(sel *goquery.Selection) event.Item {
	var item event.Item
	if id, ok := e.fromDataAttributes(sel); ok {
		item.ItemID = id
	}
	item.ItemName = e.ResolveName(sel)
	return item
}

// ResolveName resolves the display name from the nearest name-bearing
// descendant, falling back to the target's own trimmed text.
func (e *Extractor) ResolveName(sel *goquery.Selection) string {
	scope := sel.Closest(identityContainer)
	if scope.Length() == 0 {
		scope = sel
	}
	if nameEl := scope.Find(nameSelector).First(); nameEl.Length() > 0 {
		return strings.TrimSpace(nameEl.Text())
	}
	return strings.TrimSpace(sel.Text())
}
