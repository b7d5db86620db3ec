package track

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/csaeum/wsc-datalayer/internal/event"
)

const (
	listingLink     = ".cms-element-product-slider a, .cms-element-product-listing a"
	listingBox      = ".product-box, .cms-product-box, .search-suggest-product"
	sliderBlock     = ".cms-element-product-slider, .cms-element-product-listing"
	promoLink       = ".cms-element-image-slider a, .cms-element-image a, .cms-element-text a"
	promoSlider     = ".cms-element-image-slider"
	blockTitle      = ".cms-element-title, .cms-block-title, .element-title"
	defaultListName = "home_product_slider"
)

// listingClick emits select_item for product clicks inside slider and
// listing blocks, tagged with the block's visible title as list name.
func (s *Session) listingClick(target *goquery.Selection) {
	link := target.Closest(listingLink)
	if link.Length() == 0 {
		return
	}
	box := link.Closest(listingBox)
	if box.Length() == 0 {
		return
	}

	item := s.extractor.FromListElement(box)
	if !item.Identified() {
		return
	}
	item.Quantity = 1

	listName := s.resolveBlockTitle(box, sliderBlock)
	if listName == "" {
		listName = defaultListName
	}
	item.ItemListID = listName
	item.ItemListName = listName

	s.pusher.Push(&event.Event{
		Event: "select_item",
		Ecommerce: &event.Ecommerce{
			ItemListID:   listName,
			ItemListName: listName,
			Items:        []event.Item{item},
		},
	})
}

// promotionClick emits select_promotion for clicks on promotional banner,
// image and text links. The promotion name comes from the link's title
// attribute, an inner image's alt text, or the link's own trimmed text, in
// that order.
func (s *Session) promotionClick(target *goquery.Selection) {
	link := target.Closest(promoLink)
	if link.Length() == 0 {
		return
	}

	name := s.resolvePromoName(link)
	if name == "" {
		return
	}

	href, _ := link.Attr("href")

	s.pusher.Push(&event.Event{
		Event:         "select_promotion",
		PromotionName: name,
		PromotionID:   href,
		CreativeName:  s.resolveBlockTitle(target, promoSlider),
	})
}

func (s *Session) resolvePromoName(link *goquery.Selection) string {
	if title, ok := link.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	if img := link.Find("img").First(); img.Length() > 0 {
		if alt, ok := img.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			return strings.TrimSpace(alt)
		}
	}
	return strings.TrimSpace(link.Text())
}

// resolveBlockTitle reads the visible title of the nearest enclosing block
// matching the given selector.
func (s *Session) resolveBlockTitle(sel *goquery.Selection, block string) string {
	container := sel.Closest(block)
	if container.Length() == 0 {
		return ""
	}
	if title := container.Find(blockTitle).First(); title.Length() > 0 {
		return strings.TrimSpace(title.Text())
	}
	return ""
}
