package track

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/csaeum/wsc-datalayer/internal/event"
)

const (
	methodContainer = ".checkout-shipping-method, .shipping-method, .checkout-payment-method, .payment-method"
	methodName      = ".shipping-method-name, .payment-method-name, .method-name"
)

// handleMethodChange emits add_shipping_info / add_payment_info for
// shipping and payment radio changes on the checkout page. The ecommerce
// and user payload of the most recent begin_checkout event is reused as the
// base; without one there is nothing to extend and the change is ignored.
func (s *Session) handleMethodChange(it Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	switch it.Name {
	case "shippingMethodId":
		name = "add_shipping_info"
	case "paymentMethodId":
		name = "add_payment_info"
	default:
		return
	}

	base, user, ok := s.checkoutBase()
	if !ok {
		return
	}

	label := s.resolveMethodLabel(it)

	ev := &event.Event{
		Event:     name,
		Ecommerce: base,
		User:      user,
	}
	if name == "add_shipping_info" {
		ev.ShippingTier = label
	} else {
		ev.PaymentType = label
	}

	s.pusher.Push(ev)
}

// checkoutBase scans the primary sink backward for the most recent
// begin_checkout event carrying items and returns a copy of its ecommerce
// block and user object.
func (s *Session) checkoutBase() (*event.Ecommerce, map[string]any, bool) {
	entry, ok := s.pusher.Primary().LastNamed("begin_checkout")
	if !ok {
		return nil, nil, false
	}

	switch e := entry.(type) {
	case *event.Event:
		if e.Ecommerce == nil || len(e.Ecommerce.Items) == 0 {
			return nil, nil, false
		}
		ec := *e.Ecommerce
		ec.Items = append([]event.Item(nil), e.Ecommerce.Items...)
		return &ec, e.User, true
	case map[string]any:
		ec := ecommerceFromMap(e["ecommerce"])
		if ec == nil || len(ec.Items) == 0 {
			return nil, nil, false
		}
		user, _ := e["user"].(map[string]any)
		return ec, user, true
	}
	return nil, nil, false
}

// resolveMethodLabel resolves the human-readable method name: an associated
// label element first, then a method-name element in the surrounding
// container, then the raw input value.
func (s *Session) resolveMethodLabel(it Interaction) string {
	input := s.parseTarget(it.Fragment)
	if input != nil {
		if id, ok := input.Attr("id"); ok && id != "" {
			if label := s.findLabel(input, id); label != "" {
				return label
			}
		}
		container := input.Closest(methodContainer)
		if container.Length() > 0 {
			if name := container.Find(methodName).First(); name.Length() > 0 {
				if text := trimText(name); text != "" {
					return text
				}
			}
		}
	}
	return it.Value
}

// findLabel looks for label[for=id] in the fragment first, then in the page
// document.
func (s *Session) findLabel(input *goquery.Selection, id string) string {
	selector := `label[for="` + id + `"]`
	if label := closestRoot(input).Find(selector).First(); label.Length() > 0 {
		if text := trimText(label); text != "" {
			return text
		}
	}
	if s.page != nil {
		if label := s.page.Find(selector).First(); label.Length() > 0 {
			return trimText(label)
		}
	}
	return ""
}

func closestRoot(sel *goquery.Selection) *goquery.Selection {
	return sel.Closest("body")
}

func trimText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// ecommerceFromMap converts a loosely typed page-event ecommerce block into
// the canonical shape.
func ecommerceFromMap(raw any) *event.Ecommerce {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	ec := &event.Ecommerce{
		Currency:     getString(m, "currency"),
		ItemListID:   getString(m, "item_list_id"),
		ItemListName: getString(m, "item_list_name"),
	}
	if v, ok := m["value"].(float64); ok {
		ec.Value = event.Float(v)
	}

	items, _ := m["items"].([]any)
	for _, entry := range items {
		im, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := event.Item{
			ItemID:        getString(im, "item_id"),
			ItemName:      getString(im, "item_name"),
			Affiliation:   getString(im, "affiliation"),
			Currency:      getString(im, "currency"),
			Price:         getFloat(im, "price"),
			Discount:      getFloat(im, "discount"),
			Quantity:      int(getFloat(im, "quantity")),
			Index:         int(getFloat(im, "index")),
			ItemBrand:     getString(im, "item_brand"),
			ItemVariant:   getString(im, "item_variant"),
			ItemListID:    getString(im, "item_list_id"),
			ItemListName:  getString(im, "item_list_name"),
			ItemCategory:  getString(im, "item_category"),
			ItemCategory2: getString(im, "item_category2"),
			ItemCategory3: getString(im, "item_category3"),
			ItemCategory4: getString(im, "item_category4"),
			ItemCategory5: getString(im, "item_category5"),
		}
		ec.Items = append(ec.Items, item)
	}

	return ec
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
