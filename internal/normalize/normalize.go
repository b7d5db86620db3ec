// Package normalize assembles canonical events and flushes them to the
// sinks.
package normalize

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/csaeum/wsc-datalayer/internal/event"
	"github.com/csaeum/wsc-datalayer/internal/sink"
)

// DefaultCurrency is used when no sink entry recorded a currency yet.
const DefaultCurrency = "EUR"

// Pusher flushes canonical events to every live sink, preceded by the reset
// marker. The primary queue additionally serves the backward scans
// (currency inheritance, checkout base lookup).
type Pusher struct {
	sinks            *sink.Sinks
	primary          *sink.Queue
	fallbackCurrency string
	onEmit           func(*event.Event)
}

// NewPusher builds a pusher over the given queues. The first queue is the
// primary sink. fallbackCurrency defaults to DefaultCurrency when empty.
func NewPusher(sinks *sink.Sinks, fallbackCurrency string) *Pusher {
	if fallbackCurrency == "" {
		fallbackCurrency = DefaultCurrency
	}
	var primary *sink.Queue
	if qs := sinks.Queues(); len(qs) > 0 {
		primary = qs[0]
	}
	return &Pusher{sinks: sinks, primary: primary, fallbackCurrency: fallbackCurrency}
}

// OnEmit registers a callback invoked after each successful flush, used by
// the composition root to hand events to the server-side relay. The
// callback never changes what was pushed.
func (p *Pusher) OnEmit(fn func(*event.Event)) {
	p.onEmit = fn
}

// Push flushes the event. Items lacking both id and name are dropped; an
// event whose ecommerce items all fail that check is suppressed entirely,
// with no sink mutation. The reset marker and the event are appended in one
// atomic push per queue.
func (p *Pusher) Push(ev *event.Event) bool {
	if ev.Ecommerce != nil && len(ev.Ecommerce.Items) > 0 {
		kept := ev.Ecommerce.Items[:0:0]
		for _, item := range ev.Ecommerce.Items {
			if item.Identified() {
				kept = append(kept, item)
			}
		}
		if len(kept) == 0 {
			log.Debug().Str("event", ev.Event).Msg("Suppressed event without identified items")
			return false
		}
		ev.Ecommerce.Items = kept
	}

	p.sinks.Push(event.Reset(), ev)

	if p.onEmit != nil {
		p.onEmit(ev)
	}
	return true
}

// ResolveCurrency returns the most recent currency recorded on the primary
// sink, so an add_to_cart fired after a view_item inherits the currency
// without re-deriving it. Falls back to the configured default.
func (p *Pusher) ResolveCurrency() string {
	if c := p.primary.LastCurrency(); c != "" {
		return c
	}
	return p.fallbackCurrency
}

// Primary returns the primary sink queue.
func (p *Pusher) Primary() *sink.Queue {
	return p.primary
}

// Value computes the monetary value of an event, price * quantity rounded
// to two decimals at the point of computation. Unknown price yields 0.
func Value(price float64, quantity int) float64 {
	if price == 0 {
		return 0
	}
	return math.Round(price*float64(quantity)*100) / 100
}
