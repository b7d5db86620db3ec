// Package track implements the per-feature interaction listeners and the
// session composition root that owns all page-scoped tracking state.
package track

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/csaeum/wsc-datalayer/internal/event"
	"github.com/csaeum/wsc-datalayer/internal/intercept"
	"github.com/csaeum/wsc-datalayer/internal/normalize"
	"github.com/csaeum/wsc-datalayer/internal/product"
	"github.com/csaeum/wsc-datalayer/internal/sink"
)

// Interaction types accepted by Session.Handle.
const (
	TypePageView = "page_view"
	TypeClick    = "click"
	TypeSubmit   = "submit"
	TypeInput    = "input"
	TypeChange   = "change"
	TypeRequest  = "request"
)

// The attribute marking the interaction target inside a serialized
// fragment. Without it the fragment's root element is the target.
const targetAttr = "data-wsc-target"

// Interaction is one recorded storefront interaction. Fragment holds the
// serialized DOM subtree around the target; request interactions carry the
// completed request instead.
type Interaction struct {
	Type        string            `json:"type"`
	Fragment    string            `json:"fragment,omitempty"`
	URL         string            `json:"url,omitempty"`
	Action      string            `json:"action,omitempty"`
	Fields      []intercept.Field `json:"fields,omitempty"`
	Name        string            `json:"name,omitempty"`
	Value       string            `json:"value,omitempty"`
	Method      string            `json:"method,omitempty"`
	Status      int               `json:"status,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Body        string            `json:"body,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`
}

// Options configures a tracking session.
type Options struct {
	Debug            bool
	DebounceWindow   time.Duration
	FallbackCurrency string
	CartEndpoint     string
	RemoveActions    []string
}

func (o Options) withDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 250 * time.Millisecond
	}
	if o.CartEndpoint == "" {
		o.CartEndpoint = "checkout/line-item/add"
	}
	if len(o.RemoveActions) == 0 {
		o.RemoveActions = []string{"checkout/line-item/delete", "line-item/remove"}
	}
	return o
}

// Session owns the tracking state of one storefront session: the current
// page document, the product context store, the sinks and the request
// observer registry. All interaction handling is serialized through one
// mutex, mirroring the single-threaded event loop the listeners originally
// ran on.
type Session struct {
	id   string
	opts Options

	mu        sync.Mutex
	page      *goquery.Document
	pageURL   *url.URL
	extractor *product.Extractor
	store     *product.Store

	dataLayer *sink.Queue
	mtmLayer  *sink.Queue
	pusher    *normalize.Pusher
	registry  *intercept.Registry

	searchValue string
	lastTerm    string
	searchTimer *time.Timer
}

// NewSession builds a session with fresh queues and an installed cart
// request observer.
func NewSession(id string, opts Options) *Session {
	opts = opts.withDefaults()

	s := &Session{
		id:        id,
		opts:      opts,
		store:     product.NewStore(),
		extractor: product.NewExtractor(nil, opts.Debug),
		dataLayer: sink.New("dataLayer"),
		mtmLayer:  sink.New("mtmLayer"),
		registry:  intercept.NewRegistry(),
	}
	s.pusher = normalize.NewPusher(sink.NewSinks(s.dataLayer, s.mtmLayer), opts.FallbackCurrency)

	s.registry.Observe(intercept.Observer{
		MatchURL: func(_, url string) bool {
			return strings.Contains(url, opts.CartEndpoint)
		},
		Match: func(r intercept.CompletedRequest) bool {
			return strings.Contains(r.URL, opts.CartEndpoint) && r.Succeeded()
		},
		OnComplete: s.onCartRequestComplete,
	})

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// DataLayer returns the primary sink queue.
func (s *Session) DataLayer() *sink.Queue {
	return s.dataLayer
}

// MtmLayer returns the secondary mirror queue.
func (s *Session) MtmLayer() *sink.Queue {
	return s.mtmLayer
}

// OnEmit registers the relay callback for emitted canonical events.
func (s *Session) OnEmit(fn func(*event.Event)) {
	s.pusher.OnEmit(fn)
}

// InstallTransport wraps the client's transport with the session's request
// observer. Idempotent; the underlying transport runs exactly once per
// request no matter how often this is called.
func (s *Session) InstallTransport(c *http.Client) {
	s.registry.InstallClient(c)
}

// InstallEventClient hooks the session's observer into the event-style
// request mechanism. Idempotent per session.
func (s *Session) InstallEventClient(e *intercept.EventClient) {
	s.registry.Install(e)
}

// Handle dispatches one interaction to the feature listeners. Unknown types
// are ignored.
func (s *Session) Handle(it Interaction) {
	switch it.Type {
	case TypePageView:
		s.setPage(it.Fragment, it.URL)
	case TypeClick:
		s.handleClick(it)
	case TypeSubmit:
		s.handleRemoveSubmit(it)
	case TypeInput:
		s.handleSearchInput(it.Value)
	case TypeChange:
		s.handleMethodChange(it)
	case TypeRequest:
		s.registry.Dispatch(intercept.CompletedRequest{
			Method:      it.Method,
			URL:         it.URL,
			Status:      it.Status,
			ContentType: it.ContentType,
			Body:        []byte(it.Body),
		})
	default:
		if s.opts.Debug {
			log.Debug().Str("type", it.Type).Msg("Ignoring unknown interaction type")
		}
	}
}

// AppendPageEvent appends a server-rendered page event (view_item,
// begin_checkout, purchase, ...) verbatim to the sinks. Events carrying an
// ecommerce block get the usual reset marker in front.
func (s *Session) AppendPageEvent(raw map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := raw["ecommerce"]; ok {
		s.dataLayer.Push(event.Reset(), raw)
		s.mtmLayer.Push(event.Reset(), raw)
		return
	}
	s.dataLayer.Push(raw)
	s.mtmLayer.Push(raw)
}

// setPage installs a new page document and resets the page-scoped store.
// The queues persist for the whole session so later pages keep inheriting
// currency and the checkout base payload.
func (s *Session) setPage(html, pageURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("Failed to parse page document")
		doc = nil
	}
	s.page = doc
	s.pageURL = nil
	if u, err := url.Parse(pageURL); err == nil {
		s.pageURL = u
	}
	s.extractor = product.NewExtractor(doc, s.opts.Debug)
	s.store.Reset()
	s.store.Init(doc, s.extractor)
	s.lastTerm = ""
	s.searchValue = ""
}

// handleClick runs every click listener against the target, the same way
// the original document-level listeners all saw each click.
func (s *Session) handleClick(it Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.parseTarget(it.Fragment)
	if target == nil {
		return
	}

	s.cartClick(target)
	s.wishlistClick(target)
	s.searchSelectClick(target)
	s.listingClick(target)
	s.promotionClick(target)
}

// parseTarget parses a serialized fragment and returns the interaction
// target inside it.
func (s *Session) parseTarget(fragment string) *goquery.Selection {
	if strings.TrimSpace(fragment) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		if s.opts.Debug {
			log.Debug().Err(err).Msg("Failed to parse interaction fragment")
		}
		return nil
	}
	if target := doc.Find("[" + targetAttr + "]").First(); target.Length() > 0 {
		return target
	}
	if root := doc.Find("body").Children().First(); root.Length() > 0 {
		return root
	}
	return nil
}
