// Package intercept observes completed storefront requests without altering
// transport semantics. Both outbound mechanisms are covered: the
// promise-style path is an http.RoundTripper wrapper, the event-style path
// is a completion-listener client. Registered observers see each logical
// request exactly once.
package intercept

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// CompletedRequest describes one finished request as seen by an observer.
type CompletedRequest struct {
	Method      string
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

// Succeeded reports a 2xx status.
func (r CompletedRequest) Succeeded() bool {
	return r.Status >= 200 && r.Status < 300
}

// Observer is notified of completed requests matching its predicate.
// MatchURL is the pre-flight gate for body capture: it sees only method and
// URL, before the request runs. Bodies are buffered solely for requests some
// observer's MatchURL claims; everything else streams through untouched.
type Observer struct {
	MatchURL   func(method, url string) bool
	Match      func(CompletedRequest) bool
	OnComplete func(CompletedRequest)
}

// Registry holds the installed observers and guards against double
// installation on the transports it wraps.
type Registry struct {
	mu        sync.Mutex
	observers []Observer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Observe registers an observer.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// capturesBody reports whether any observer wants the body of a request to
// the given URL.
func (r *Registry) capturesBody(method, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.observers {
		if o.MatchURL != nil && o.MatchURL(method, url) {
			return true
		}
	}
	return false
}

// Dispatch delivers a completed request to every matching observer. An
// observer panic is contained here; a broken listener must never break the
// host request path.
func (r *Registry) Dispatch(req CompletedRequest) {
	r.mu.Lock()
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, o := range observers {
		if o.Match != nil && !o.Match(req) {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Str("url", req.URL).Msg("Request observer panicked")
				}
			}()
			o.OnComplete(req)
		}()
	}
}

// WrapTransport wraps an http.RoundTripper so completed requests are
// dispatched to the registry. Wrapping is idempotent: a transport already
// wrapped for this registry is returned unchanged, so re-initialization
// never double-observes a request.
func (r *Registry) WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if t, ok := base.(*transport); ok && t.registry == r {
		return base
	}
	return &transport{registry: r, base: base}
}

// InstallClient replaces the client's transport with the wrapped one.
func (r *Registry) InstallClient(c *http.Client) {
	c.Transport = r.WrapTransport(c.Transport)
}

type transport struct {
	registry *Registry
	base     http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Buffering is gated on the pre-flight predicates so large or streaming
	// uploads on unobserved requests pass through unread.
	var body []byte
	if req.Body != nil && t.registry.capturesBody(req.Method, req.URL.String()) {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	t.registry.Dispatch(CompletedRequest{
		Method:      req.Method,
		URL:         req.URL.String(),
		Status:      resp.StatusCode,
		ContentType: req.Header.Get("Content-Type"),
		Body:        body,
	})

	return resp, err
}

// EventClient is the event-style request mechanism: callers issue a request
// and completion listeners fire afterward, XHR fashion. Installed registries
// are consulted per request for body capture; plain OnLoad listeners declare
// blanket interest.
type EventClient struct {
	mu         sync.Mutex
	client     *http.Client
	listeners  []func(CompletedRequest)
	registries []*Registry
	installed  map[*Registry]bool
}

// NewEventClient wraps the given client; nil uses http.DefaultClient.
func NewEventClient(c *http.Client) *EventClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &EventClient{client: c, installed: make(map[*Registry]bool)}
}

// OnLoad registers a completion listener.
func (e *EventClient) OnLoad(fn func(CompletedRequest)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Install hooks the registry's dispatch into the completion path.
// Idempotent per registry.
func (r *Registry) Install(e *EventClient) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.installed[r] {
		return
	}
	e.installed[r] = true
	e.registries = append(e.registries, r)
}

// Send performs the request through the underlying client exactly once and
// notifies every listener of the completed request. The body is buffered
// only when a listener or a registry predicate wants it.
func (e *EventClient) Send(req *http.Request) (*http.Response, error) {
	e.mu.Lock()
	listeners := make([]func(CompletedRequest), len(e.listeners))
	copy(listeners, e.listeners)
	registries := make([]*Registry, len(e.registries))
	copy(registries, e.registries)
	e.mu.Unlock()

	capture := len(listeners) > 0
	if !capture {
		for _, r := range registries {
			if r.capturesBody(req.Method, req.URL.String()) {
				capture = true
				break
			}
		}
	}

	var body []byte
	if capture && req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return resp, err
	}

	completed := CompletedRequest{
		Method:      req.Method,
		URL:         req.URL.String(),
		Status:      resp.StatusCode,
		ContentType: req.Header.Get("Content-Type"),
		Body:        body,
	}

	for _, fn := range listeners {
		fn(completed)
	}
	for _, r := range registries {
		r.Dispatch(completed)
	}

	return resp, err
}
