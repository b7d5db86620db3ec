// Package relay forwards emitted events to the server-side analytics
// backend. It only constructs and hands off the payload; delivery failures
// are logged and never surface back to the interaction layer.
package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	trackPath      = "/api/s/s2s/track"
	requestTimeout = 500 * time.Millisecond
)

// Identity describes the actor behind an event. SessionID is mandatory and
// becomes the anonymous id; customer data is optional.
type Identity struct {
	SessionID string
	UserID    string
	Traits    *Traits
}

// Traits are the customer attributes attached to identified events.
type Traits struct {
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	CustomerNumber string `json:"customerNumber"`
}

// Consent carries the consent flags delivered with the interaction batch.
// Parsing the consent cookie is the storefront's job, not ours.
type Consent struct {
	Analytics bool `json:"analytics"`
	Marketing bool `json:"marketing"`
}

// PageContext describes the page the event originated on.
type PageContext struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer"`
}

// Context is the request context block of a relayed payload.
type Context struct {
	IP        string      `json:"ip"`
	UserAgent string      `json:"userAgent"`
	Page      PageContext `json:"page"`
	Browser   string      `json:"browser,omitempty"`
	OS        string      `json:"os,omitempty"`
	Device    string      `json:"device,omitempty"`
	Country   string      `json:"country,omitempty"`
	City      string      `json:"city,omitempty"`
}

// Payload is the event envelope sent to the backend.
type Payload struct {
	MessageID   string         `json:"messageId"`
	Event       string         `json:"event"`
	Properties  map[string]any `json:"properties"`
	Context     Context        `json:"context"`
	AnonymousID string         `json:"anonymousId"`
	UserID      string         `json:"userId,omitempty"`
	Traits      *Traits        `json:"traits,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

// BuildPayload assembles the relay envelope. The anonymous id is always set
// from the session id; user id and traits only when a customer is known.
func BuildPayload(eventName string, properties map[string]any, id Identity, reqCtx Context) Payload {
	p := Payload{
		MessageID:   uuid.New().String(),
		Event:       eventName,
		Properties:  properties,
		Context:     reqCtx,
		AnonymousID: id.SessionID,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if id.UserID != "" {
		p.UserID = id.UserID
		p.Traits = id.Traits
	}
	return p
}

// Forwarder hands a payload to a delivery backend.
type Forwarder interface {
	Forward(ctx context.Context, p Payload) error
}

// HTTPForwarder posts payloads to the track endpoint with a write key.
type HTTPForwarder struct {
	endpoint string
	writeKey string
	client   *http.Client
	debug    bool
}

// NewHTTPForwarder builds a forwarder for the given base URL. verifySSL
// false disables certificate checks for self-signed dev setups.
func NewHTTPForwarder(baseURL, writeKey string, verifySSL, debug bool) *HTTPForwarder {
	transport := http.DefaultTransport
	if !verifySSL {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		log.Warn().Msg("Relay SSL verification disabled")
	}

	return &HTTPForwarder{
		endpoint: trimTrailingSlash(baseURL) + trackPath,
		writeKey: writeKey,
		client:   &http.Client{Transport: transport, Timeout: requestTimeout},
		debug:    debug,
	}
}

// Forward posts the payload. Non-2xx statuses and transport errors are
// returned for logging only; callers drop the event either way.
func (f *HTTPForwarder) Forward(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Write-Key", f.writeKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if f.debug {
		log.Debug().
			Str("event", p.Event).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("Relayed event")
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Multi fans a payload out to several forwarders. Individual failures are
// logged and do not stop the others.
type Multi []Forwarder

// Forward delivers to every backend.
func (m Multi) Forward(ctx context.Context, p Payload) error {
	for _, f := range m {
		if err := f.Forward(ctx, p); err != nil {
			log.Error().Err(err).Str("event", p.Event).Msg("Failed to relay event")
		}
	}
	return nil
}
