package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/csaeum/wsc-datalayer/internal/event"
	"github.com/csaeum/wsc-datalayer/internal/relay"
	"github.com/csaeum/wsc-datalayer/internal/track"
)

// SessionRegistry owns the live tracking sessions and wires each emitted
// event into the relay. Sessions idle longer than the TTL are evicted; a
// returning visitor simply gets a fresh session with an empty store.
type SessionRegistry struct {
	mu        sync.Mutex
	sessions  map[string]*sessionState
	opts      track.Options
	forwarder relay.Forwarder
	enricher  *relay.Enricher
	ttl       time.Duration
}

type sessionState struct {
	session  *track.Session
	identity relay.Identity
	consent  relay.Consent
	reqCtx   relay.Context
	lastSeen time.Time
}

// NewSessionRegistry builds a registry. forwarder may be nil when relaying
// is disabled.
func NewSessionRegistry(opts track.Options, forwarder relay.Forwarder, enricher *relay.Enricher, ttl time.Duration) *SessionRegistry {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &SessionRegistry{
		sessions:  make(map[string]*sessionState),
		opts:      opts,
		forwarder: forwarder,
		enricher:  enricher,
		ttl:       ttl,
	}
}

// Get returns the session for the id, or nil when none exists.
func (r *SessionRegistry) Get(id string) *track.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.sessions[id]; ok {
		return state.session
	}
	return nil
}

// Touch returns the session for the id, creating it on first sight, and
// updates identity, consent and request context from the current batch.
func (r *SessionRegistry) Touch(id string, identity relay.Identity, consent relay.Consent, reqCtx relay.Context) *track.Session {
	session := r.Ensure(id, reqCtx, &consent)

	r.mu.Lock()
	if state, ok := r.sessions[id]; ok {
		state.identity = identity
	}
	r.mu.Unlock()

	return session
}

// Ensure returns the session for the id, creating it on first sight, but
// leaves any previously recorded identity and consent untouched.
func (r *SessionRegistry) Ensure(id string, reqCtx relay.Context, consent *relay.Consent) *track.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[id]
	if !ok {
		state = &sessionState{session: track.NewSession(id, r.opts), identity: relay.Identity{SessionID: id}}
		state.session.OnEmit(func(ev *event.Event) {
			r.relayEvent(state, ev)
		})
		r.sessions[id] = state
	}

	if r.enricher != nil {
		reqCtx = r.enricher.Enrich(reqCtx)
	}
	state.reqCtx = reqCtx
	if consent != nil {
		state.consent = *consent
	}
	state.lastSeen = time.Now()

	return state.session
}

// relayEvent hands an emitted canonical event to the forwarder. Forwarding
// requires analytics consent. Identity, consent and request context are
// snapshotted under the registry lock: concurrent batches for the same
// session update them between payloads, never inside one.
func (r *SessionRegistry) relayEvent(state *sessionState, ev *event.Event) {
	if r.forwarder == nil {
		return
	}

	r.mu.Lock()
	identity := state.identity
	consent := state.consent
	reqCtx := state.reqCtx
	r.mu.Unlock()

	if !consent.Analytics {
		return
	}

	payload := relay.BuildPayload(ev.Event, eventProperties(ev), identity, reqCtx)
	if err := r.forwarder.Forward(context.Background(), payload); err != nil {
		log.Error().Err(err).Str("event", ev.Event).Msg("Failed to forward event")
	}
}

// RelayPageEvent forwards a server-rendered page event under the same
// consent rules.
func (r *SessionRegistry) RelayPageEvent(id string, raw map[string]any) {
	r.mu.Lock()
	state, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	identity := state.identity
	consent := state.consent
	reqCtx := state.reqCtx
	r.mu.Unlock()

	if r.forwarder == nil || !consent.Analytics {
		return
	}

	name, _ := raw["event"].(string)
	if name == "" {
		return
	}
	properties := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != "event" {
			properties[k] = v
		}
	}

	payload := relay.BuildPayload(name, properties, identity, reqCtx)
	if err := r.forwarder.Forward(context.Background(), payload); err != nil {
		log.Error().Err(err).Str("event", name).Msg("Failed to forward page event")
	}
}

// EvictIdle drops sessions not seen within the TTL.
func (r *SessionRegistry) EvictIdle() {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, state := range r.sessions {
		if state.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}

// eventProperties flattens a canonical event into the relay properties
// object, minus the event name itself.
func eventProperties(ev *event.Event) map[string]any {
	data, err := json.Marshal(ev)
	if err != nil {
		return map[string]any{}
	}
	var properties map[string]any
	if err := json.Unmarshal(data, &properties); err != nil {
		return map[string]any{}
	}
	delete(properties, "event")
	return properties
}
