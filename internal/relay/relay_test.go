package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload_AnonymousVisitor(t *testing.T) {
	p := BuildPayload("add_to_cart",
		map[string]any{"value": 49.99},
		Identity{SessionID: "sess-1", Traits: &Traits{Email: "ignored@example.com"}},
		Context{IP: "203.0.113.9", UserAgent: "UA"},
	)

	assert.Equal(t, "add_to_cart", p.Event)
	assert.Equal(t, "sess-1", p.AnonymousID)
	assert.Empty(t, p.UserID)
	assert.Nil(t, p.Traits, "traits require a known user id")
	assert.Equal(t, 49.99, p.Properties["value"])
	assert.Equal(t, "203.0.113.9", p.Context.IP)

	_, err := uuid.Parse(p.MessageID)
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, p.Timestamp)
	require.NoError(t, err)
}

func TestBuildPayload_IdentifiedCustomer(t *testing.T) {
	traits := &Traits{Email: "jo@example.com", FirstName: "Jo", CustomerNumber: "C-100"}
	p := BuildPayload("begin_checkout", nil,
		Identity{SessionID: "sess-1", UserID: "cust-1", Traits: traits},
		Context{},
	)

	assert.Equal(t, "cust-1", p.UserID)
	assert.Equal(t, traits, p.Traits)
	assert.Equal(t, "sess-1", p.AnonymousID)
}

func TestHTTPForwarder_PostsToTrackEndpoint(t *testing.T) {
	var (
		gotPath     string
		gotWriteKey string
		gotBody     Payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotWriteKey = r.Header.Get("X-Write-Key")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(srv.URL+"/", "wk-secret", true, false)
	err := f.Forward(context.Background(), Payload{
		MessageID:   "m-1",
		Event:       "search",
		AnonymousID: "sess-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/s/s2s/track", gotPath)
	assert.Equal(t, "wk-secret", gotWriteKey)
	assert.Equal(t, "search", gotBody.Event)
	assert.Equal(t, "sess-1", gotBody.AnonymousID)
}

func TestHTTPForwarder_ErrorStatusReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(srv.URL, "wrong-key", true, false)
	err := f.Forward(context.Background(), Payload{Event: "search"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type recordingForwarder struct {
	payloads []Payload
	err      error
}

func (r *recordingForwarder) Forward(_ context.Context, p Payload) error {
	r.payloads = append(r.payloads, p)
	return r.err
}

func TestMulti_FailureDoesNotStopOthers(t *testing.T) {
	failing := &recordingForwarder{err: errors.New("broker down")}
	healthy := &recordingForwarder{}

	m := Multi{failing, healthy}
	err := m.Forward(context.Background(), Payload{Event: "add_to_cart"})

	require.NoError(t, err)
	assert.Len(t, failing.payloads, 1)
	assert.Len(t, healthy.payloads, 1)
}

func TestEnricher_UserAgentFields(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()

	const chromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	ctx := e.Enrich(Context{UserAgent: chromeDesktop, IP: "203.0.113.9"})

	assert.Equal(t, "Chrome", ctx.Browser)
	assert.Equal(t, "Windows", ctx.OS)
	assert.Equal(t, "desktop", ctx.Device)
	// No GeoIP database configured; geo fields stay empty.
	assert.Empty(t, ctx.Country)
	assert.Empty(t, ctx.City)
}

func TestEnricher_MobileUserAgent(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()

	const iphone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	ctx := e.Enrich(Context{UserAgent: iphone})

	assert.Equal(t, "mobile", ctx.Device)
}

func TestEnricher_EmptyUserAgentLeavesContextUntouched(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()

	ctx := e.Enrich(Context{IP: "203.0.113.9"})
	assert.Empty(t, ctx.Browser)
	assert.Empty(t, ctx.Device)
}
