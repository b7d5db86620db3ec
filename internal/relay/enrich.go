package relay

import (
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
)

// Enricher fills browser, OS and geo fields of a relay context from the
// user agent string and client IP. The GeoIP database is optional; without
// one the geo fields stay empty.
type Enricher struct {
	geoIP *geoip2.Reader
}

// NewEnricher opens the GeoIP database at the given path. An empty path or
// an unreadable file disables geo enrichment silently.
func NewEnricher(geoIPPath string) *Enricher {
	var reader *geoip2.Reader
	if geoIPPath != "" {
		reader, _ = geoip2.Open(geoIPPath)
	}
	return &Enricher{geoIP: reader}
}

// Enrich parses the user agent and resolves the client IP, returning the
// context with the derived fields filled in.
func (e *Enricher) Enrich(ctx Context) Context {
	if ctx.UserAgent != "" {
		ua := useragent.New(ctx.UserAgent)
		browser, _ := ua.Browser()
		ctx.Browser = browser
		ctx.OS = ua.OSInfo().Name
		switch {
		case ua.Mobile():
			ctx.Device = "mobile"
		case ua.Bot():
			ctx.Device = "bot"
		default:
			ctx.Device = "desktop"
		}
	}

	if e.geoIP != nil && ctx.IP != "" {
		if ip := net.ParseIP(ctx.IP); ip != nil {
			if city, err := e.geoIP.City(ip); err == nil {
				ctx.Country = city.Country.IsoCode
				ctx.City = city.City.Names["en"]
			}
		}
	}

	return ctx
}

// Close releases the GeoIP reader.
func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
