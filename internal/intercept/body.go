package intercept

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
)

// CartFields is the identity and quantity extracted from an add-line-item
// request.
type CartFields struct {
	ItemID   string
	Quantity int
}

// ExtractCartFields pulls the line-item id and quantity out of a completed
// cart mutation request. The body may be multipart form data, a url-encoded
// string, or absent. Field keys follow the nested form convention: the
// wanted keys end in "[id]" and "[quantity]", the prefix varies per line
// item. The first non-empty match wins for each field. A malformed body
// never fails: quantity defaults to 1 and the id falls back to the request
// URL's query string.
func ExtractCartFields(req CompletedRequest) CartFields {
	fields := CartFields{Quantity: 1}

	pairs := parseBodyPairs(req.ContentType, req.Body)
	scanPairs(pairs, &fields)

	if fields.ItemID == "" {
		for _, p := range parseQueryPairs(req.URL) {
			if strings.HasSuffix(p.Key, "[id]") && strings.TrimSpace(p.Value) != "" {
				fields.ItemID = strings.TrimSpace(p.Value)
				break
			}
		}
	}

	return fields
}

// ExtractFormQuantity reads the quantity out of an ordered field list (a
// submitted form), same suffix convention as the request bodies.
func ExtractFormQuantity(fields []Field) int {
	for _, f := range fields {
		if !strings.HasSuffix(f.Key, "[quantity]") {
			continue
		}
		if qty, err := strconv.Atoi(strings.TrimSpace(f.Value)); err == nil && qty > 0 {
			return qty
		}
	}
	return 1
}

// Field is one ordered key/value pair of a form or a request body.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func scanPairs(pairs []Field, out *CartFields) {
	foundQty := false
	for _, p := range pairs {
		switch {
		case out.ItemID == "" && strings.HasSuffix(p.Key, "[id]"):
			if v := strings.TrimSpace(p.Value); v != "" {
				out.ItemID = v
			}
		case !foundQty && strings.HasSuffix(p.Key, "[quantity]"):
			if qty, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil && qty > 0 {
				out.Quantity = qty
				foundQty = true
			}
		}
	}
}

// parseBodyPairs decodes the request body into ordered pairs. Multipart
// bodies are detected by content type; everything else is treated as a
// url-encoded string. Order is preserved so the first-match rule holds.
func parseBodyPairs(contentType string, body []byte) []Field {
	if len(body) == 0 {
		return nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		return parseMultipartPairs(body, params["boundary"])
	}

	return parseEncodedPairs(string(body))
}

func parseMultipartPairs(body []byte, boundary string) []Field {
	if boundary == "" {
		return nil
	}
	var pairs []Field
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		name := part.FormName()
		value, _ := io.ReadAll(part)
		part.Close()
		if name != "" {
			pairs = append(pairs, Field{Key: name, Value: string(value)})
		}
	}
	return pairs
}

// parseEncodedPairs is an order-preserving url-encoded parser.
// url.ParseQuery would lose field order behind map iteration.
func parseEncodedPairs(body string) []Field {
	var pairs []Field
	for _, chunk := range strings.Split(body, "&") {
		if chunk == "" {
			continue
		}
		key, value, _ := strings.Cut(chunk, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		pairs = append(pairs, Field{Key: decodedKey, Value: decodedValue})
	}
	return pairs
}

func parseQueryPairs(rawURL string) []Field {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return parseEncodedPairs(u.RawQuery)
}
