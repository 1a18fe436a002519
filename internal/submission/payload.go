package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidBody is returned when the request body is not a JSON object.
var ErrInvalidBody = errors.New("submission: body must be a JSON object")

// Payload is the loosely typed request body posted by the storefront. Nested
// values stay raw so that noise in fields a route ignores never fails decoding.
type Payload struct {
	Customer  json.RawMessage `json:"customer"`
	Delivery  json.RawMessage `json:"delivery"`
	Items     json.RawMessage `json:"items"`
	Total     json.RawMessage `json:"total"`
	SourceURL json.RawMessage `json:"sourceUrl"`

	// Honeypot fields rendered invisibly by the storefront form.
	Company json.RawMessage `json:"company"`
	Email2  json.RawMessage `json:"email2"`
}

// DecodePayload reads a single JSON object from r.
func DecodePayload(r io.Reader) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return p, nil
}

// Trapped reports whether either honeypot field carries a non-blank value.
func (p Payload) Trapped() bool {
	return strings.TrimSpace(scalarText(p.Company)) != "" ||
		strings.TrimSpace(scalarText(p.Email2)) != ""
}

func (p Payload) customerField(name string) json.RawMessage {
	return object(p.Customer)[name]
}

func (p Payload) deliveryField(name string) json.RawMessage {
	return object(p.Delivery)[name]
}

// object decodes raw as a JSON object, returning nil for anything else.
func object(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// stringValue returns raw's value when it is a JSON string and "" otherwise.
func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// scalarText renders any JSON value as text: strings unquoted, null as "",
// everything else as its literal.
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		return stringValue(trimmed)
	}
	return string(trimmed)
}

// parseAmount interprets raw the way a storefront total is coerced to a
// number: JSON numbers and numeric strings parse, null and blank strings are
// zero, anything else (including a missing value) is not a number.
func parseAmount(raw json.RawMessage) (float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return math.NaN(), false
	}
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return 0, true
	case trimmed[0] == '"':
		s := strings.TrimSpace(stringValue(trimmed))
		if s == "" {
			return 0, true
		}
		return parseFinite(s)
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		return parseFinite(string(trimmed))
	default:
		return math.NaN(), false
	}
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// numberOrZero is used for item quantities and prices, which the storefront
// computes itself and are not part of the acceptance rules.
func numberOrZero(raw json.RawMessage) float64 {
	if v, ok := parseAmount(raw); ok {
		return v
	}
	return 0
}
