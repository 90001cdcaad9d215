// Package parser decodes feed documents and coerces their loosely typed fields.
package parser

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Payload is the decoded field set of one document.
type Payload map[string]any

// Parse decodes a YAML (or JSON) document into a Payload. An empty document
// decodes to an empty payload.
func Parse(data []byte) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parser: decode document: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// Encode renders a payload as a YAML document.
func Encode(p Payload) ([]byte, error) {
	out, err := yaml.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("parser: encode document: %w", err)
	}
	return out, nil
}

// String returns the field at key rendered as a string. Missing and null
// fields give "".
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

// Object returns the nested mapping at key, or nil.
func (p Payload) Object(key string) Payload {
	switch m := p[key].(type) {
	case map[string]any:
		return Payload(m)
	case Payload:
		return m
	default:
		return nil
	}
}

// Coordinate coerces v into a non-negative integer. Numbers are truncated,
// strings are read up to the first non-digit after an optional sign, and
// anything unreadable or negative becomes 0.
func Coordinate(v any) int {
	n, ok := leadingInt(v)
	if !ok || n < 0 {
		return 0
	}
	return n
}

func leadingInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return clampInt(float64(n))
	case int64:
		return clampInt(float64(n))
	case uint64:
		return clampInt(float64(n))
	case float64:
		return clampInt(n)
	case string:
		return parseIntPrefix(n)
	default:
		return 0, false
	}
}

func clampInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func parseIntPrefix(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
