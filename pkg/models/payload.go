// Package models contains domain types for the inspection engine.
package models

import (
	"strconv"
	"strings"
)

// BoundaryFlag is the cycle transition encoded in a snapshot payload.
type BoundaryFlag int

const (
	// FlagNone means the row carries no cycle transition. Missing or
	// ambiguous values are treated as FlagNone, never as an error.
	FlagNone BoundaryFlag = iota
	FlagStart
	FlagEnd
)

// Payload is the structured key-value data of one PLC snapshot line.
//
// The upstream feed is not under our control: one known defect is that some
// field names arrive with an embedded leading whitespace character (" PointerID"
// instead of "PointerID"), and values may be JSON booleans, numbers or padded
// strings. All lookups therefore tolerate a leading-space key variant and all
// values are trimmed before use.
type Payload map[string]any

// Field returns the value for name (or any fallback name) as a trimmed string.
// Returns "" when the field is absent, empty, or a null-ish placeholder.
func (p Payload) Field(name string, fallbacks ...string) string {
	variants := make([]string, 0, 2+2*len(fallbacks))
	variants = append(variants, name, " "+name)
	for _, f := range fallbacks {
		variants = append(variants, f, " "+f)
	}

	for _, key := range variants {
		raw, ok := p[key]
		if !ok || raw == nil {
			continue
		}

		if b, isBool := raw.(bool); isBool {
			if !b {
				continue // false means empty/missing for string fields
			}
			return "true"
		}

		s := strings.TrimSpace(toString(raw))
		switch strings.ToLower(s) {
		case "", "false", "none", "null":
			continue
		}
		return s
	}
	return ""
}

// Bool reports whether the field holds a truthy value (true, "true", "1", "yes", 1).
func (p Payload) Bool(name string, fallbacks ...string) bool {
	variants := make([]string, 0, 2+2*len(fallbacks))
	variants = append(variants, name, " "+name)
	for _, f := range fallbacks {
		variants = append(variants, f, " "+f)
	}

	for _, key := range variants {
		raw, ok := p[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true
			}
			return false
		case float64:
			return v == 1
		case int:
			return v == 1
		}
	}
	return false
}

// Boundary reads the cycle boundary flag from the named field.
// Anything other than "start" or "end" (after normalization) is FlagNone.
func (p Payload) Boundary(field string) BoundaryFlag {
	switch NormalizeKey(p.Field(field)) {
	case "start":
		return FlagStart
	case "end":
		return FlagEnd
	default:
		return FlagNone
	}
}

// NormalizeKey prepares a value for use as a correlation key: surrounding
// whitespace is dropped and case is folded, so " 5" and "5" compare equal
// while "05" and "5" stay distinct.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// KeysEqual compares two correlation key values under NormalizeKey rules.
func KeysEqual(a, b string) bool {
	return NormalizeKey(a) == NormalizeKey(b)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; PLC ids are integral.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
