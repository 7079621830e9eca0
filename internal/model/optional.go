package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Optional is an explicit present/absent wrapper for attribute values.
// Placeholder strings coming from users or from the vision provider never
// survive past the ingestion boundary: Normalize is the single place where
// "N/A"-like values are collapsed to the absent state.
type Optional[T any] struct {
	value   T
	present bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Present reports whether a value is set.
func (o Optional[T]) Present() bool { return o.present }

// Value returns the held value and whether it is present.
func (o Optional[T]) Value() (T, bool) { return o.value, o.present }

// Or returns the held value, or fallback when absent.
func (o Optional[T]) Or(fallback T) T {
	if o.present {
		return o.value
	}
	return fallback
}

// MarshalJSON encodes an absent value as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as absent.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// placeholders are values that mean "not provided" regardless of casing.
// The set covers what the marketplace frontend and the vision provider
// have been observed to emit.
var placeholders = map[string]bool{
	"":            true,
	"n/a":         true,
	"na":          true,
	"none":        true,
	"null":        true,
	"nil":         true,
	"-":           true,
	"--":          true,
	"unknown":     true,
	"desconocido": true,
	"no aplica":   true,
	"sin datos":   true,
}

// Normalize collapses placeholder strings to the absent state and trims
// surrounding whitespace from real values. This is the only placeholder
// handling in the codebase; everything downstream works with Optional.
func Normalize(raw string) Optional[string] {
	trimmed := strings.TrimSpace(raw)
	if placeholders[strings.ToLower(trimmed)] {
		return None[string]()
	}
	return Some(trimmed)
}

// NormalizeYear parses a year out of a raw string, tolerating range
// answers like "2018-2022" (first bound wins) and collapsing
// placeholders and unparseable values to absent.
func NormalizeYear(raw string) Optional[int] {
	s, ok := Normalize(raw).Value()
	if !ok {
		return None[int]()
	}
	if i := strings.IndexAny(s, "-–/"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1900 || year > 2100 {
		return None[int]()
	}
	return Some(year)
}
