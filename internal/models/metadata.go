package models

import "strconv"

// Metadata is a string-keyed extension map carried on leads, messages, and
// jobs. Collaborator-specific annotations live here so the core typed fields
// stay statically checkable.
type Metadata map[string]string

// Int returns the value for key parsed as an integer, or 0 if absent or unparseable.
func (m Metadata) Int(key string) int {
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[key])
	if err != nil {
		return 0
	}
	return n
}

// SetInt stores an integer value under key.
func (m Metadata) SetInt(key string, v int) {
	m[key] = strconv.Itoa(v)
}

// Bool returns the value for key parsed as a boolean, or false if absent or unparseable.
func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	b, err := strconv.ParseBool(m[key])
	if err != nil {
		return false
	}
	return b
}

// Clone returns a shallow copy of the metadata map. Returns nil for nil input.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
