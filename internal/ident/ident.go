// Package ident derives Go identifiers and declared tool names from
// arbitrary node names and ids.
package ident

import "strings"

func split(s string) []string {
	sep := func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}
	var parts []string
	for _, raw := range strings.FieldsFunc(s, sep) {
		// Break camelCase runs so "lookupOrder" yields ["lookup", "Order"].
		start := 0
		for i := 1; i < len(raw); i++ {
			if raw[i] >= 'A' && raw[i] <= 'Z' && !(raw[i-1] >= 'A' && raw[i-1] <= 'Z') {
				parts = append(parts, raw[start:i])
				start = i
			}
		}
		parts = append(parts, raw[start:])
	}
	return parts
}

// Exported returns a CamelCase exported identifier, e.g. "triage_agent"
// becomes "TriageAgent".
func Exported(s string) string {
	parts := split(s)
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	out := strings.Join(parts, "")
	if out == "" {
		return "X"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "N" + out
	}
	return out
}

// Unexported returns a camelCase unexported identifier, e.g. "Triage Agent"
// becomes "triageAgent".
func Unexported(s string) string {
	out := Exported(s)
	return strings.ToLower(out[:1]) + out[1:]
}

// Snake returns a snake_case token, e.g. "lookupOrder" becomes
// "lookup_order". Declared tool names use this form.
func Snake(s string) string {
	parts := split(s)
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	out := strings.Join(parts, "_")
	if out == "" {
		return "x"
	}
	return out
}
