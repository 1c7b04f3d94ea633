package metrics

import "strings"

// norm lowercases label values so dashboards never split a series on casing.
func norm(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}
