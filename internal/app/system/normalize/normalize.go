// internal/app/system/normalize/normalize.go
package normalize

import "strings"

// Name trims and collapses internal whitespace in a person's name.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Username lowercases and trims a username. Usernames are compared
// case-insensitively everywhere; the folded form is what gets indexed.
func Username(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CampusID lowercases and trims an institutional identifier.
func CampusID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UsernameFromName derives a username from a display name: lowercase,
// words joined by dots. Used when an invitation carries no campus ID.
func UsernameFromName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	return strings.Join(fields, ".")
}
