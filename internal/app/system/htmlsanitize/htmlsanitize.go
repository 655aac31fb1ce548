// Package htmlsanitize strips markup from user-submitted text before it
// is stored. Display names and profile fields pass through here so no
// markup survives into templates or other clients.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Plain removes all HTML from s and unescapes the entities the policy
// leaves behind, returning trimmed plain text.
func Plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
