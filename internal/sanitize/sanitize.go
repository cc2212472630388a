// Package sanitize turns tenant-authored free text into plain, single-spaced text.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict allows no elements and no attributes. A configured policy is safe
// for concurrent use and is never mutated after init.
var strict = bluemonday.StrictPolicy()

// Text strips all markup from s, collapses whitespace runs to a single space
// and trims the result. Remaining text is HTML-escaped, so the output never
// contains tag syntax. Text(Text(s)) == Text(s).
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(strict.Sanitize(s)), " ")
}
