package feed

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Mentions reports whether content tags handle as "@handle". Both sides are
// NFC-normalized so composed and decomposed spellings of a handle match.
func Mentions(content, handle string) bool {
	if handle == "" {
		return false
	}
	return strings.Contains(norm.NFC.String(content), "@"+norm.NFC.String(handle))
}

// NormalizeHandle trims and NFC-normalizes a handle before it is stored.
func NormalizeHandle(handle string) string {
	return norm.NFC.String(strings.TrimSpace(handle))
}
