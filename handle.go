package accounts

import (
	"strings"

	"github.com/gosimple/slug"
)

// NormalizeHandle turns user input into the identifier-safe handle used
// as the storage key: trimmed, lowercased and slugified.
func NormalizeHandle(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.ToLower(slug.Make(trimmed))
}
