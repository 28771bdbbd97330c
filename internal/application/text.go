package application

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxMetadataLength is the longest activity metadata accepted, in characters.
const MaxMetadataLength = 500

var plainTextPolicy = bluemonday.StrictPolicy()

// plainText strips markup from client supplied free text and trims it.
func plainText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(plainTextPolicy.Sanitize(trimmed)))
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func tooLong(value string, limit int) bool {
	return utf8.RuneCountInString(value) > limit
}
