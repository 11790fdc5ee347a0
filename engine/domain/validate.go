package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Injection patterns: SQL/NoSQL/template fragments that should never appear
// in a user query against a contract.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),            // template injection
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`), // NoSQL operator injection
}

const minQueryLength = 5

// collectionNameRe matches identifiers safe to use as Qdrant collection names.
var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateQuery validates free-text query input.
func ValidateQuery(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewConfigError("query", text, ErrEmptyQuery)
	}
	if utf8.RuneCountInString(text) < minQueryLength {
		return NewConfigError("query", text, ErrQueryTooShort)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewConfigError("query", text, ErrQueryInjection)
		}
	}
	return nil
}

// ValidateDocumentID checks that an identifier can name a collection.
func ValidateDocumentID(id string) error {
	if id == "" || !collectionNameRe.MatchString(id) {
		return NewConfigError("document_id", id, ErrInvalidDocumentID)
	}
	return nil
}
