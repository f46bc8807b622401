// Package validation implements §4.4 (Val): the sanitize-then-validate gate
// every memory and search query passes through before reaching storage.
package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
)

const (
	MinContentLength = 1
	MaxContentLength = 10240
)

// Sanitize removes NUL bytes, normalizes line endings to \n, and trims
// surrounding whitespace. Callers run this once, at the Memory Manager's
// entry point, before Validate; everything downstream treats content as
// opaque UTF-8 (§9).
func Sanitize(content string) string {
	content = strings.ReplaceAll(content, "\x00", "")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.TrimSpace(content)
}

// ValidateContent checks a sanitized memory content string against §3(c)
// and §4.4's length bound. Callers must Sanitize before calling this.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return memory.ValidationError("content", "content cannot be empty or only whitespace")
	}
	if len(content) < MinContentLength {
		return memory.ValidationError("content", "content must be at least 1 character")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return memory.ValidationError("content", "content exceeds maximum length of 10240 characters")
	}
	return nil
}

// ValidateType checks that t is one of the enumerated memory types.
func ValidateType(t memory.Type) error {
	if !t.Valid() {
		return memory.ValidationError("type", "invalid memory type: "+string(t))
	}
	return nil
}

// ValidateSource checks that s is one of the enumerated memory sources.
func ValidateSource(s memory.Source) error {
	if !s.Valid() {
		return memory.ValidationError("source", "invalid memory source: "+string(s))
	}
	return nil
}

// ValidateMemoryCreate runs every §4.4 predicate against the fields of a
// new memory, as the Memory Manager does before handing off to the store.
func ValidateMemoryCreate(content string, t memory.Type, s memory.Source) error {
	if err := ValidateContent(content); err != nil {
		return err
	}
	if err := ValidateType(t); err != nil {
		return err
	}
	if err := ValidateSource(s); err != nil {
		return err
	}
	return nil
}

// ValidateSearchQuery checks a search query string (§4.4): non-empty after
// trim, length bounded the same as memory content.
func ValidateSearchQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return memory.ValidationError("query", "search query cannot be empty")
	}
	if utf8.RuneCountInString(query) > MaxContentLength {
		return memory.ValidationError("query", "search query exceeds maximum length of 10240 characters")
	}
	return nil
}
