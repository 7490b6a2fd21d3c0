// Package knol derives stable card identifiers from deck content, so that
// importing the same deck twice yields the same cards.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/growfluent/internal/domain"
)

// Normalize lowercases the phrase, normalizes line endings and collapses
// runs of whitespace, then prefixes it with the language.
func Normalize(phrase string, lang domain.Language) string {
	p := strings.ReplaceAll(phrase, "\r\n", "\n")
	p = strings.ToLower(p)
	p = strings.Join(strings.Fields(p), " ")

	// The newline keeps the language from running into the phrase.
	return strings.Join([]string{string(lang), p}, "\n")
}

// Hash returns the hex SHA-256 of the normalized phrase and language. The
// translation and example are left out so that editing them keeps the id.
func Hash(entry domain.DeckEntry, lang domain.Language) string {
	sum := sha256.Sum256([]byte(Normalize(entry.Phrase, lang)))
	return fmt.Sprintf("%x", sum)
}
