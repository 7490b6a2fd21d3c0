package domain

import (
	"fmt"
	"strings"
)

// Language is one of the target languages a card can be studied in.
type Language string

const (
	English Language = "ENGLISH"
	Catalan Language = "CATALAN"
	French  Language = "FRENCH"
)

// Languages lists every supported language in display order.
var Languages = []Language{English, Catalan, French}

// ParseLanguage accepts a language name in any letter case.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown language %q", s)
	}
	return l, nil
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	switch l {
	case English, Catalan, French:
		return true
	}
	return false
}

// DisplayName is the human readable name used in prompts.
func (l Language) DisplayName() string {
	switch l {
	case Catalan:
		return "Catalan"
	case French:
		return "French"
	default:
		return "English (US)"
	}
}

// ISOCode is the ISO-639-1 code of the language.
func (l Language) ISOCode() string {
	switch l {
	case Catalan:
		return "ca"
	case French:
		return "fr"
	default:
		return "en"
	}
}
