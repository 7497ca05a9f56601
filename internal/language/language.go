package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// wordForms maps English language names users commonly type to their codes.
var wordForms = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"ukrainian":  "uk",
	"turkish":    "tr",
}

// Parse resolves a user-supplied language code, name, or BCP 47 tag.
func Parse(code string) (language.Tag, error) {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return language.Und, fmt.Errorf("language code is empty")
	}
	if mapped, ok := wordForms[trimmed]; ok {
		trimmed = mapped
	}
	tag, err := language.Parse(strings.ReplaceAll(trimmed, "_", "-"))
	if err != nil {
		return language.Und, fmt.Errorf("language code %q: %w", code, err)
	}
	if tag == language.Und {
		return language.Und, fmt.Errorf("language code %q is undetermined", code)
	}
	return tag, nil
}

// Canonical returns the canonical BCP 47 form of code ("EN" -> "en",
// "pt_br" -> "pt-BR"). It is used to build translation identifiers and file names.
func Canonical(code string) (string, error) {
	tag, err := Parse(code)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// Base returns the ISO 639-1 (or shortest available) base language for code,
// or an empty string when code is blank or unrecognized. Transcription engines
// only accept the base language.
func Base(code string) string {
	tag, err := Parse(code)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// DisplayName returns a human-readable English language name for code.
// Returns "Unknown" for empty input, or the uppercased code when unrecognized.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	tag, err := Parse(code)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
