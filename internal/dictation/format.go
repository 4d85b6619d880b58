// Package dictation formats recognized free-dictation word runs into
// display text.
package dictation

import (
	"strings"
	"unicode"
)

// Options controls dictation formatting behavior.
type Options struct {
	// Capitalize upper-cases the first letter and each letter following a
	// sentence-ending mark.
	Capitalize bool
	// LiteralWords disables spoken-punctuation translation.
	LiteralWords bool
}

// spokenForms maps punctuation words a speech backend emits to the marks
// they stand for.
var spokenForms = map[string]string{
	"comma":            ",",
	"period":           ".",
	"full-stop":        ".",
	"question-mark":    "?",
	"exclamation-mark": "!",
	"colon":            ":",
	"semicolon":        ";",
	"hyphen":           "-",
	"open-paren":       "(",
	"close-paren":      ")",
	"new-line":         "\n",
	"new-paragraph":    "\n\n",
}

// attachesLeft marks punctuation written flush against the preceding word.
var attachesLeft = map[string]bool{
	",": true, ".": true, "?": true, "!": true,
	":": true, ";": true, ")": true,
}

// attachesRight marks punctuation written flush against the following word.
var attachesRight = map[string]bool{
	"(": true, "-": true,
}

// Format joins a dictated word run with default options: spoken
// punctuation applied, original casing kept.
func Format(words []string) string {
	return FormatWith(words, Options{})
}

// FormatWith joins a dictated word run, translating spoken punctuation and
// applying spacing so the result reads as written text.
func FormatWith(words []string, opts Options) string {
	var out strings.Builder
	pendingSpace := false
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if !opts.LiteralWords {
			if mark, ok := spokenForms[strings.ToLower(word)]; ok {
				word = mark
			}
		}
		switch {
		case strings.HasPrefix(word, "\n"):
			out.WriteString(word)
			pendingSpace = false
			continue
		case attachesLeft[word]:
			out.WriteString(word)
			pendingSpace = true
			continue
		case attachesRight[word]:
			if pendingSpace {
				out.WriteByte(' ')
			}
			out.WriteString(word)
			pendingSpace = false
			continue
		}
		if pendingSpace {
			out.WriteByte(' ')
		}
		out.WriteString(word)
		pendingSpace = true
	}
	text := out.String()
	if opts.Capitalize {
		text = capitalizeSentences(text)
	}
	return text
}

// capitalizeSentences upper-cases the first letter and each letter that
// follows a sentence-ending mark.
func capitalizeSentences(text string) string {
	runes := []rune(text)
	var out strings.Builder
	out.Grow(len(text))

	capitalizeNext := true
	for _, r := range runes {
		if capitalizeNext && unicode.IsLetter(r) {
			r = unicode.ToUpper(r)
			capitalizeNext = false
		}
		out.WriteRune(r)
		switch r {
		case '.', '!', '?':
			capitalizeNext = true
		}
	}
	return out.String()
}
