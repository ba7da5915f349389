package transcription

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	whitespaceClass = `[\s\v\p{Z}\x{0085}]`
	letterClass     = `[A-Za-zА-Яа-яІіЇїЄєҐґ]`
)

var (
	whitespaceRun = regexp.MustCompile(whitespaceClass + `+`)
	// " ,word" becomes ", word": the space belonged after the mark
	spaceBeforeGluedMark = regexp.MustCompile(` +([,.!?;:])(` + letterClass + `)`)
	spaceBeforeMark      = regexp.MustCompile(` +([,.!?;:])`)
	sentenceBoundary     = regexp.MustCompile(`([.!?]) *(` + letterClass + `)`)
)

// Clean normalizes a raw transcript: whitespace runs collapse to one space, no
// space before , . ! ? ; :, one space after . ! ? before a letter, trimmed,
// first letter capitalized. Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	text := whitespaceRun.ReplaceAllString(raw, " ")
	text = spaceBeforeGluedMark.ReplaceAllString(text, "$1 $2")
	text = spaceBeforeMark.ReplaceAllString(text, "$1")
	text = sentenceBoundary.ReplaceAllString(text, "$1 $2")
	text = strings.Trim(text, " ")

	return capitalizeFirst(text)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	upper := unicode.ToUpper(r)
	if upper == r {
		return s
	}
	return string(upper) + s[size:]
}
