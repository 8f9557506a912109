package search

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultStopwords are common English words that carry no product meaning.
var DefaultStopwords = []string{
	"a", "an", "and", "the", "for", "with", "of", "to", "in", "on", "my", "me",
	"some", "this", "that", "is", "it", "your", "you", "or", "by", "at", "from",
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

var folder = cases.Fold()

// Fold lowercases s with Unicode case folding and strips combining marks, so
// "Café" and "cafe" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return folder.String(out)
}

// Tokenize folds s and returns its set of word tokens minus stop words.
func Tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(Fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeName collapses whitespace and folds s, for comparing names typed by
// users against catalog names.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(Fold(s)), " ")
}
