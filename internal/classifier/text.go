package classifier

import (
	"strings"
	"unicode"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
)

// stopWords are dropped from keyword searches. Bank descriptions are in
// Spanish and padded with filler like "REF" or "NRO".
var stopWords = map[string]bool{
	"DE": true, "DEL": true, "LA": true, "LAS": true, "EL": true, "LOS": true,
	"EN": true, "POR": true, "PARA": true, "CON": true, "SIN": true, "AL": true,
	"SU": true, "SUS": true, "UN": true, "UNA": true, "Y": true, "O": true,
	"REF": true, "NRO": true, "NO": true, "NUM": true,
}

// words splits normalized text on anything that is not a letter or digit
func words(text string) []string {
	return strings.FieldsFunc(models.NormalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// keywords returns the distinct search tokens of a description, in order
func keywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range words(text) {
		if len([]rune(w)) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// wordSet keeps words longer than two characters
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range words(text) {
		if len([]rune(w)) > 2 {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity scores two descriptions on a 0..100 scale, blending word overlap
// with character sequence similarity.
func Similarity(a, b string) float64 {
	j := jaccard(wordSet(a), wordSet(b))
	r := matcher.SequenceRatio(models.NormalizeText(a), models.NormalizeText(b))
	return 100 * (0.6*j + 0.4*r)
}

// prefixes returns the 1..max word prefixes of a description, longest first
func prefixes(text string, max int) []string {
	ws := words(text)
	if len(ws) < max {
		max = len(ws)
	}
	out := make([]string, 0, max)
	for n := max; n >= 1; n-- {
		out = append(out, strings.Join(ws[:n], " "))
	}
	return out
}
