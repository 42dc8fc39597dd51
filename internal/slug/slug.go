// Package slug builds URL slugs and normalises free text input.
package slug

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Make lowercases s, strips accents and joins alphanumeric runs with '-'.
// "Ciência & Ficção" becomes "ciencia-ficcao". Non-latin letters are kept.
func Make(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// Unique returns base if it is not taken, otherwise the first free "base-N" (N >= 1).
func Unique(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		used[s] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for n := 1; ; n++ {
		cand := base + "-" + strconv.Itoa(n)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}

// Text trims s and normalises it to NFC so equal comments compare equal.
func Text(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
