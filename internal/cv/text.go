package cv

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes extracted text: NFKC, lower case, collapsed whitespace.
// Two extractions that differ only in layout whitespace normalize identically.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint is the sha256 hex digest of the normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "has": true, "have": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "our": true, "that": true, "the": true,
	"this": true, "to": true, "we": true, "will": true, "with": true, "you": true, "your": true,
	"who": true, "looking": true, "plus": true, "strong": true, "years": true, "year": true,
	"experience": true, "experienced": true, "knowledge": true, "team": true, "work": true,
}

func tokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' || r == '/'
}

// Tokens splits text into normalized keyword tokens. Characters used in skill
// names (c++, c#, node.js, ci/cd) are kept; stop words are dropped.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool { return !tokenRune(r) })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "./")
		if f == "" || stopWords[f] {
			continue
		}
		if len([]rune(f)) < 2 && f != "c" && f != "r" {
			continue
		}
		out = append(out, NormalizeSkill(f))
	}
	return out
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokens(text) {
		set[t] = true
	}
	return set
}

// Jaccard is the token overlap ratio |a∩b| / |a∪b|.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// SortedSet returns the distinct non-empty values sorted ascending.
func SortedSet(values ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, vs := range values {
		for _, v := range vs {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
