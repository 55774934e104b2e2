package identity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"talent-match/internal/cv"
	"talent-match/internal/storage"
)

const (
	minPhoneDigits = 7
	unknownRegion  = "ZZ"
)

// NormalizeEmail trims and lower-cases an address. Invalid addresses yield "".
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if at := strings.LastIndex(s, "@"); at <= 0 || at == len(s)-1 {
		return ""
	}
	return s
}

var defaultRegion atomic.Value

// SetDefaultRegion sets the ISO 3166 region national numbers are parsed in.
// An empty region only understands numbers with a country code.
func SetDefaultRegion(region string) error {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region != "" && phonenumbers.GetCountryCodeForRegion(region) == 0 {
		return fmt.Errorf("unknown phone region %q", region)
	}
	defaultRegion.Store(region)
	return nil
}

// NormalizePhone normalizes a number in the default region. See NormalizePhoneIn.
func NormalizePhone(s string) string {
	region, _ := defaultRegion.Load().(string)
	return NormalizePhoneIn(s, region)
}

// NormalizePhoneIn returns the digits of the E.164 form of s: country code
// followed by the national significant number, so "+49 30 1234567" and
// "030 1234567" in region DE share a key. Numbers that cannot be parsed keep
// their digits with a national trunk "0" dropped. Keys shorter than seven
// digits are ignored.
func NormalizePhoneIn(s, region string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "(0)", ""))
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if region == "" {
		region = unknownRegion
	}

	digits := ""
	if num, err := phonenumbers.Parse(s, region); err == nil {
		digits = strconv.Itoa(int(num.GetCountryCode())) + phonenumbers.GetNationalSignificantNumber(num)
	} else {
		digits = strings.TrimPrefix(onlyDigits(s), "0")
	}
	if len(digits) < minPhoneDigits {
		return ""
	}
	return digits
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fold strips diacritics and lower-cases, then splits on anything that is
// not a letter or digit.
func fold(s string) []string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NameKey is the order independent key of a person's name. Names with fewer
// than two tokens yield "".
func NameKey(s string) string {
	tokens := fold(s)
	if len(tokens) < 2 {
		return ""
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

var legalSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "gmbh": true, "corp": true, "co": true,
	"company": true, "corporation": true, "plc": true, "ag": true, "sa": true,
	"bv": true, "srl": true,
}

var genericCompanyTokens = map[string]bool{
	"group": true, "systems": true, "technologies": true, "technology": true,
	"solutions": true, "labs": true, "global": true, "international": true,
	"software": true, "services": true, "consulting": true, "the": true, "and": true,
}

// CompanyKey normalizes an employer name and drops legal suffixes.
func CompanyKey(s string) string {
	var kept []string
	for _, t := range fold(s) {
		if !legalSuffixes[t] {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

func distinctiveTokens(key string) []string {
	var out []string
	for _, t := range strings.Fields(key) {
		if len([]rune(t)) >= 3 && !genericCompanyTokens[t] {
			out = append(out, t)
		}
	}
	return out
}

// CompaniesOverlap reports whether two employer names plausibly refer to the
// same organization: equal keys, or a shared distinctive token.
func CompaniesOverlap(a, b string) bool {
	ka, kb := CompanyKey(a), CompanyKey(b)
	if ka == "" || kb == "" {
		return false
	}
	if ka == kb {
		return true
	}
	tb := make(map[string]bool)
	for _, t := range distinctiveTokens(kb) {
		tb[t] = true
	}
	for _, t := range distinctiveTokens(ka) {
		if tb[t] {
			return true
		}
	}
	return false
}

// KeysFor returns the identity keys a resume contributes.
func KeysFor(f *cv.Facts) []storage.IdentityKey {
	var keys []storage.IdentityKey
	if v := NormalizeEmail(f.Email); v != "" {
		keys = append(keys, storage.IdentityKey{Kind: storage.KeyEmail, Value: v})
	}
	if v := NormalizePhone(f.Phone); v != "" {
		keys = append(keys, storage.IdentityKey{Kind: storage.KeyPhone, Value: v})
	}
	if v := NameKey(f.Name); v != "" {
		keys = append(keys, storage.IdentityKey{Kind: storage.KeyName, Value: v})
	}
	return keys
}
