package filings

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// NormalizationRecord tracks one vocabulary change for the audit trail.
// Records exist for auditability, not correctness: the normalized form is
// authoritative either way.
type NormalizationRecord struct {
	Original   string
	Normalized string
}

// NormalizeConcept canonicalizes an XBRL concept name: the namespace prefix
// is stripped, "&" and "+" become words, and the remainder is re-joined to
// PascalCase. All-caps runs longer than one letter are treated as acronyms
// and preserved. The function is idempotent.
func NormalizeConcept(concept string) string {
	s := StripConceptPrefix(concept)
	s = strings.ReplaceAll(s, "&", " And ")
	s = strings.ReplaceAll(s, "+", " Plus ")

	var b strings.Builder
	var word []rune
	flush := func() {
		if len(word) == 0 {
			return
		}
		if len(word) > 1 && allUpper(word) {
			b.WriteString(string(word)) // preserved acronym
		} else {
			b.WriteRune(unicode.ToUpper(word[0]))
			b.WriteString(string(word[1:]))
		}
		word = word[:0]
	}

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word = append(word, r)
		} else {
			flush()
		}
	}
	flush()

	return b.String()
}

func allUpper(word []rune) bool {
	for _, r := range word {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// isoCurrencies is the set of currency codes case-folded to uppercase
// during unit normalization.
var isoCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true,
	"CAD": true, "AUD": true, "CHF": true, "HKD": true, "KRW": true,
	"INR": true, "BRL": true, "MXN": true, "SEK": true, "NOK": true,
	"DKK": true, "SGD": true, "TWD": true, "ILS": true, "ZAR": true,
}

// unitSynonyms maps lower-cased unit spellings to their canonical symbol.
var unitSynonyms = map[string]string{
	"shares":  "Shares",
	"share":   "Shares",
	"sh":      "Shares",
	"%":       "Percent",
	"pct":     "Percent",
	"percent": "Percent",
	"pure":    "Pure",
	"number":  "Pure",
	"ratio":   "Pure",
}

// NormalizeUnit canonicalizes a unit expression. Namespace prefixes are
// stripped, ISO currency codes upcased, and the synonym table applied;
// ratio units normalize each side. Unrecognized strings pass through
// unchanged.
func NormalizeUnit(unit string) string {
	if num, denom, ok := strings.Cut(unit, "/"); ok && denom != "" {
		return normalizeMeasure(num) + "/" + normalizeMeasure(denom)
	}
	return normalizeMeasure(unit)
}

func normalizeMeasure(measure string) string {
	m := StripConceptPrefix(strings.TrimSpace(measure))
	if isoCurrencies[strings.ToUpper(m)] {
		return strings.ToUpper(m)
	}
	if canonical, ok := unitSynonyms[strings.ToLower(m)]; ok {
		return canonical
	}
	return m
}

// NormalizeText normalizes Unicode and HTML entity issues that appear in
// rendered filings. Called on document bytes before section extraction so
// downstream matching sees consistent text.
//
// Normalizations performed:
// - HTML entities (&nbsp;, &mdash;, &ldquo;, etc.) to Unicode equivalents
// - Non-breaking and exotic Unicode whitespace to regular spaces
// - Zero-width characters removed
// - CRLF/CR line endings to LF
func NormalizeText(data []byte) []byte {
	text := string(data)

	text = normalizeHTMLEntities(text)
	text = normalizeWhitespace(text)
	text = removeInvisibleChars(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return []byte(text)
}

// normalizeHTMLEntities converts common HTML entities to their Unicode
// equivalents.
func normalizeHTMLEntities(text string) string {
	replacements := map[string]string{
		"&nbsp;":   " ",
		"&mdash;":  "—",
		"&ndash;":  "–",
		"&ldquo;":  "“",
		"&rdquo;":  "”",
		"&lsquo;":  "‘",
		"&rsquo;":  "’",
		"&amp;":    "&",
		"&lt;":     "<",
		"&gt;":     ">",
		"&quot;":   "\"",
		"&apos;":   "'",
		"&hellip;": "...",
		"&bull;":   "•",
		"&trade;":  "™",
		"&reg;":    "®",
		"&copy;":   "©",
		"&sect;":   "§",
		"&para;":   "¶",
	}

	for entity, replacement := range replacements {
		text = strings.ReplaceAll(text, entity, replacement)
	}

	// Numeric entities (&#NNN;).
	numericEntityPattern := regexp.MustCompile(`&#(\d+);`)
	text = numericEntityPattern.ReplaceAllStringFunc(text, func(match string) string {
		var code int
		if _, err := fmt.Sscanf(match, "&#%d;", &code); err == nil {
			switch code {
			case 160:
				return " "
			case 8211:
				return "–"
			case 8212:
				return "—"
			case 8220, 8221:
				return "\""
			case 8217:
				return "'"
			default:
				if code < 0x110000 {
					return string(rune(code))
				}
			}
		}
		return match
	})

	return text
}

// normalizeWhitespace converts Unicode whitespace variants to regular
// spaces. U+00A0 is by far the most common offender in filings.
func normalizeWhitespace(text string) string {
	var result strings.Builder
	result.Grow(len(text))

	for _, r := range text {
		switch r {
		case '\u00A0': // non-breaking space
			result.WriteRune(' ')
		case '\u2000', '\u2001', '\u2002', '\u2003', '\u2004', '\u2005':
			result.WriteRune(' ')
		case '\u2006', '\u2007', '\u2008', '\u2009', '\u200A':
			result.WriteRune(' ')
		case '\u202F', '\u205F', '\u3000':
			result.WriteRune(' ')
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// removeInvisibleChars removes zero-width and other format characters.
func removeInvisibleChars(text string) string {
	var result strings.Builder
	result.Grow(len(text))

	for _, r := range text {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u180E':
			continue
		default:
			if unicode.Is(unicode.Cf, r) && r != '\t' && r != '\n' && r != '\r' {
				continue
			}
			result.WriteRune(r)
		}
	}

	return result.String()
}
