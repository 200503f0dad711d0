package filings

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Context defines the time period a fact applies to. A context carries
// either an instant or a start/end duration, never both.
type Context struct {
	ID     string `xml:"id,attr"`
	Period Period `xml:"period"`
}

// Period is the raw period block of a context.
type Period struct {
	Instant   string `xml:"instant,omitempty"`
	StartDate string `xml:"startDate,omitempty"`
	EndDate   string `xml:"endDate,omitempty"`
}

// IsInstant reports whether the period is a point in time.
func (p Period) IsInstant() bool { return p.Instant != "" }

// IsDuration reports whether the period is a start/end range.
func (p Period) IsDuration() bool { return p.StartDate != "" && p.EndDate != "" }

// Unit is a measurement unit referenced by numeric facts.
type Unit struct {
	ID      string  `xml:"id,attr"`
	Measure string  `xml:"measure"`
	Divide  *Divide `xml:"divide,omitempty"`
}

// Divide is a ratio unit such as USD per share.
type Divide struct {
	Numerator   string `xml:"unitNumerator>measure"`
	Denominator string `xml:"unitDenominator>measure"`
}

// Symbol returns the raw unit expression: the measure, or num/denom for
// ratio units.
func (u Unit) Symbol() string {
	if u.Divide != nil {
		return u.Divide.Numerator + "/" + u.Divide.Denominator
	}
	return u.Measure
}

// Fact is one tagged data point. Value keeps its raw textual form, commas
// and parenthesized negatives included: numeric normalization is left to
// downstream consumers so no precision is lost here.
type Fact struct {
	Concept    string // namespace-stripped concept name
	Value      string
	ContextRef string
	UnitRef    string
	Decimals   string // raw attribute; may be "INF" or empty
}

// FactSet is the output of XBRL extraction for one document.
type FactSet struct {
	Facts    []Fact
	Contexts []Context
	Units    []Unit
	Warnings []Warning
}

// FormatHint tells Extract which source shape to expect.
type FormatHint int

const (
	HintAuto FormatHint = iota
	HintInline
	HintInstance
)

// DetectFormat sniffs whether bytes hold inline XBRL, a standalone instance
// document, or neither.
func DetectFormat(data []byte) FormatHint {
	content := string(data[:min(len(data), 1<<20)])

	if strings.Contains(content, "xmlns:ix=") ||
		strings.Contains(content, "<ix:") ||
		strings.Contains(content, "inlineXBRL") {
		return HintInline
	}
	if strings.Contains(content, "<xbrl") || strings.Contains(content, "xmlns:xbrli=") {
		return HintInstance
	}
	return HintAuto
}

// Extract parses inline or standalone XBRL into facts, contexts, and units.
// Zero extracted facts is a data-quality warning, not an error; the caller
// proceeds with an empty fact set.
func Extract(data []byte, hint FormatHint) (*FactSet, error) {
	if hint == HintAuto {
		hint = DetectFormat(data)
		if hint == HintAuto {
			return nil, &FetchError{Kind: ErrMalformedContent, Err: fmt.Errorf("unable to detect XBRL format")}
		}
	}

	var fs *FactSet
	var err error
	switch hint {
	case HintInline:
		fs, err = extractInline(data)
	default:
		fs, err = extractInstance(data)
	}
	if err != nil {
		return nil, err
	}

	fs.finish()
	return fs, nil
}

// finish validates cross-references and drops unusable contexts and facts,
// recording each drop as a warning.
func (fs *FactSet) finish() {
	kept := fs.Contexts[:0]
	known := make(map[string]bool, len(fs.Contexts))
	for _, ctx := range fs.Contexts {
		if !ctx.Period.IsInstant() && !ctx.Period.IsDuration() {
			fs.Warnings = append(fs.Warnings, warnf(WarnContextDropped,
				"context %q has neither instant nor duration period", ctx.ID))
			continue
		}
		kept = append(kept, ctx)
		known[ctx.ID] = true
	}
	fs.Contexts = kept

	knownUnits := make(map[string]bool, len(fs.Units))
	for _, u := range fs.Units {
		knownUnits[u.ID] = true
	}

	keptFacts := fs.Facts[:0]
	for _, f := range fs.Facts {
		if !known[f.ContextRef] {
			fs.Warnings = append(fs.Warnings, warnf(WarnDanglingRef,
				"fact %q references unknown context %q", f.Concept, f.ContextRef))
			continue
		}
		if f.UnitRef != "" && !knownUnits[f.UnitRef] {
			fs.Warnings = append(fs.Warnings, warnf(WarnDanglingRef,
				"fact %q references unknown unit %q", f.Concept, f.UnitRef))
			continue
		}
		keptFacts = append(keptFacts, f)
	}
	fs.Facts = keptFacts

	if len(fs.Facts) == 0 {
		fs.Warnings = append(fs.Warnings, warnf(WarnNoFacts,
			"document claimed to contain XBRL but no facts were extracted"))
	}
}

// extractInstance parses a standalone XBRL instance document. Contexts and
// units unmarshal directly; facts are dynamic elements found by walking the
// token stream for anything carrying a contextRef attribute.
func extractInstance(data []byte) (*FactSet, error) {
	var doc struct {
		XMLName  xml.Name  `xml:"xbrl"`
		Contexts []Context `xml:"context"`
		Units    []Unit    `xml:"unit"`
	}
	// Legacy instance documents declare US-ASCII or windows charsets; the
	// same passthrough used by the fact walk keeps them readable.
	structDecoder := xml.NewDecoder(bytes.NewReader(data))
	structDecoder.CharsetReader = passthroughCharset
	if err := structDecoder.Decode(&doc); err != nil {
		return nil, &FetchError{Kind: ErrMalformedContent, Err: fmt.Errorf("failed to parse instance document: %w", err)}
	}

	fs := &FactSet{Contexts: doc.Contexts, Units: doc.Units}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = passthroughCharset

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		elem, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		contextRef := getAttr(elem.Attr, "contextRef")
		if contextRef == "" {
			continue // not a fact
		}

		var value string
		if err := decoder.DecodeElement(&value, &elem); err != nil {
			continue
		}

		fs.Facts = append(fs.Facts, Fact{
			Concept:    StripConceptPrefix(elem.Name.Local),
			Value:      strings.TrimSpace(value),
			ContextRef: contextRef,
			UnitRef:    getAttr(elem.Attr, "unitRef"),
			Decimals:   getAttr(elem.Attr, "decimals"),
		})
	}

	return fs, nil
}

// StripConceptPrefix removes the namespace prefix from a concept name,
// leaving the local name otherwise untouched.
func StripConceptPrefix(concept string) string {
	if i := strings.LastIndex(concept, ":"); i >= 0 {
		return concept[i+1:]
	}
	return concept
}

func getAttr(attrs []xml.Attr, name string) string {
	for _, attr := range attrs {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

// passthroughCharset treats every declared charset as UTF-8. Filing
// documents declare ascii or windows charsets that are UTF-8 compatible in
// practice.
func passthroughCharset(charset string, input io.Reader) (io.Reader, error) {
	return input, nil
}
