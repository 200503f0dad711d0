package filings

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SerializeInput gathers everything one filing produced for serialization.
type SerializeInput struct {
	Ref      FilingRef
	Fiscal   FiscalLabel
	Facts    []Fact
	Contexts []Context
	Units    []Unit
	Sections []Section
}

const serializeVersion = "v1"

// Serialize emits the structured-fact text artifact for one filing. The
// output is deterministic for identical inputs aside from the GENERATED
// timestamp line, which is isolated so consumers can diff around it.
func Serialize(in SerializeInput) string {
	return serializeAt(in, time.Now().UTC())
}

// periodKey dedupes contexts that cover the same span under different ids.
func periodKey(p Period) string {
	if p.IsInstant() {
		return "i|" + p.Instant
	}
	return "p|" + p.StartDate + "|" + p.EndDate
}

func serializeAt(in SerializeInput, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "FILINGTEXT | %s\n", serializeVersion)
	fmt.Fprintf(&b, "DOC | %s | %s | %s | %s | %s | %s\n",
		in.Ref.Ticker, in.Ref.AccessionNumber, in.Ref.FilingType,
		in.Ref.FilingDate, in.Ref.PeriodEnd, in.Fiscal)
	fmt.Fprintf(&b, "GENERATED | %s\n", now.Format(time.RFC3339))
	b.WriteString("\n")

	// Periods and instants share one first-seen numbering space per kind,
	// deduplicated by span. Contexts then reference the short ids.
	shortIDs := make(map[string]string, len(in.Contexts)) // context id -> p-N / i-N
	spanIDs := make(map[string]string)                    // period key -> p-N / i-N
	var periodLines, instantLines, contextLines []string
	nDuration, nInstant := 0, 0

	for _, ctx := range in.Contexts {
		key := periodKey(ctx.Period)
		short, seen := spanIDs[key]
		if !seen {
			if ctx.Period.IsInstant() {
				nInstant++
				short = fmt.Sprintf("i-%d", nInstant)
				instantLines = append(instantLines,
					fmt.Sprintf("INSTANT | %s | %s", short, ctx.Period.Instant))
			} else {
				nDuration++
				short = fmt.Sprintf("p-%d", nDuration)
				periodLines = append(periodLines,
					fmt.Sprintf("PERIOD | %s | %s | %s", short, ctx.Period.StartDate, ctx.Period.EndDate))
			}
			spanIDs[key] = short
		}
		shortIDs[ctx.ID] = short
		contextLines = append(contextLines,
			fmt.Sprintf("CONTEXT | %s | %s", ctx.ID, short))
	}

	for _, line := range periodLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range instantLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range contextLines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	var conceptAudit, unitAudit []NormalizationRecord
	seenConcept := make(map[string]bool)
	seenUnit := make(map[string]bool)

	normUnit := func(raw string) string {
		n := NormalizeUnit(raw)
		if n != raw && !seenUnit[raw] {
			seenUnit[raw] = true
			unitAudit = append(unitAudit, NormalizationRecord{Original: raw, Normalized: n})
		}
		return n
	}

	unitSymbols := make(map[string]string, len(in.Units))
	for _, u := range in.Units {
		sym := normUnit(u.Symbol())
		unitSymbols[u.ID] = sym
		fmt.Fprintf(&b, "UNIT | %s | %s\n", u.ID, sym)
	}

	for _, s := range in.Sections {
		fmt.Fprintf(&b, "SECTION | %s | %s\n", s.ID, s.Heading)
	}
	b.WriteString("\n")

	type outFact struct {
		concept  string
		value    string
		ctx      string
		unit     string
		decimals string
	}
	facts := make([]outFact, 0, len(in.Facts))
	for _, f := range in.Facts {
		concept := NormalizeConcept(f.Concept)
		if concept != f.Concept && !seenConcept[f.Concept] {
			seenConcept[f.Concept] = true
			conceptAudit = append(conceptAudit, NormalizationRecord{Original: f.Concept, Normalized: concept})
		}
		facts = append(facts, outFact{
			concept:  concept,
			value:    f.Value,
			ctx:      shortIDs[f.ContextRef],
			unit:     unitSymbols[f.UnitRef],
			decimals: f.Decimals,
		})
	}
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].concept != facts[j].concept {
			return facts[i].concept < facts[j].concept
		}
		if facts[i].ctx != facts[j].ctx {
			return facts[i].ctx < facts[j].ctx
		}
		return facts[i].value < facts[j].value
	})
	for _, f := range facts {
		fmt.Fprintf(&b, "FACT | %s | %s | %s | %s | %s\n",
			f.concept, f.value, f.ctx, f.unit, f.decimals)
	}
	b.WriteString("\n")

	sort.Slice(conceptAudit, func(i, j int) bool { return conceptAudit[i].Original < conceptAudit[j].Original })
	sort.Slice(unitAudit, func(i, j int) bool { return unitAudit[i].Original < unitAudit[j].Original })
	for _, r := range conceptAudit {
		fmt.Fprintf(&b, "AUDIT-CONCEPT | %s | %s\n", r.Original, r.Normalized)
	}
	for _, r := range unitAudit {
		fmt.Fprintf(&b, "AUDIT-UNIT | %s | %s\n", r.Original, r.Normalized)
	}

	// Concept -> context cross reference, one line per concept.
	xref := make(map[string][]string)
	for _, f := range facts {
		if f.ctx == "" {
			continue
		}
		ids := xref[f.concept]
		if len(ids) == 0 || ids[len(ids)-1] != f.ctx {
			xref[f.concept] = append(ids, f.ctx)
		}
	}
	concepts := make([]string, 0, len(xref))
	for c := range xref {
		concepts = append(concepts, c)
	}
	sort.Strings(concepts)
	for _, c := range concepts {
		fmt.Fprintf(&b, "XREF | %s | %s\n", c, strings.Join(xref[c], ","))
	}

	return b.String()
}
