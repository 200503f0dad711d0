package filings

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Section is one canonical filing section located in the primary document.
type Section struct {
	ID      string // canonical item code, e.g. "item-1a"
	Heading string // heading text as found in the source
}

// DocumentText is the narrative output of section extraction: clean prose
// with explicit section markers and a guide of everything identified.
type DocumentText struct {
	Sections []Section
	FullText string
	Warnings []Warning
}

const (
	sectionStartMarker = "[SECTION_START: %s]"
	sectionEndMarker   = "[SECTION_END: %s]"

	// Headings carried by plain p/div elements are only considered when
	// shorter than this; real headings are short, paragraphs are not.
	maxDivHeadingLen = 100
)

// sectionPattern matches one canonical section heading.
type sectionPattern struct {
	id string
	re *regexp.Regexp
}

func pat(id, expr string) sectionPattern {
	return sectionPattern{id: id, re: regexp.MustCompile(`(?i)^` + expr)}
}

// Financial-statement headings appear in every filing type.
var financialPatterns = []sectionPattern{
	pat("balance-sheet", `(condensed\s+)?consolidated\s+balance\s+sheets?\b`),
	pat("balance-sheet", `(condensed\s+)?consolidated\s+statements?\s+of\s+financial\s+position\b`),
	pat("income-statement", `(condensed\s+)?consolidated\s+statements?\s+of\s+(operations|income|earnings)\b`),
	pat("comprehensive-income", `(condensed\s+)?consolidated\s+statements?\s+of\s+comprehensive\s+(income|loss)`),
	pat("cash-flow", `(condensed\s+)?consolidated\s+statements?\s+of\s+cash\s+flows?\b`),
	pat("stockholders-equity", `(condensed\s+)?consolidated\s+statements?\s+of\s+(stockholders|shareholders)`),
	pat("notes", `notes\s+to\s+(the\s+)?(condensed\s+)?consolidated\s+financial\s+statements`),
}

// Ordering matters: 1A before 1, 7A before 7, 9A/9B before 9, so the more
// specific item wins.
var annualPatterns = []sectionPattern{
	pat("item-1a", `item\s*1a[.:\-\s]+\s*risk\s+factors`),
	pat("item-1b", `item\s*1b[.:\-\s]+\s*unresolved\s+staff\s+comments`),
	pat("item-1", `item\s*1[.:\-\s]+\s*business\b`),
	pat("item-2", `item\s*2[.:\-\s]+\s*properties\b`),
	pat("item-3", `item\s*3[.:\-\s]+\s*legal\s+proceedings`),
	pat("item-4", `item\s*4[.:\-\s]+\s*mine\s+safety`),
	pat("item-5", `item\s*5[.:\-\s]+\s*market\s+for`),
	pat("item-6", `item\s*6[.:\-\s]+\s*(selected\s+financial\s+data|\[?reserved\]?)`),
	pat("item-7a", `item\s*7a[.:\-\s]+\s*quantitative\s+and\s+qualitative`),
	pat("item-7", `item\s*7[.:\-\s]+\s*management.?s\s+discussion`),
	pat("item-8", `item\s*8[.:\-\s]+\s*financial\s+statements`),
	pat("item-9a", `item\s*9a[.:\-\s]+\s*controls\s+and\s+procedures`),
	pat("item-9b", `item\s*9b[.:\-\s]+\s*other\s+information`),
	pat("item-9", `item\s*9[.:\-\s]+\s*changes\s+in\s+and\s+disagreements`),
	pat("item-10", `item\s*10[.:\-\s]+\s*directors,?\s+executive\s+officers`),
	pat("item-11", `item\s*11[.:\-\s]+\s*executive\s+compensation`),
	pat("item-12", `item\s*12[.:\-\s]+\s*security\s+ownership`),
	pat("item-13", `item\s*13[.:\-\s]+\s*certain\s+relationships`),
	pat("item-14", `item\s*14[.:\-\s]+\s*principal\s+account`),
	pat("item-15", `item\s*15[.:\-\s]+\s*exhibits?`),
}

var quarterlyPatterns = []sectionPattern{
	pat("part1-item1", `item\s*1[.:\-\s]+\s*(condensed\s+)?(consolidated\s+)?financial\s+statements`),
	pat("part1-item2", `item\s*2[.:\-\s]+\s*management.?s\s+discussion`),
	pat("part1-item3", `item\s*3[.:\-\s]+\s*quantitative\s+and\s+qualitative`),
	pat("part1-item4", `item\s*4[.:\-\s]+\s*controls\s+and\s+procedures`),
	pat("part2-item1a", `item\s*1a[.:\-\s]+\s*risk\s+factors`),
	pat("part2-item1", `item\s*1[.:\-\s]+\s*legal\s+proceedings`),
	pat("part2-item2", `item\s*2[.:\-\s]+\s*unregistered\s+sales`),
	pat("part2-item3", `item\s*3[.:\-\s]+\s*defaults\s+upon`),
	pat("part2-item5", `item\s*5[.:\-\s]+\s*other\s+information`),
	pat("part2-item6", `item\s*6[.:\-\s]+\s*exhibits`),
}

var foreignAnnualPatterns = []sectionPattern{
	pat("item-3", `item\s*3[.:\-\s]+\s*key\s+information`),
	pat("item-4", `item\s*4[.:\-\s]+\s*information\s+on\s+the\s+company`),
	pat("item-5", `item\s*5[.:\-\s]+\s*operating\s+and\s+financial\s+review`),
	pat("item-6", `item\s*6[.:\-\s]+\s*directors,?\s+senior\s+management`),
	pat("item-7", `item\s*7[.:\-\s]+\s*major\s+shareholders`),
	pat("item-8", `item\s*8[.:\-\s]+\s*financial\s+information`),
	pat("item-10", `item\s*10[.:\-\s]+\s*additional\s+information`),
	pat("item-15", `item\s*15[.:\-\s]+\s*controls\s+and\s+procedures`),
	pat("item-18", `item\s*18[.:\-\s]+\s*financial\s+statements`),
}

// patternsFor returns the heading table for a filing type.
func patternsFor(filingType string) []sectionPattern {
	base := strings.TrimSuffix(strings.ToUpper(filingType), "/A")
	var patterns []sectionPattern
	switch base {
	case "10-Q":
		patterns = append(patterns, quarterlyPatterns...)
	case "20-F":
		patterns = append(patterns, foreignAnnualPatterns...)
	default:
		patterns = append(patterns, annualPatterns...)
	}
	return append(patterns, financialPatterns...)
}

func matchSection(text string, patterns []sectionPattern) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	for _, p := range patterns {
		if p.re.MatchString(trimmed) {
			return p.id, true
		}
	}
	return "", false
}

// textBlock is one paragraph-level run of text; section-heading blocks
// carry the canonical id they open.
type textBlock struct {
	text      string
	sectionID string
}

// ExtractSections strips a rendered filing document to clean prose,
// locates canonical section headings, and reassembles the text with
// section markers and a guide. A document with no readable body at all is
// a fatal error; a document with a body but no recognized sections is
// returned with a warning.
func ExtractSections(data []byte, filingType string) (*DocumentText, error) {
	data = NormalizeText(data)

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Kind: ErrMalformedContent, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	root := findReadableRoot(doc)
	patterns := patternsFor(filingType)

	w := &blockWalker{patterns: patterns}
	w.walk(root)
	w.flush()

	blocks := cleanBlocks(w.blocks)
	if len(blocks) == 0 {
		return nil, &FetchError{Kind: ErrMalformedContent, Err: fmt.Errorf("document has no readable body content")}
	}

	result := &DocumentText{}
	for _, b := range blocks {
		if b.sectionID == "" {
			continue
		}
		if len(result.Sections) > 0 && result.Sections[len(result.Sections)-1].ID == b.sectionID {
			continue
		}
		result.Sections = append(result.Sections, Section{ID: b.sectionID, Heading: b.text})
	}
	if len(result.Sections) == 0 {
		result.Warnings = append(result.Warnings, warnf(WarnNoSections,
			"no canonical %s sections identified", filingType))
	}

	result.FullText = assembleText(blocks, result.Sections)
	return result, nil
}

// findReadableRoot probes for the outermost readable body, in order:
// a known content container, the body element, else the whole tree.
func findReadableRoot(doc *html.Node) *html.Node {
	if n := findContainer(doc, "div", "document"); n != nil {
		return n
	}
	if n := findElement(doc, "body"); n != nil {
		return n
	}
	return doc
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findContainer(n *html.Node, tag, class string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		for _, attr := range n.Attr {
			if attr.Key == "class" && strings.Contains(attr.Val, class) {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findContainer(c, tag, class); found != nil {
			return found
		}
	}
	return nil
}

// blockWalker renders the parse tree into paragraph blocks, tagging blocks
// whose text matches a section heading pattern.
type blockWalker struct {
	patterns []sectionPattern
	blocks   []textBlock
	cur      strings.Builder
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "head": true, "noscript": true,
	"title": true, "iframe": true, "svg": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "table": true, "tr": true, "ul": true,
	"ol": true, "li": true, "blockquote": true, "section": true,
	"article": true, "br": true, "hr": true, "td": true,
}

var headingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "b": true, "strong": true,
}

func (w *blockWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.cur.WriteString(collapseText(n.Data))
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedTags[n.Data] {
			return
		}

		if id, heading, ok := w.headingMatch(n); ok {
			w.flush()
			w.blocks = append(w.blocks, textBlock{text: heading, sectionID: id})
			return // heading text captured whole
		}

		if blockTags[n.Data] {
			w.flush()
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				w.walk(c)
			}
			w.flush()
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// headingMatch checks whether an element is a section heading: h1-h4 and
// bold/strong always qualify as candidates, p/div only when their text is
// short.
func (w *blockWalker) headingMatch(n *html.Node) (string, string, bool) {
	isCandidate := headingTags[n.Data]
	isShortBlock := n.Data == "p" || n.Data == "div"
	if !isCandidate && !isShortBlock {
		return "", "", false
	}

	text := strings.TrimSpace(collapseText(nodeText(n)))
	if text == "" {
		return "", "", false
	}
	if isShortBlock && !isCandidate && len(text) >= maxDivHeadingLen {
		return "", "", false
	}

	id, ok := matchSection(text, w.patterns)
	if !ok {
		return "", "", false
	}
	return id, text, true
}

func (w *blockWalker) flush() {
	text := strings.TrimSpace(w.cur.String())
	w.cur.Reset()
	if text != "" {
		w.blocks = append(w.blocks, textBlock{text: text})
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return b.String()
}

var (
	// hyphenBreak rejoins words hyphenated across a line break, but only
	// when both sides are lowercase letters so legitimate hyphenated
	// compounds survive.
	hyphenBreak   = regexp.MustCompile(`([a-z])-\n\s*([a-z])`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// collapseText rejoins hyphen line breaks, then collapses whitespace runs
// to a single space.
func collapseText(s string) string {
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	return whitespaceRun.ReplaceAllString(s, " ")
}

var (
	pageNumberLine = regexp.MustCompile(`^[-\s]*\d{1,4}[-\s]*$`)
	continuedLine  = regexp.MustCompile(`(?i)^\(?continued\)?[.\s]*$`)
	continuedTail  = regexp.MustCompile(`(?i)\s*\(continued\)\s*$`)
)

// cleanBlocks strips page-number-only blocks and "(Continued)" artifacts.
func cleanBlocks(blocks []textBlock) []textBlock {
	cleaned := blocks[:0]
	for _, b := range blocks {
		if b.sectionID == "" {
			if pageNumberLine.MatchString(b.text) || continuedLine.MatchString(b.text) {
				continue
			}
		}
		b.text = continuedTail.ReplaceAllString(b.text, "")
		if strings.TrimSpace(b.text) == "" {
			continue
		}
		cleaned = append(cleaned, b)
	}
	return cleaned
}

// manyBlankLines collapses runs of three or more blank lines to one.
var manyBlankLines = regexp.MustCompile(`\n{4,}`)

// assembleText builds the final narrative: a section guide, then every
// block with SECTION_START/SECTION_END markers bracketing identified
// sections. A section ends where the next begins or at document end.
func assembleText(blocks []textBlock, sections []Section) string {
	var b strings.Builder

	if len(sections) > 0 {
		b.WriteString("SECTION GUIDE\n")
		for _, s := range sections {
			fmt.Fprintf(&b, "%s: %s\n", s.ID, s.Heading)
		}
		b.WriteString("\n")
	}

	open := ""
	for _, blk := range blocks {
		if blk.sectionID != "" && blk.sectionID != open {
			if open != "" {
				fmt.Fprintf(&b, sectionEndMarker+"\n\n", open)
			}
			fmt.Fprintf(&b, sectionStartMarker+"\n", blk.sectionID)
			open = blk.sectionID
		}
		b.WriteString(blk.text)
		b.WriteString("\n\n")
	}
	if open != "" {
		fmt.Fprintf(&b, sectionEndMarker+"\n", open)
	}

	text := manyBlankLines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimRight(text, "\n") + "\n"
}

// IsIndexPage detects a manifest/index page handed to the text extractor
// by mistake: it carries a document table and matches no item sections.
func IsIndexPage(data []byte, filingType string) bool {
	if !HasManifestTable(data) {
		return false
	}
	doc, err := html.Parse(bytes.NewReader(NormalizeText(data)))
	if err != nil {
		return false
	}

	w := &blockWalker{patterns: patternsFor(filingType)}
	w.walk(findReadableRoot(doc))
	w.flush()

	// Index pages list section names nowhere, so any heading match means
	// this is filing content after all.
	for _, b := range w.blocks {
		if b.sectionID != "" {
			return false
		}
	}
	return true
}
