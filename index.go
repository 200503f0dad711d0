package filings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

// Resolver locates a filing's primary human-readable document and its
// machine-readable XBRL instance from the archive's document-index page,
// falling back to constructed URL guesses when the index is unusable.
type Resolver struct {
	client *Client
	logger *log.Logger
}

// NewResolver creates a manifest resolver on top of a fetch client.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client, logger: log.New(io.Discard)}
}

// SetLogger attaches a structured logger.
func (r *Resolver) SetLogger(l *log.Logger) { r.logger = l }

// Resolve fetches and parses the filing's index page, classifies every
// listed document, and selects the primary document and XBRL instance.
// When no index table can be found, or selection comes up empty, it probes
// constructed candidate URLs tier by tier.
func (r *Resolver) Resolve(ctx context.Context, ref FilingRef) (*SelectedDocuments, error) {
	entries, err := r.fetchManifest(ctx, ref)
	if err != nil && !IsKind(err, ErrNotFound) && !IsKind(err, ErrBadContent) && !IsKind(err, ErrMalformedContent) {
		return nil, err
	}

	sel := &SelectedDocuments{}
	if len(entries) > 0 {
		sel.Primary = selectPrimary(entries, ref.FilingType)
		sel.XBRLInstance = selectInstance(entries)
		sel.CompleteSubmission = selectCompleteSubmission(entries)
	}

	if sel.Primary == nil {
		r.logger.Info("manifest selection empty, probing constructed URLs",
			"cik", ref.CIK, "accession", ref.AccessionNumber)
		probed, err := r.probeFallback(ctx, ref)
		if err != nil {
			return nil, err
		}
		sel.Primary = probed
	}

	return sel, nil
}

// fetchManifest retrieves the index page, trying the dash-retained and
// dash-stripped index filename forms in sequence.
func (r *Resolver) fetchManifest(ctx context.Context, ref FilingRef) ([]DocumentEntry, error) {
	dir := FilingDirURL(ref.CIK, ref.AccessionNumber)
	candidates := []string{
		dir + "/" + FormatAccession(ref.AccessionNumber) + "-index.htm",
		dir + "/" + StripAccession(ref.AccessionNumber) + "-index.htm",
	}

	var lastErr error
	for _, url := range candidates {
		data, err := r.client.Fetch(ctx, url)
		if err != nil {
			lastErr = err
			if IsKind(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		entries, err := ParseManifest(data, dir)
		if err != nil {
			lastErr = err
			continue
		}
		return entries, nil
	}
	return nil, lastErr
}

// tableStrategy is one way of locating the document table on an index page.
// Strategies run in order until one yields at least one parsed row.
type tableStrategy struct {
	name string
	find func(doc *goquery.Document) *goquery.Selection
}

var tableStrategies = []tableStrategy{
	{"caption", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
			caption := strings.ToLower(s.Find("caption").Text())
			return strings.Contains(caption, "document format files") ||
				strings.Contains(caption, "data files")
		})
	}},
	{"css-class", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("table.tableFile, table.tableFile2")
	}},
	{"summary-attr", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
			summary, ok := s.Attr("summary")
			if !ok {
				return false
			}
			lower := strings.ToLower(summary)
			return strings.Contains(lower, "document") || strings.Contains(lower, "data files")
		})
	}},
	// Last resort: any table with at least one link in it.
	{"any-link", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Find("a[href]").Length() > 0
		})
	}},
}

// ParseManifest parses an index page's document table into entries. baseDir
// is the filing directory used to absolutize relative links.
func ParseManifest(data []byte, baseDir string) ([]DocumentEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Kind: ErrMalformedContent, Err: err}
	}

	for _, strategy := range tableStrategies {
		var entries []DocumentEntry
		strategy.find(doc).Each(func(_ int, table *goquery.Selection) {
			entries = append(entries, parseManifestTable(table, baseDir)...)
		})
		if len(entries) > 0 {
			return entries, nil
		}
	}
	return nil, &FetchError{Kind: ErrMalformedContent, Err: fmt.Errorf("no document table found")}
}

// parseManifestTable extracts one entry per linked row. Cell layout varies
// across manifest generations, so the document cell is found by looking for
// the link rather than by position.
func parseManifestTable(table *goquery.Selection, baseDir string) []DocumentEntry {
	var entries []DocumentEntry

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return // header row
		}

		var docCell *goquery.Selection
		var texts []string
		cells.Each(func(_ int, cell *goquery.Selection) {
			if docCell == nil && cell.Find("a[href]").Length() > 0 {
				docCell = cell
			}
			texts = append(texts, strings.TrimSpace(cell.Text()))
		})
		if docCell == nil {
			return
		}

		entry := DocumentEntry{}
		if len(texts) > 0 {
			if seq, err := strconv.Atoi(strings.TrimSpace(texts[0])); err == nil {
				entry.Sequence = seq
			}
		}
		if len(texts) > 1 {
			entry.Description = texts[1]
		}
		if len(texts) > 3 {
			entry.Type = texts[3]
		}

		// One cell can link the same document several ways (raw file and
		// inline-viewer form); classify every link and keep the
		// best-formatted one.
		cellText := docCell.Text()
		bestRank := -1
		docCell.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok || href == "" {
				return
			}
			format, finalURL := classifyDocument(absolutizeURL(href, baseDir), cellText, entry.Description)
			if rank := formatRank(format); rank > bestRank {
				bestRank = rank
				entry.Format = format
				entry.URL = finalURL
			}
		})
		if entry.URL == "" {
			return
		}

		// Some manifests flag the primary document explicitly.
		rowText := strings.ToLower(row.Text())
		if strings.Contains(rowText, "(primary document)") || strings.Contains(strings.ToLower(entry.Description), "primary document") {
			entry.PrimaryCandidate = true
		}

		entries = append(entries, entry)
	})

	return entries
}

// formatRank orders document formats by how much a manifest link tells us:
// the inline-viewer form beats raw HTML, an instance beats plain XML.
func formatRank(f DocFormat) int {
	switch f {
	case FormatIXBRL:
		return 4
	case FormatXBRLInstance:
		return 3
	case FormatHTML:
		return 2
	case FormatXML:
		return 1
	default:
		return 0
	}
}

// classifyDocument derives the format of one manifest link. The three
// signals (URL suffix, viewer path, iXBRL cell marker) are combined because
// none is authoritative on its own. Returns the format and the final URL,
// rewritten to the inline-viewer form for marker-flagged HTML.
func classifyDocument(href, cellText, description string) (DocFormat, string) {
	lower := strings.ToLower(href)
	descLower := strings.ToLower(description)

	if strings.Contains(href, inlineViewerPrefix) {
		return FormatIXBRL, href
	}

	isHTML := strings.HasSuffix(lower, ".htm") || strings.HasSuffix(lower, ".html")
	if isHTML {
		if strings.Contains(cellText, "iXBRL") {
			return FormatIXBRL, ViewerURL(href)
		}
		return FormatHTML, href
	}

	if strings.HasSuffix(lower, ".xml") {
		if strings.Contains(lower, "_htm.xml") || strings.Contains(descLower, "instance") {
			return FormatXBRLInstance, href
		}
		return FormatXML, href
	}
	if strings.HasSuffix(lower, ".xbrl") {
		return FormatXBRLInstance, href
	}

	return FormatUnknown, href
}

func absolutizeURL(href, baseDir string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, inlineViewerPrefix) || strings.HasPrefix(href, "/") {
		return href
	}
	return strings.TrimSuffix(baseDir, "/") + "/" + href
}

// selectionRule is one predicate in the primary-document priority chain.
// Rules are evaluated in order against every entry; the first rule with a
// match wins and ties within a rule are broken by row order.
type selectionRule struct {
	name  string
	match func(e *DocumentEntry, filingType string) bool
}

func typeMatches(e *DocumentEntry, filingType string) bool {
	want := strings.ToUpper(strings.TrimSpace(filingType))
	return strings.ToUpper(strings.TrimSpace(e.Type)) == want ||
		strings.ToUpper(strings.TrimSpace(e.Description)) == want
}

var primaryRules = []selectionRule{
	{"exact-type-ixbrl", func(e *DocumentEntry, ft string) bool {
		return typeMatches(e, ft) && e.Format == FormatIXBRL
	}},
	{"any-ixbrl", func(e *DocumentEntry, _ string) bool {
		return e.Format == FormatIXBRL
	}},
	{"exact-type-html", func(e *DocumentEntry, ft string) bool {
		return typeMatches(e, ft) && e.Format == FormatHTML
	}},
	{"flagged-primary", func(e *DocumentEntry, _ string) bool {
		return e.PrimaryCandidate
	}},
	{"sequence-one", func(e *DocumentEntry, _ string) bool {
		return e.Sequence == 1 && (e.Format == FormatHTML || e.Format == FormatIXBRL)
	}},
	{"any-html", func(e *DocumentEntry, _ string) bool {
		return e.Format == FormatHTML || e.Format == FormatIXBRL
	}},
}

func selectPrimary(entries []DocumentEntry, filingType string) *DocumentEntry {
	for _, rule := range primaryRules {
		for i := range entries {
			if rule.match(&entries[i], filingType) {
				return &entries[i]
			}
		}
	}
	return nil
}

// auxiliarySuffixes are linkbase files that look like instance documents by
// extension but never are.
var auxiliarySuffixes = []string{"_def.xml", "_cal.xml", "_lab.xml", "_pre.xml"}

func isAuxiliaryXML(url string) bool {
	lower := strings.ToLower(url)
	for _, suffix := range auxiliarySuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

var instanceRules = []selectionRule{
	{"format-instance", func(e *DocumentEntry, _ string) bool {
		return e.Format == FormatXBRLInstance
	}},
	{"description-instance", func(e *DocumentEntry, _ string) bool {
		desc := strings.ToLower(e.Description)
		return strings.Contains(desc, "xbrl instance") || strings.Contains(desc, "extracted xbrl")
	}},
	{"url-pattern", func(e *DocumentEntry, _ string) bool {
		lower := strings.ToLower(e.URL)
		if isAuxiliaryXML(lower) {
			return false
		}
		return strings.Contains(lower, "_htm.xml") ||
			strings.HasSuffix(lower, ".xbrl") ||
			strings.HasSuffix(lower, ".xml")
	}},
}

func selectInstance(entries []DocumentEntry) *DocumentEntry {
	for _, rule := range instanceRules {
		for i := range entries {
			if rule.match(&entries[i], "") {
				return &entries[i]
			}
		}
	}
	return nil
}

func selectCompleteSubmission(entries []DocumentEntry) *DocumentEntry {
	for i := range entries {
		text := strings.ToLower(entries[i].Description + " " + entries[i].Type)
		if strings.Contains(text, "complete submission") {
			return &entries[i]
		}
	}
	return nil
}

// probeFallback constructs candidate document filenames and probes each with
// the fetch client, stopping at the first URL that returns usable HTML or
// XML. Tiers run by significance: period-end-date names, filing-type names,
// then generic names.
func (r *Resolver) probeFallback(ctx context.Context, ref FilingRef) (*DocumentEntry, error) {
	dir := FilingDirURL(ref.CIK, ref.AccessionNumber)

	for _, name := range candidateFilenames(ref) {
		url := dir + "/" + name
		data, err := r.client.Fetch(ctx, url)
		if err != nil {
			if IsKind(err, ErrNotFound) || IsKind(err, ErrBadContent) {
				continue
			}
			return nil, err
		}
		if !looksLikeDocument(data) {
			continue
		}
		format := FormatHTML
		if strings.HasSuffix(name, ".xml") {
			format = FormatXML
		}
		r.logger.Info("fallback probe hit", "url", url)
		return &DocumentEntry{URL: url, Format: format, Description: "probed"}, nil
	}

	return nil, &FetchError{
		Kind: ErrDocumentNotFound,
		URL:  dir,
		Err:  fmt.Errorf("all resolution tiers exhausted for accession %s", ref.AccessionNumber),
	}
}

// candidateFilenames builds the tiered probe list for one filing.
func candidateFilenames(ref FilingRef) []string {
	ticker := strings.ToLower(ref.Ticker)
	date := strings.ReplaceAll(ref.PeriodEnd, "-", "")
	form := strings.ToLower(strings.ReplaceAll(ref.FilingType, "-", ""))

	var names []string

	// Date tier: modern primary documents are named ticker-YYYYMMDD.htm.
	if ticker != "" && len(date) == 8 {
		names = append(names,
			ticker+"-"+date+".htm",
			ticker+date+".htm",
			ticker+"_"+date+".htm",
		)
	}

	// Type tier.
	if ticker != "" && form != "" {
		names = append(names, ticker+"-"+form+".htm", ticker+form+".htm")
	}
	if form != "" {
		names = append(names, form+".htm", "form"+form+".htm")
	}

	// Generic tier.
	names = append(names, "form.htm", "filing.htm", "document.htm")

	return names
}

// looksLikeDocument reports whether fetched bytes are HTML or XML content
// rather than an error page or binary blob.
func looksLikeDocument(data []byte) bool {
	head := strings.ToLower(string(bytes.TrimSpace(data[:min(len(data), 512)])))
	return strings.Contains(head, "<html") ||
		strings.Contains(head, "<!doctype html") ||
		strings.HasPrefix(head, "<?xml") ||
		strings.Contains(head, "<xbrl")
}

// HasManifestTable reports whether a page carries a recognizable document
// table. Used to detect an index page handed to the text extractor by
// mistake; the loose any-link strategy is deliberately excluded here.
func HasManifestTable(data []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return false
	}
	for _, strategy := range tableStrategies[:3] {
		if strategy.find(doc).Length() > 0 {
			return true
		}
	}
	return false
}
