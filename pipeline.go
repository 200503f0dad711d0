package filings

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// Thresholds are the data-quality trip wires for one processed filing.
// Values are policy, not correctness: crossing one attaches a warning to
// the result, it never fails the run.
type Thresholds struct {
	MinDocumentBytes int // primary document smaller than this is suspicious
	MinFactCount     int // fewer extracted facts than this is suspicious
}

// DefaultThresholds match typical modern filings, which run hundreds of
// kilobytes and carry hundreds of tagged facts.
var DefaultThresholds = Thresholds{
	MinDocumentBytes: 10_000,
	MinFactCount:     20,
}

// Result is everything one filing run produced.
type Result struct {
	Ref            FilingRef
	Fiscal         FiscalLabel
	Documents      *SelectedDocuments
	StructuredText string
	NarrativeText  string
	Sections       []Section
	FactCount      int
	Warnings       []Warning
}

// Pipeline processes one filing at a time: resolve documents, fetch, run
// both extractors, serialize. All network access goes through the shared
// fetch client, so concurrent pipelines still respect one rate limit.
type Pipeline struct {
	client     *Client
	resolver   *Resolver
	logger     *log.Logger
	thresholds Thresholds
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithThresholds overrides the data-quality thresholds.
func WithThresholds(t Thresholds) PipelineOption {
	return func(p *Pipeline) { p.thresholds = t }
}

// WithPipelineLogger attaches a structured logger.
func WithPipelineLogger(l *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
		p.resolver.SetLogger(l)
	}
}

// NewPipeline creates a pipeline over a shared fetch client.
func NewPipeline(client *Client, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		client:     client,
		resolver:   NewResolver(client),
		logger:     log.New(io.Discard),
		thresholds: DefaultThresholds,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full pipeline for one filing. Warnings accumulate on
// the result; only resolution failure, an unreadable primary document, or
// an invalid FilingRef are fatal.
func (p *Pipeline) Process(ctx context.Context, ref FilingRef) (*Result, error) {
	fiscal, err := ResolveFiscal(ref.Ticker, ref.PeriodEnd, ref.FilingType)
	if err != nil {
		return nil, fmt.Errorf("filing %s: %w", ref.AccessionNumber, err)
	}

	res := &Result{Ref: ref, Fiscal: fiscal}

	docs, err := p.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	res.Documents = docs

	p.logger.Info("resolved filing documents",
		"ticker", ref.Ticker, "accession", ref.AccessionNumber,
		"primary", docs.Primary.URL, "has_instance", docs.XBRLInstance != nil)

	primary := docs.Primary
	data, err := p.client.Fetch(ctx, RawDocumentURL(primary.URL))
	if err != nil {
		return nil, err
	}
	data = NormalizeText(data)

	// A manifest page in place of filing content means selection picked the
	// wrong link; re-resolve from the page itself.
	if IsIndexPage(data, ref.FilingType) {
		res.Warnings = append(res.Warnings, warnf(WarnIndexPage,
			"primary document %s is an index page, re-resolving", primary.URL))
		primary, data, err = p.reResolve(ctx, ref, data)
		if err != nil {
			return nil, err
		}
		data = NormalizeText(data)
	}

	if len(data) < p.thresholds.MinDocumentBytes {
		res.Warnings = append(res.Warnings, warnf(WarnSmallDocument,
			"primary document is %d bytes (threshold %d)", len(data), p.thresholds.MinDocumentBytes))
	}

	text, err := ExtractSections(data, ref.FilingType)
	if err != nil {
		return nil, err
	}
	res.NarrativeText = text.FullText
	res.Sections = text.Sections
	res.Warnings = append(res.Warnings, text.Warnings...)

	fs := p.extractFacts(ctx, docs, primary, data)
	res.FactCount = len(fs.Facts)
	res.Warnings = append(res.Warnings, fs.Warnings...)
	if len(fs.Facts) > 0 && len(fs.Facts) < p.thresholds.MinFactCount {
		res.Warnings = append(res.Warnings, warnf(WarnNoFacts,
			"only %d facts extracted (threshold %d)", len(fs.Facts), p.thresholds.MinFactCount))
	}

	res.StructuredText = Serialize(SerializeInput{
		Ref:      ref,
		Fiscal:   fiscal,
		Facts:    fs.Facts,
		Contexts: fs.Contexts,
		Units:    fs.Units,
		Sections: res.Sections,
	})

	p.logger.Info("processed filing",
		"ticker", ref.Ticker, "accession", ref.AccessionNumber,
		"fiscal", fiscal.String(), "facts", res.FactCount,
		"sections", len(res.Sections), "warnings", len(res.Warnings))

	return res, nil
}

// reResolve parses the manifest table out of a misdelivered index page and
// fetches the primary document it names.
func (p *Pipeline) reResolve(ctx context.Context, ref FilingRef, indexData []byte) (*DocumentEntry, []byte, error) {
	dir := FilingDirURL(ref.CIK, ref.AccessionNumber)
	entries, err := ParseManifest(indexData, dir)
	if err != nil {
		return nil, nil, err
	}
	primary := selectPrimary(entries, ref.FilingType)
	if primary == nil {
		return nil, nil, &FetchError{
			Kind: ErrDocumentNotFound,
			URL:  dir,
			Err:  fmt.Errorf("index page lists no usable primary document"),
		}
	}
	data, err := p.client.Fetch(ctx, RawDocumentURL(primary.URL))
	if err != nil {
		return nil, nil, err
	}
	return primary, data, nil
}

// extractFacts prefers the standalone instance document; inline XBRL in the
// primary document is the fallback. Extraction failure degrades to an empty
// fact set with warnings, never an error.
func (p *Pipeline) extractFacts(ctx context.Context, docs *SelectedDocuments, primary *DocumentEntry, primaryData []byte) *FactSet {
	if docs.XBRLInstance != nil {
		data, err := p.client.Fetch(ctx, docs.XBRLInstance.URL)
		if err == nil {
			if fs, err := Extract(data, HintInstance); err == nil {
				return fs
			}
		}
		p.logger.Warn("instance document unusable, trying inline XBRL",
			"url", docs.XBRLInstance.URL)
	}

	if primary.Format == FormatIXBRL || DetectFormat(primaryData) == HintInline {
		if fs, err := Extract(primaryData, HintInline); err == nil {
			return fs
		}
	}

	return &FactSet{Warnings: []Warning{
		warnf(WarnNoFacts, "no XBRL source yielded facts for this filing"),
	}}
}
