package filings

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// filingServer serves a minimal filing: index page, primary document, and
// XBRL instance, under the real archive path layout.
func filingServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := "/Archives/edgar/data/320193/000032019323000106"

	mux := http.NewServeMux()
	mux.HandleFunc(dir+"/0000320193-23-000106-index.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<table class="tableFile" summary="Document Format Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>1</td><td>10-K</td><td><a href="aapl-20230930.htm">aapl-20230930.htm</a> iXBRL</td><td>10-K</td><td>900</td></tr>
</table>
<table class="tableFile" summary="Data Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>75</td><td>XBRL INSTANCE DOCUMENT</td><td><a href="aapl-20230930_htm.xml">aapl-20230930_htm.xml</a></td><td>XML</td><td>900</td></tr>
</table>
</body></html>`)
	})
	mux.HandleFunc(dir+"/aapl-20230930.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, annualReportDoc)
	})
	mux.HandleFunc(dir+"/aapl-20230930_htm.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, instanceDoc)
	})
	mux.HandleFunc("/", http.NotFound)

	return httptest.NewServer(mux)
}

func withArchiveBase(t *testing.T, base string) {
	t.Helper()
	old := ArchiveBaseURL
	ArchiveBaseURL = base
	t.Cleanup(func() { ArchiveBaseURL = old })
}

var testRef = FilingRef{
	Ticker:          "AAPL",
	CIK:             "320193",
	AccessionNumber: "0000320193-23-000106",
	FilingType:      "10-K",
	FilingDate:      "2023-11-03",
	PeriodEnd:       "2023-09-30",
}

func TestPipelineProcess(t *testing.T) {
	srv := filingServer(t)
	defer srv.Close()
	withArchiveBase(t, srv.URL)

	pipeline := NewPipeline(newTestClient(t),
		WithThresholds(Thresholds{MinDocumentBytes: 100, MinFactCount: 1}))
	res, err := pipeline.Process(context.Background(), testRef)
	require.NoError(t, err)

	assert.Equal(t, "FY2023-annual", res.Fiscal.String())
	assert.Equal(t, 3, res.FactCount)

	require.NotNil(t, res.Documents.Primary)
	assert.Equal(t, FormatIXBRL, res.Documents.Primary.Format)
	require.NotNil(t, res.Documents.XBRLInstance)

	assert.Contains(t, res.NarrativeText, "SECTION GUIDE")
	assert.Contains(t, res.NarrativeText, "[SECTION_START: item-1]")

	assert.Contains(t, res.StructuredText, "FILINGTEXT | v1")
	assert.Contains(t, res.StructuredText, "FACT | NetIncomeLoss | 96,995,000,000 | p-1 | USD | -6")
	assert.Contains(t, res.StructuredText, "SECTION | item-1 | Item 1. Business")

	// The instance document's dropped context and dangling fact surface as
	// warnings on the result.
	codes := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnContextDropped)
	assert.Contains(t, codes, WarnDanglingRef)
}

func TestPipelineSmallDocumentWarning(t *testing.T) {
	srv := filingServer(t)
	defer srv.Close()
	withArchiveBase(t, srv.URL)

	pipeline := NewPipeline(newTestClient(t)) // default thresholds
	res, err := pipeline.Process(context.Background(), testRef)
	require.NoError(t, err)

	codes := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnSmallDocument)
}

func TestPipelineReResolvesIndexPage(t *testing.T) {
	dir := "/Archives/edgar/data/320193/000032019323000106"
	mux := http.NewServeMux()

	// The outer index selects inner-index.htm as primary; that page is
	// itself a manifest and must trigger one re-resolution hop.
	manifest := func(docHref, docType string) string {
		return fmt.Sprintf(`<html><body>
<table class="tableFile" summary="Document Format Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>1</td><td>%[2]s</td><td><a href="%[1]s">%[1]s</a></td><td>%[2]s</td><td>900</td></tr>
</table>
</body></html>`, docHref, docType)
	}
	mux.HandleFunc(dir+"/0000320193-23-000106-index.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, manifest("inner-index.htm", "10-K"))
	})
	mux.HandleFunc(dir+"/inner-index.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, manifest("real-doc.htm", "10-K"))
	})
	mux.HandleFunc(dir+"/real-doc.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, annualReportDoc)
	})
	mux.HandleFunc("/", http.NotFound)

	srv := httptest.NewServer(mux)
	defer srv.Close()
	withArchiveBase(t, srv.URL)

	pipeline := NewPipeline(newTestClient(t),
		WithThresholds(Thresholds{MinDocumentBytes: 100, MinFactCount: 1}))
	res, err := pipeline.Process(context.Background(), testRef)
	require.NoError(t, err)

	codes := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnIndexPage)
	assert.Contains(t, res.NarrativeText, "[SECTION_START: item-1]")
}

func TestPipelineInvalidRef(t *testing.T) {
	pipeline := NewPipeline(newTestClient(t))
	_, err := pipeline.Process(context.Background(), FilingRef{
		Ticker: "AAPL", FilingType: "10-K", PeriodEnd: "not-a-date",
	})
	assert.Error(t, err)
}

func TestProcessBatch(t *testing.T) {
	srv := filingServer(t)
	defer srv.Close()
	withArchiveBase(t, srv.URL)

	missing := testRef
	missing.AccessionNumber = "0000320193-23-999999"
	missing.Ticker = "AAPL"

	pipeline := NewPipeline(newTestClient(t),
		WithThresholds(Thresholds{MinDocumentBytes: 100, MinFactCount: 1}))
	batch := pipeline.ProcessBatch(context.Background(), []FilingRef{testRef, missing}, 2)

	require.Len(t, batch.Results, 1)
	assert.Equal(t, testRef.AccessionNumber, batch.Results[0].Ref.AccessionNumber)

	require.Len(t, batch.Errors, 1)
	assert.True(t, IsKind(batch.Errors[0], ErrDocumentNotFound))
	assert.True(t, strings.Contains(batch.Errors[0].Error(), "999999"))
}
