package filings

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestPage = `<html><body>
<table class="tableFile" summary="Document Format Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>1</td><td>10-K</td><td><a href="/ix?doc=/Archives/edgar/data/320193/000032019323000106/aapl-20230930.htm">aapl-20230930.htm</a> iXBRL</td><td>10-K</td><td>8096863</td></tr>
<tr><td>5</td><td>Certification</td><td><a href="ex311.htm">ex311.htm</a></td><td>EX-31.1</td><td>12044</td></tr>
</table>
<table class="tableFile" summary="Data Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>75</td><td>XBRL INSTANCE DOCUMENT</td><td><a href="aapl-20230930_htm.xml">aapl-20230930_htm.xml</a></td><td>XML</td><td>9000000</td></tr>
<tr><td>76</td><td>XBRL TAXONOMY EXTENSION LABEL LINKBASE</td><td><a href="aapl-20230930_lab.xml">aapl-20230930_lab.xml</a></td><td>XML</td><td>50000</td></tr>
</table>
</body></html>`

func TestParseManifest(t *testing.T) {
	baseDir := "https://www.sec.gov/Archives/edgar/data/320193/000032019323000106"
	entries, err := ParseManifest([]byte(manifestPage), baseDir)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	want := DocumentEntry{
		Sequence:    1,
		Description: "10-K",
		Type:        "10-K",
		URL:         "/ix?doc=/Archives/edgar/data/320193/000032019323000106/aapl-20230930.htm",
		Format:      FormatIXBRL,
	}
	if diff := cmp.Diff(want, entries[0]); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "EX-31.1", entries[1].Type)
	assert.Equal(t, baseDir+"/ex311.htm", entries[1].URL)
	assert.Equal(t, FormatHTML, entries[1].Format)
	assert.Equal(t, FormatXBRLInstance, entries[2].Format)
}

// A document cell can carry both a raw link and an inline-viewer link; the
// better-formatted one wins regardless of link order.
func TestParseManifestCellWithMultipleLinks(t *testing.T) {
	baseDir := "https://www.sec.gov/Archives/edgar/data/320193/000032019324000081"
	page := `<html><body>
<table class="tableFile" summary="Document Format Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>1</td><td>10-Q</td><td><a href="aapl-20240629.htm">aapl-20240629.htm</a> <a href="/ix?doc=/Archives/edgar/data/320193/000032019324000081/aapl-20240629.htm">Inline Viewer</a></td><td>10-Q</td><td>100</td></tr>
</table></body></html>`

	entries, err := ParseManifest([]byte(page), baseDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FormatIXBRL, entries[0].Format)
	assert.Equal(t, "/ix?doc=/Archives/edgar/data/320193/000032019324000081/aapl-20240629.htm", entries[0].URL)
}

func TestParseManifestNoTables(t *testing.T) {
	_, err := ParseManifest([]byte("<html><body><p>nothing here</p></body></html>"), "")
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrMalformedContent))
}

func TestSelectPrimaryPrefersMatchingIXBRL(t *testing.T) {
	entries, err := ParseManifest([]byte(manifestPage), "https://www.sec.gov/Archives/edgar/data/320193/000032019323000106")
	require.NoError(t, err)

	primary := selectPrimary(entries, "10-K")
	require.NotNil(t, primary)
	assert.Equal(t, 1, primary.Sequence)
	assert.Equal(t, FormatIXBRL, primary.Format)
	assert.NotEqual(t, "EX-31.1", primary.Type, "exhibits must never be selected as primary")
}

// An iXBRL document and a plain HTML document with the same declared type:
// the iXBRL one wins regardless of row order.
func TestSelectPrimaryIXBRLOverHTML(t *testing.T) {
	entries := []DocumentEntry{
		{Sequence: 1, Type: "10-Q", Description: "10-Q", URL: "plain.htm", Format: FormatHTML},
		{Sequence: 2, Type: "10-Q", Description: "10-Q", URL: "/ix?doc=/inline.htm", Format: FormatIXBRL},
	}
	primary := selectPrimary(entries, "10-Q")
	require.NotNil(t, primary)
	assert.Equal(t, FormatIXBRL, primary.Format)
}

func TestSelectPrimaryFallbackRules(t *testing.T) {
	tests := []struct {
		name    string
		entries []DocumentEntry
		wantURL string
	}{
		{
			name: "flagged primary beats sequence",
			entries: []DocumentEntry{
				{Sequence: 1, Type: "EX-99", URL: "ex99.htm", Format: FormatUnknown},
				{Sequence: 3, Type: "GRAPHIC", URL: "doc.htm", Format: FormatHTML, PrimaryCandidate: true},
			},
			wantURL: "doc.htm",
		},
		{
			name: "sequence one html",
			entries: []DocumentEntry{
				{Sequence: 2, Type: "EX-10", URL: "ex10.htm", Format: FormatHTML},
				{Sequence: 1, Type: "", URL: "main.htm", Format: FormatHTML},
			},
			wantURL: "main.htm",
		},
		{
			name:    "nothing usable",
			entries: []DocumentEntry{{Sequence: 1, URL: "img.jpg", Format: FormatUnknown}},
			wantURL: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := selectPrimary(tt.entries, "10-K")
			if tt.wantURL == "" {
				assert.Nil(t, primary)
				return
			}
			require.NotNil(t, primary)
			assert.Equal(t, tt.wantURL, primary.URL)
		})
	}
}

func TestSelectInstanceSkipsLinkbases(t *testing.T) {
	entries := []DocumentEntry{
		{URL: "aapl-20230930_lab.xml", Format: FormatXML},
		{URL: "aapl-20230930_pre.xml", Format: FormatXML},
		{URL: "aapl-20230930_htm.xml", Format: FormatXBRLInstance},
	}
	instance := selectInstance(entries)
	require.NotNil(t, instance)
	assert.Equal(t, "aapl-20230930_htm.xml", instance.URL)
}

func TestCandidateFilenames(t *testing.T) {
	ref := FilingRef{Ticker: "AAPL", FilingType: "10-K", PeriodEnd: "2024-06-28"}
	names := candidateFilenames(ref)

	// Date tier outranks type tier outranks generic tier.
	require.Greater(t, len(names), 3)
	assert.Equal(t, "aapl-20240628.htm", names[0])
	assert.Contains(t, names, "aapl-10k.htm")
	assert.Equal(t, "document.htm", names[len(names)-1])
}

func TestResolveFallbackProbe(t *testing.T) {
	// Index page exists but carries no recognizable table; the date-tier
	// probe must locate the document without manifest parsing succeeding.
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "-index.htm"):
			fmt.Fprint(w, "<html><body><p>unexpected layout</p></body></html>")
		case strings.HasSuffix(r.URL.Path, "/aapl-20240628.htm"):
			fmt.Fprint(w, "<html><body>Annual report content</body></html>")
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	oldBase := ArchiveBaseURL
	ArchiveBaseURL = srv.URL
	defer func() { ArchiveBaseURL = oldBase }()

	resolver := NewResolver(newTestClient(t))
	docs, err := resolver.Resolve(context.Background(), FilingRef{
		Ticker:          "AAPL",
		CIK:             "320193",
		AccessionNumber: "0000320193-24-000069",
		FilingType:      "10-K",
		PeriodEnd:       "2024-06-28",
	})
	require.NoError(t, err)
	require.NotNil(t, docs.Primary)
	assert.True(t, strings.HasSuffix(docs.Primary.URL, "/aapl-20240628.htm"))
	assert.Equal(t, FormatHTML, docs.Primary.Format)
}

func TestResolveExhaustedTiers(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	oldBase := ArchiveBaseURL
	ArchiveBaseURL = srv.URL
	defer func() { ArchiveBaseURL = oldBase }()

	resolver := NewResolver(newTestClient(t))
	_, err := resolver.Resolve(context.Background(), FilingRef{
		Ticker:          "AAPL",
		CIK:             "320193",
		AccessionNumber: "0000320193-24-000069",
		FilingType:      "10-K",
		PeriodEnd:       "2024-06-28",
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrDocumentNotFound))
}

func TestHasManifestTable(t *testing.T) {
	assert.True(t, HasManifestTable([]byte(manifestPage)))
	assert.False(t, HasManifestTable([]byte("<html><body><table><tr><td><a href='x.htm'>x</a></td></tr></table></body></html>")),
		"bare any-link tables must not count as manifests")
	assert.False(t, HasManifestTable([]byte("<html><body><p>prose</p></body></html>")))
}

func TestClassifyDocument(t *testing.T) {
	tests := []struct {
		name       string
		href       string
		cellText   string
		desc       string
		wantFormat DocFormat
	}{
		{"viewer link", "/ix?doc=/a/b.htm", "", "", FormatIXBRL},
		{"html with marker", "https://x/a.htm", "a.htm iXBRL", "", FormatIXBRL},
		{"plain html", "https://x/a.htm", "a.htm", "", FormatHTML},
		{"instance by suffix", "https://x/a_htm.xml", "", "", FormatXBRLInstance},
		{"instance by description", "https://x/a.xml", "", "XBRL Instance Document", FormatXBRLInstance},
		{"plain xml", "https://x/a.xml", "", "", FormatXML},
		{"xbrl extension", "https://x/a.xbrl", "", "", FormatXBRLInstance},
		{"unknown", "https://x/a.jpg", "", "", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, _ := classifyDocument(tt.href, tt.cellText, tt.desc)
			assert.Equal(t, tt.wantFormat, format)
		})
	}
}
