package filings

import (
	"fmt"
	"regexp"
	"strings"
)

// FilingRef is the immutable identity of one filing, supplied by an upstream
// filing-lookup collaborator. Dates are YYYY-MM-DD strings as the archive
// publishes them.
type FilingRef struct {
	Ticker          string
	CIK             string
	AccessionNumber string
	FilingType      string // "10-K", "10-Q", "20-F"
	FilingDate      string
	PeriodEnd       string
}

// DocFormat classifies a manifest-listed document. No single manifest signal
// is authoritative; the format is derived from URL suffix, declared type
// text, and inline-viewer markers together.
type DocFormat int

const (
	FormatUnknown DocFormat = iota
	FormatIXBRL
	FormatHTML
	FormatXML
	FormatXBRLInstance
)

func (f DocFormat) String() string {
	switch f {
	case FormatIXBRL:
		return "iXBRL"
	case FormatHTML:
		return "HTML"
	case FormatXML:
		return "XML"
	case FormatXBRLInstance:
		return "XBRL_INSTANCE"
	default:
		return "UNKNOWN"
	}
}

// DocumentEntry is one row of a filing's manifest table.
type DocumentEntry struct {
	Sequence         int
	Type             string // declared type column, e.g. "10-K", "EX-31.1"
	Description      string
	URL              string
	Format           DocFormat
	PrimaryCandidate bool
}

// SelectedDocuments is the output of manifest resolution. Primary and
// XBRLInstance are selected independently and may point at the same file.
type SelectedDocuments struct {
	Primary            *DocumentEntry
	XBRLInstance       *DocumentEntry
	CompleteSubmission *DocumentEntry
}

// inlineViewerPrefix is the archive's inline-XBRL viewer path segment. A
// manifest link routed through the viewer marks the target as iXBRL.
const inlineViewerPrefix = "/ix?doc="

// ViewerURL rewrites a document URL to its inline-viewer form.
func ViewerURL(url string) string {
	if strings.Contains(url, inlineViewerPrefix) {
		return url
	}
	path := url
	if strings.HasPrefix(url, ArchiveBaseURL) {
		path = strings.TrimPrefix(url, ArchiveBaseURL)
	}
	return inlineViewerPrefix + path
}

// RawDocumentURL strips the inline-viewer prefix so the underlying document
// bytes can be fetched directly.
func RawDocumentURL(url string) string {
	if i := strings.Index(url, inlineViewerPrefix); i >= 0 {
		return url[i+len(inlineViewerPrefix):]
	}
	return url
}

var accessionDigits = regexp.MustCompile(`^\d{18}$`)

// FormatAccession returns the dashed form of an accession number
// (0000320193-23-000106). Already-dashed input passes through.
func FormatAccession(accession string) string {
	stripped := strings.ReplaceAll(accession, "-", "")
	if accessionDigits.MatchString(stripped) {
		return stripped[:10] + "-" + stripped[10:12] + "-" + stripped[12:]
	}
	return accession
}

// StripAccession returns the accession number with dashes removed, the form
// used in archive directory paths.
func StripAccession(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}

// PadCIK zero-pads a CIK to the 10 digits some archive endpoints require.
func PadCIK(cik string) string {
	return fmt.Sprintf("%010s", strings.TrimLeft(cik, "0"))
}

// TrimCIK removes leading zeros, the form used in archive directory paths.
func TrimCIK(cik string) string {
	trimmed := strings.TrimLeft(cik, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// FilingDirURL is the archive directory holding every file of one filing.
func FilingDirURL(cik, accession string) string {
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s", ArchiveBaseURL, TrimCIK(cik), StripAccession(accession))
}

// isAnnualForm reports whether the filing type is an annual report. The
// /A amendment suffix does not change the answer.
func isAnnualForm(filingType string) bool {
	base := strings.TrimSuffix(strings.ToUpper(filingType), "/A")
	return base == "10-K" || base == "20-F"
}
