package filings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// SubmissionsBaseURL serves per-company filing histories as JSON.
const SubmissionsBaseURL = "https://data.sec.gov"

// CompanySubmissions is the archive's per-company filing history. Only the
// fields the lookup needs are mapped.
type CompanySubmissions struct {
	CIK     string   `json:"cik"`
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent filingArrays `json:"recent"`
	} `json:"filings"`
}

// filingArrays holds the history as parallel arrays; index i across all
// arrays describes one filing.
type filingArrays struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// Lookup resolves tickers and filing types to concrete FilingRefs using the
// archive's submissions API. It is the upstream collaborator of Pipeline:
// its output feeds Process.
type Lookup struct {
	client *Client
}

// NewLookup creates a filing lookup on top of a fetch client.
func NewLookup(client *Client) *Lookup {
	return &Lookup{client: client}
}

// Submissions fetches the filing history for one CIK.
func (l *Lookup) Submissions(ctx context.Context, cik string) (*CompanySubmissions, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", SubmissionsBaseURL, PadCIK(cik))
	data, err := l.client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var subs CompanySubmissions
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, &FetchError{Kind: ErrMalformedContent, URL: url, Err: err}
	}
	if subs.CIK == "" {
		subs.CIK = TrimCIK(cik)
	}
	return &subs, nil
}

// ParseSubmissions reads a submissions JSON from a reader, for local files
// and tests.
func ParseSubmissions(r io.Reader) (*CompanySubmissions, error) {
	var subs CompanySubmissions
	if err := json.NewDecoder(r).Decode(&subs); err != nil {
		return nil, fmt.Errorf("failed to parse submissions JSON: %w", err)
	}
	return &subs, nil
}

// Ticker returns the company's primary ticker, or empty.
func (s *CompanySubmissions) Ticker() string {
	if len(s.Tickers) > 0 {
		return s.Tickers[0]
	}
	return ""
}

// Refs flattens the parallel arrays into FilingRefs, newest first, matching
// the archive's own ordering.
func (s *CompanySubmissions) Refs() []FilingRef {
	recent := s.Filings.Recent
	refs := make([]FilingRef, 0, len(recent.AccessionNumber))
	for i := range recent.AccessionNumber {
		ref := FilingRef{
			Ticker:          s.Ticker(),
			CIK:             s.CIK,
			AccessionNumber: recent.AccessionNumber[i],
		}
		if i < len(recent.Form) {
			ref.FilingType = recent.Form[i]
		}
		if i < len(recent.FilingDate) {
			ref.FilingDate = recent.FilingDate[i]
		}
		if i < len(recent.ReportDate) {
			ref.PeriodEnd = recent.ReportDate[i]
		}
		refs = append(refs, ref)
	}
	return refs
}

// FilterByForm keeps refs whose filing type matches form exactly, or its
// amended variant when amended is true.
func FilterByForm(refs []FilingRef, form string, amended bool) []FilingRef {
	want := strings.ToUpper(strings.TrimSpace(form))
	var out []FilingRef
	for _, ref := range refs {
		got := strings.ToUpper(strings.TrimSpace(ref.FilingType))
		if got == want || (amended && got == want+"/A") {
			out = append(out, ref)
		}
	}
	return out
}

// Latest returns the n newest refs of the given form.
func Latest(refs []FilingRef, form string, n int) []FilingRef {
	matched := FilterByForm(refs, form, false)
	if len(matched) > n {
		matched = matched[:n]
	}
	return matched
}
