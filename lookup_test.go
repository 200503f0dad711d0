package filings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const submissionsJSON = `{
  "cik": "320193",
  "name": "Apple Inc.",
  "tickers": ["AAPL"],
  "filings": {
    "recent": {
      "accessionNumber": ["0000320193-23-000106", "0000320193-23-000077", "0000320193-23-000064"],
      "filingDate": ["2023-11-03", "2023-08-04", "2023-05-05"],
      "reportDate": ["2023-09-30", "2023-07-01", "2023-04-01"],
      "form": ["10-K", "10-Q", "10-Q"],
      "primaryDocument": ["aapl-20230930.htm", "aapl-20230701.htm", "aapl-20230401.htm"]
    }
  }
}`

func TestParseSubmissions(t *testing.T) {
	subs, err := ParseSubmissions(strings.NewReader(submissionsJSON))
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", subs.Name)
	assert.Equal(t, "AAPL", subs.Ticker())

	refs := subs.Refs()
	require.Len(t, refs, 3)
	assert.Equal(t, FilingRef{
		Ticker:          "AAPL",
		CIK:             "320193",
		AccessionNumber: "0000320193-23-000106",
		FilingType:      "10-K",
		FilingDate:      "2023-11-03",
		PeriodEnd:       "2023-09-30",
	}, refs[0])
}

func TestFilterByForm(t *testing.T) {
	subs, err := ParseSubmissions(strings.NewReader(submissionsJSON))
	require.NoError(t, err)
	refs := subs.Refs()

	tenQs := FilterByForm(refs, "10-Q", false)
	require.Len(t, tenQs, 2)
	assert.Equal(t, "2023-07-01", tenQs[0].PeriodEnd)

	assert.Len(t, FilterByForm(refs, "10-K", false), 1)
	assert.Empty(t, FilterByForm(refs, "20-F", false))
}

func TestFilterByFormAmended(t *testing.T) {
	refs := []FilingRef{
		{AccessionNumber: "a", FilingType: "10-K"},
		{AccessionNumber: "b", FilingType: "10-K/A"},
	}
	assert.Len(t, FilterByForm(refs, "10-K", false), 1)
	assert.Len(t, FilterByForm(refs, "10-K", true), 2)
}

func TestLatest(t *testing.T) {
	subs, err := ParseSubmissions(strings.NewReader(submissionsJSON))
	require.NoError(t, err)

	latest := Latest(subs.Refs(), "10-Q", 1)
	require.Len(t, latest, 1)
	assert.Equal(t, "0000320193-23-000077", latest[0].AccessionNumber)

	assert.Len(t, Latest(subs.Refs(), "10-Q", 5), 2)
}
