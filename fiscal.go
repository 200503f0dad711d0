package filings

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FiscalLabel names the fiscal year and period a filing covers. It is
// derived, never stored: the same FilingRef always recomputes the same
// label.
type FiscalLabel struct {
	Year   int
	Period string // "annual", "Q1".."Q4"
}

func (l FiscalLabel) String() string {
	return fmt.Sprintf("FY%d-%s", l.Year, l.Period)
}

//go:embed fiscal_overrides.yaml
var fiscalOverridesYAML []byte

type fiscalOverride struct {
	Ticker   string `yaml:"ticker"`
	FYEMonth int    `yaml:"fye_month"`
	FYEDay   int    `yaml:"fye_day"`
}

type fiscalOverrideFile struct {
	Overrides []fiscalOverride `yaml:"overrides"`
}

var fiscalOverrides map[string]fiscalOverride

func init() {
	var file fiscalOverrideFile
	if err := yaml.Unmarshal(fiscalOverridesYAML, &file); err != nil {
		panic(fmt.Sprintf("failed to parse fiscal_overrides.yaml: %v", err))
	}
	fiscalOverrides = make(map[string]fiscalOverride, len(file.Overrides))
	for _, o := range file.Overrides {
		fiscalOverrides[strings.ToUpper(o.Ticker)] = o
	}
}

// HasFiscalOverride reports whether a ticker has a non-calendar fiscal-year
// override on record.
func HasFiscalOverride(ticker string) bool {
	_, ok := fiscalOverrides[strings.ToUpper(ticker)]
	return ok
}

// ResolveFiscal maps (ticker, period-end date, filing type) to a fiscal
// label. Companies in the override table use their own fiscal-quarter
// boundaries; everyone else is assumed to follow the calendar year. Annual
// forms (10-K, 20-F) are always labeled "annual". The function is pure:
// no I/O, deterministic for a given input triple.
func ResolveFiscal(ticker, periodEnd, filingType string) (FiscalLabel, error) {
	end, err := time.Parse("2006-01-02", periodEnd)
	if err != nil {
		return FiscalLabel{}, fmt.Errorf("invalid period-end date %q: %w", periodEnd, err)
	}

	year, quarter := fiscalYearQuarter(ticker, end)

	if isAnnualForm(filingType) {
		return FiscalLabel{Year: year, Period: "annual"}, nil
	}
	return FiscalLabel{Year: year, Period: fmt.Sprintf("Q%d", quarter)}, nil
}

// fiscalYearQuarter computes the fiscal year and quarter for a period end.
// With a fiscal-year-end month M, the month after M starts Q1 of the next
// fiscal year: a September FYE company assigns Oct-Dec to Q1 of FY+1.
func fiscalYearQuarter(ticker string, end time.Time) (int, int) {
	month := int(end.Month())
	year := end.Year()

	override, ok := fiscalOverrides[strings.ToUpper(ticker)]
	if !ok {
		return year, (month-1)/3 + 1
	}

	fyeMonth := override.FYEMonth

	// 52/53-week calendars anchored to a month end ("Saturday nearest
	// Jan 31") can end a few days into the following month. Fold those
	// period ends back onto the nominal year-end month.
	if override.FYEDay >= 28 && end.Day() <= 6 && month == fyeMonth%12+1 {
		month = fyeMonth
		if fyeMonth == 12 {
			year--
		}
	}

	monthsIntoYear := ((month - fyeMonth - 1) % 12 + 12) % 12
	quarter := monthsIntoYear/3 + 1

	fiscalYear := year
	if month > fyeMonth {
		fiscalYear = year + 1
	}
	return fiscalYear, quarter
}
