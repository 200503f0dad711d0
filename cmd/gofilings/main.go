package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	filings "github.com/halden-labs/go-filings"
)

func main() {
	var (
		email   string
		cik     string
		ticker  string
		form    string
		count   int
		workers int
		rate    float64
		outDir  string
		verbose bool
	)

	flag.StringVar(&email, "email", "", "Contact email for the archive User-Agent header (or FILINGS_EMAIL env var)")
	flag.StringVar(&email, "e", "", "Contact email (shorthand)")
	flag.StringVar(&cik, "cik", "", "Company CIK to process")
	flag.StringVar(&ticker, "ticker", "", "Ticker label for outputs (defaults to the company's primary ticker)")
	flag.StringVar(&form, "form", "10-K", "Filing type to process (10-K, 10-Q, 20-F)")
	flag.IntVar(&count, "n", 1, "Number of most recent filings to process")
	flag.IntVar(&workers, "workers", filings.DefaultWorkers, "Concurrent filings (max 3)")
	flag.Float64Var(&rate, "rate", filings.DefaultMaxPerSecond, "Max requests per second (max 10)")
	flag.StringVar(&outDir, "out", "output", "Output directory root")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gofilings [options]\n\n")
		fmt.Fprintf(os.Stderr, "Fetch, extract, and serialize regulatory filings.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  gofilings -cik 320193 -form 10-K -n 2\n")
		fmt.Fprintf(os.Stderr, "  gofilings -cik 789019 -form 10-Q -n 4 -workers 3 -out ./data\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %s    Contact email for the archive User-Agent header\n", filings.ContactEmailEnvVar)
	}

	flag.Parse()

	// .env is optional; real config comes from flags and the environment.
	_ = godotenv.Load()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(cik, ticker, form, email, outDir, count, workers, rate, logger); err != nil {
		logger.Fatal("run failed", "err", err)
	}
}

func run(cik, ticker, form, email, outDir string, count, workers int, rate float64, logger *log.Logger) error {
	if cik == "" {
		flag.Usage()
		return fmt.Errorf("-cik is required")
	}
	if email == "" {
		var err error
		email, err = filings.GetContactEmail()
		if err != nil {
			return err
		}
	}

	client, err := filings.NewClient(email,
		filings.WithLimiter(filings.NewLimiter(rate)),
		filings.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()

	lookup := filings.NewLookup(client)
	subs, err := lookup.Submissions(ctx, cik)
	if err != nil {
		return fmt.Errorf("failed to fetch filing history for CIK %s: %w", cik, err)
	}

	refs := filings.Latest(subs.Refs(), form, count)
	if len(refs) == 0 {
		return fmt.Errorf("no %s filings found for %s (CIK %s)", form, subs.Name, cik)
	}
	if ticker != "" {
		for i := range refs {
			refs[i].Ticker = ticker
		}
	}

	logger.Info("processing filings",
		"company", subs.Name, "form", form, "count", len(refs), "workers", workers)

	pipeline := filings.NewPipeline(client, filings.WithPipelineLogger(logger))
	batch := pipeline.ProcessBatch(ctx, refs, workers)

	for _, res := range batch.Results {
		if err := writeResult(outDir, res); err != nil {
			return err
		}
		for _, w := range res.Warnings {
			logger.Warn("data quality", "accession", res.Ref.AccessionNumber, "warning", w.String())
		}
	}
	for _, err := range batch.Errors {
		logger.Error("filing failed", "err", err)
	}

	logger.Info("done", "succeeded", len(batch.Results), "failed", len(batch.Errors))
	if len(batch.Results) == 0 && len(batch.Errors) > 0 {
		return fmt.Errorf("all %d filings failed", len(batch.Errors))
	}
	return nil
}

// writeResult stores both artifacts under out/<ticker-or-cik>/<fiscal>/.
func writeResult(outDir string, res *filings.Result) error {
	name := strings.ToLower(res.Ref.Ticker)
	if name == "" {
		name = res.Ref.CIK
	}
	dir := filepath.Join(outDir, name, res.Fiscal.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, "facts.txt"), []byte(res.StructuredText), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "narrative.txt"), []byte(res.NarrativeText), 0o644)
}
