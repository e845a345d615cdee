package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"specscrape/internal/model"
	"specscrape/internal/observability"
	"specscrape/internal/repository"

	log "github.com/sirupsen/logrus"
)

type Lister interface {
	List(ctx context.Context, productType string) ([]model.SitemapEntry, error)
}

// RowWriter is the CSV side of a run.
type RowWriter interface {
	AppendRow(row model.FlatRow) error
	Header() []string
	Rows() int
	URLs() []string
	Rotate(now time.Time) (string, error)
}

// Archiver receives a copy of every written row. Its errors are not fatal.
type Archiver interface {
	Save(ctx context.Context, p model.ProductRecord, row model.FlatRow) error
}

type Summary struct {
	RunID         string
	Listed        int
	Ignored       int
	AlreadyDone   int
	Deferred      int
	Processed     int
	Skipped       int
	FetchFailures int
	ParseFailures int
	Reconciled    int
	Orphaned      int
}

// Runner drives one scraping run: list the sitemap, skip what progress
// already has, then fetch, parse, flatten and write the rest one by one.
type Runner struct {
	ProductType string
	// BatchSize caps how many new products one run handles; <= 0 is unlimited.
	BatchSize int
	Lister    Lister
	Fetcher   Fetcher
	Source    ProductSource
	Progress  repository.ProgressStore
	Writer    RowWriter
	Archive   Archiver
	RunID     string
	Now       func() time.Time
}

func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: r.RunID}
	logger := log.WithFields(log.Fields{"run_id": r.RunID, "type": r.ProductType})

	if err := r.Progress.Load(ctx); err != nil {
		return sum, err
	}
	if err := r.syncWithCSV(ctx, logger, &sum); err != nil {
		return sum, err
	}
	logger.WithField("count", r.Progress.Len()).Info("loaded progress")

	logger.Info("fetching sitemap")
	entries, err := r.Lister.List(ctx, r.ProductType)
	if err != nil {
		return sum, fmt.Errorf("list sitemap: %w", err)
	}
	sum.Listed = len(entries)

	targets := r.pending(entries, &sum)
	logger.WithFields(log.Fields{
		"listed":       sum.Listed,
		"ignored":      sum.Ignored,
		"already_done": sum.AlreadyDone,
		"batch":        len(targets),
		"deferred":     sum.Deferred,
	}).Info("found products")
	if len(targets) == 0 {
		logger.Info("all products are already processed")
		return sum, nil
	}

	// progress for a row that reached the CSV is written even when the run is
	// being interrupted
	commitCtx := context.WithoutCancel(ctx)

	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted")
			return sum, err
		}
		entry := logger.WithField("url", t.Endpoint)

		p, err := r.scrape(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn("run interrupted")
				return sum, ctx.Err()
			}
			sum.Skipped++
			if errors.Is(err, ErrParse) {
				sum.ParseFailures++
				observability.ProductsTotal.WithLabelValues(observability.ResultSkippedParse).Inc()
			} else {
				sum.FetchFailures++
				observability.ProductsTotal.WithLabelValues(observability.ResultSkippedFetch).Inc()
			}
			entry.WithError(err).Warn("skipping product")
			continue
		}

		row := Flatten(p)
		if err := r.Writer.AppendRow(row); err != nil {
			return sum, err
		}
		r.Progress.MarkDone(t.Endpoint)
		if err := r.Progress.Persist(commitCtx); err != nil {
			return sum, err
		}
		sum.Processed++
		observability.ProductsTotal.WithLabelValues(observability.ResultProcessed).Inc()
		observability.CSVColumns.Set(float64(len(r.Writer.Header())))

		if r.Archive != nil {
			if err := r.Archive.Save(commitCtx, p, row); err != nil {
				observability.ArchiveErrorsTotal.Inc()
				entry.WithError(err).Warn("could not archive row")
			}
		}
		entry.Infof("(%d/%d) fetched: %s", i+1, len(targets), p.Name)
	}

	return sum, nil
}

func (r *Runner) scrape(ctx context.Context, t Target) (model.ProductRecord, error) {
	url, err := r.Source.ProductURL(t)
	if err != nil {
		return model.ProductRecord{}, err
	}
	body, err := r.Fetcher.Fetch(ctx, url)
	if err != nil {
		return model.ProductRecord{}, err
	}
	return r.Source.Parse(body, t)
}

// pending filters sitemap entries down to this run's work list, in sitemap order.
func (r *Runner) pending(entries []model.SitemapEntry, sum *Summary) []Target {
	pattern := NewEndpointPattern(r.ProductType)
	seen := make(map[string]struct{}, len(entries))
	var targets []Target
	for _, e := range entries {
		endpoint, ok := pattern.Match(e.URL)
		if !ok {
			sum.Ignored++
			continue
		}
		if _, dup := seen[endpoint]; dup {
			continue
		}
		seen[endpoint] = struct{}{}
		if r.Progress.Contains(endpoint) {
			sum.AlreadyDone++
			observability.ProductsTotal.WithLabelValues(observability.ResultAlreadyDone).Inc()
			continue
		}
		targets = append(targets, Target{SitemapEntry: e, Endpoint: endpoint})
	}
	if r.BatchSize > 0 && len(targets) > r.BatchSize {
		sum.Deferred = len(targets) - r.BatchSize
		targets = targets[:r.BatchSize]
	}
	return targets
}

// syncWithCSV restores the progress/CSV pairing before any work starts.
// With no progress at all the existing CSV is moved aside, so a deleted
// progress file means a clean full re-scrape. With progress but no rows
// (a deleted CSV) progress is dropped. Otherwise rows whose progress entry
// was lost to a crash are marked done and progress entries whose row is
// gone are forgotten.
func (r *Runner) syncWithCSV(ctx context.Context, logger *log.Entry, sum *Summary) error {
	if r.Progress.Len() == 0 {
		if r.Writer.Rows() == 0 {
			return nil
		}
		now := time.Now
		if r.Now != nil {
			now = r.Now
		}
		backup, err := r.Writer.Rotate(now())
		if err != nil {
			return err
		}
		logger.WithField("backup", backup).Warn("no progress found, existing csv moved aside")
		return nil
	}

	if r.Writer.Rows() == 0 {
		sum.Orphaned = r.Progress.Len()
		logger.WithField("count", sum.Orphaned).Warn("csv has no rows, dropping progress")
		return r.Progress.Reset(ctx)
	}

	if !slices.Contains(r.Writer.Header(), model.ColURL) {
		// written without a URL column, nothing to compare against
		return nil
	}
	inCSV := map[string]struct{}{}
	for _, u := range r.Writer.URLs() {
		inCSV[u] = struct{}{}
		if !r.Progress.Contains(u) {
			r.Progress.MarkDone(u)
			sum.Reconciled++
		}
	}
	for _, u := range r.Progress.Done() {
		if _, ok := inCSV[u]; !ok {
			r.Progress.Forget(u)
			sum.Orphaned++
		}
	}
	if sum.Reconciled == 0 && sum.Orphaned == 0 {
		return nil
	}
	logger.WithFields(log.Fields{
		"reconciled": sum.Reconciled,
		"orphaned":   sum.Orphaned,
	}).Warn("progress and csv disagree, following the csv")
	return r.Progress.Persist(ctx)
}
