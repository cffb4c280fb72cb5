package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cfip_nexus/internal/shared/logger"
	"cfip_nexus/internal/shared/types"
	"cfip_nexus/ippool/model"
	"cfip_nexus/ippool/scraper"
)

const defaultGeoConcurrency = 4

// GeoResolver maps an address to a country code. It must not fail: lookups
// that cannot be answered return model.UnknownCountry.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) string
}

// Options tunes a run.
type Options struct {
	GeoConcurrency int
	Now            func() time.Time
}

// Aggregator 是 IP 池模块的总控制器：并发抓取、合并、去重、补充地理信息。
type Aggregator struct {
	sources  []scraper.Source
	resolver GeoResolver
	opts     Options
}

// sourceResult is what one fetch task hands back to the join point.
type sourceResult struct {
	candidates []model.Candidate
	err        error
	duration   time.Duration
}

// New creates an Aggregator over sources, which are processed in the given
// order when results are merged.
func New(sources []scraper.Source, resolver GeoResolver, opts Options) (*Aggregator, error) {
	if len(sources) == 0 {
		return nil, errors.New("aggregator needs at least one source")
	}
	if resolver == nil {
		return nil, errors.New("aggregator needs a geo resolver")
	}
	if opts.GeoConcurrency <= 0 {
		opts.GeoConcurrency = defaultGeoConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{sources: sources, resolver: resolver, opts: opts}, nil
}

// Run executes one full fetch -> merge -> dedup -> enrich -> serialize cycle.
// Source failures only shrink the result; a run with no records at all is
// returned with StatusDegraded.
func (a *Aggregator) Run(ctx context.Context) *model.RunResult {
	l := logger.WithComponent("IPPool/Aggregator")
	start := a.opts.Now()
	runID := uuid.NewString()
	l.Info().Str("run_id", runID).Int("sources", len(a.sources)).Msg("Starting new harvest cycle...")

	results := a.fetchAll(ctx)

	records, reports := a.merge(results)
	a.enrich(ctx, records)

	res := &model.RunResult{
		RunID:     runID,
		StartedAt: start,
		Records:   records,
		Reports:   reports,
		Artifact:  records.Serialize(),
		Status:    model.StatusOK,
	}
	if len(records) == 0 {
		res.Status = model.StatusDegraded
	}
	res.Duration = a.opts.Now().Sub(start)

	if res.Degraded() {
		l.Warn().Str("run_id", runID).Strs("failed_sources", res.FailedSources()).Msg("Harvest produced no records; run is degraded.")
	} else {
		l.Info().
			Str("run_id", runID).
			Int("records", len(records)).
			Strs("failed_sources", res.FailedSources()).
			Dur("duration", res.Duration).
			Msg("Harvest cycle finished.")
	}
	return res
}

// fetchAll scrapes every source concurrently. Ranked sources share a pool
// sized to their count; plain-text sources run as independent tasks. Each
// task writes only its own slot, and the slots are read after both groups
// have been joined.
func (a *Aggregator) fetchAll(ctx context.Context) []sourceResult {
	results := make([]sourceResult, len(a.sources))

	rankedCount := 0
	for _, s := range a.sources {
		if s.Kind() == types.SourceKindTable {
			rankedCount++
		}
	}

	var ranked, unranked errgroup.Group
	ranked.SetLimit(max(rankedCount, 1))

	for i, s := range a.sources {
		group := &unranked
		if s.Kind() == types.SourceKindTable {
			group = &ranked
		}
		group.Go(func() error {
			results[i] = scrapeOne(ctx, s)
			return nil
		})
	}

	ranked.Wait()
	unranked.Wait()
	return results
}

// scrapeOne isolates a single source: errors and panics become an empty
// contribution.
func scrapeOne(ctx context.Context, s scraper.Source) (res sourceResult) {
	l := logger.WithComponent("IPPool/Aggregator")
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = sourceResult{err: fmt.Errorf("%s: panic: %v", s.Name(), p)}
		}
		res.duration = time.Since(start)
		if res.err != nil {
			l.Warn().Err(res.err).Str("source", s.Name()).Msg("Source failed, continuing without it.")
		}
	}()

	candidates, err := s.Scrape(ctx)
	if err != nil {
		return sourceResult{err: err}
	}
	return sourceResult{candidates: candidates}
}

// merge concatenates ranked sources then plain-text sources, each group in
// declaration order, and keeps the first record seen for every address.
func (a *Aggregator) merge(results []sourceResult) (model.ResultSet, []model.SourceReport) {
	reports := make([]model.SourceReport, len(a.sources))
	for i, s := range a.sources {
		reports[i] = model.SourceReport{
			Name:     s.Name(),
			Kind:     s.Kind(),
			Fetched:  len(results[i].candidates),
			Err:      results[i].err,
			Duration: results[i].duration,
		}
	}

	order := make([]int, 0, len(a.sources))
	for i, s := range a.sources {
		if s.Kind() == types.SourceKindTable {
			order = append(order, i)
		}
	}
	for i, s := range a.sources {
		if s.Kind() != types.SourceKindTable {
			order = append(order, i)
		}
	}

	seen := make(map[string]struct{})
	var records model.ResultSet
	for _, idx := range order {
		for _, c := range results[idx].candidates {
			if _, dup := seen[c.Address]; dup {
				continue
			}
			seen[c.Address] = struct{}{}
			records = append(records, model.EnrichedRecord{
				Address: c.Address,
				Speed:   c.Speed,
				Source:  c.Source,
			})
			reports[idx].Kept++
		}
	}
	return records, reports
}

// enrich resolves country codes with bounded parallelism. Each task writes
// its own index, so record order is untouched.
func (a *Aggregator) enrich(ctx context.Context, records model.ResultSet) {
	var g errgroup.Group
	g.SetLimit(a.opts.GeoConcurrency)
	for i := range records {
		g.Go(func() error {
			records[i].CountryCode = a.resolver.Resolve(ctx, records[i].Address)
			return nil
		})
	}
	g.Wait()
}
