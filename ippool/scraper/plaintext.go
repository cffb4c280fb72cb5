package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"

	"cfip_nexus/internal/shared/logger"
	"cfip_nexus/internal/shared/types"
	"cfip_nexus/ippool/model"
)

// PlainTextSource 实现了 Source 接口，用于抓取每行一个 IP 的纯文本列表。
type PlainTextSource struct {
	spec types.SourceSpec
	opts FetchOptions
}

// Name 返回来源的名称。
func (s *PlainTextSource) Name() string {
	return s.spec.Name
}

func (s *PlainTextSource) Kind() types.SourceKind {
	return types.SourceKindPlainText
}

// Scrape downloads the list and keeps every line that is exactly an address.
func (s *PlainTextSource) Scrape(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("IPPool/Scraper")
	l.Info().Str("source", s.Name()).Str("url", s.spec.URL).Msg("Starting scrape...")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}

	// A fresh collector per run, so callbacks never pile up across runs.
	c := colly.NewCollector(
		colly.UserAgent(s.opts.UserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.opts.Timeout)
	if s.opts.ProxyURL != "" {
		if err := c.SetProxy(s.opts.ProxyURL); err != nil {
			return nil, fmt.Errorf("%s: failed to set proxy: %w", s.Name(), err)
		}
	}

	var body []byte
	var scrapeErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		l.Warn().Err(err).Int("status_code", r.StatusCode).Str("source", s.Name()).Msg("Scrape request failed.")
		scrapeErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(s.spec.URL); err != nil && scrapeErr == nil {
		scrapeErr = err
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), scrapeErr)
	}

	candidates := ParsePlainText(body, s.Name())
	l.Info().Int("count", len(candidates)).Str("source", s.Name()).Msg("Scrape finished.")
	return candidates, nil
}

// ParsePlainText returns, in document order, every line of body that is a
// bare IPv4 token after trimming. No cap and no deduplication are applied.
func ParsePlainText(body []byte, source string) []model.Candidate {
	var candidates []model.Candidate
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if !ipv4Line.MatchString(line) {
			continue
		}
		candidates = append(candidates, model.Candidate{Address: line, Source: source})
	}
	return candidates
}
