package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"cfip_nexus/internal/shared/logger"
	"cfip_nexus/internal/shared/types"
	"cfip_nexus/ippool/model"
	"cfip_nexus/ippool/speed"
)

// TableSource 实现了 Source 接口，用于抓取带有测速表格的优选 IP 页面。
type TableSource struct {
	spec   types.SourceSpec
	opts   FetchOptions
	client *http.Client
}

// Name 返回来源的名称。
func (s *TableSource) Name() string {
	return s.spec.Name
}

func (s *TableSource) Kind() types.SourceKind {
	return types.SourceKindTable
}

// Scrape fetches the page and returns its fastest rows.
func (s *TableSource) Scrape(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("IPPool/Scraper")
	l.Info().Str("source", s.Name()).Str("url", s.spec.URL).Msg("Starting scrape...")

	body, err := fetch(ctx, s.client, s.spec.URL, s.opts.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	defer body.Close()

	candidates, err := ParseTable(body, s.spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}

	l.Info().Int("count", len(candidates)).Str("source", s.Name()).Msg("Scrape finished.")
	return candidates, nil
}

// ParseTable extracts (address, speed) rows from the first table of an HTML
// document. Row 0 is the header. Rows that are too short, have no IPv4 token
// in the address cell, or carry a malformed speed are skipped. The result is
// sorted by normalized speed, fastest first, ties kept in row order, and cut
// to TopPerSource entries.
func ParseTable(r io.Reader, spec types.SourceSpec) ([]model.Candidate, error) {
	l := logger.WithComponent("IPPool/Scraper")

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML document: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	// Only rows that belong to this table, not to tables nested inside it.
	rows := table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest("table").IsSelection(table)
	})

	if len(spec.ExpectHeaders) > 0 {
		if err := checkHeaders(rows.First(), spec.ExpectHeaders); err != nil {
			return nil, err
		}
	}

	need := max(spec.AddressColumn, spec.SpeedColumn) + 1
	var candidates []model.Candidate
	skipped := 0

	rows.Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < need {
			skipped++
			return
		}

		address := ipv4Token.FindString(cells.Eq(spec.AddressColumn).Text())
		if address == "" {
			skipped++
			return
		}

		raw := strings.Join(strings.Fields(cells.Eq(spec.SpeedColumn).Text()), " ")
		if !speed.Valid(raw) {
			skipped++
			return
		}

		candidates = append(candidates, model.Candidate{
			Address: address,
			Speed:   raw,
			Source:  spec.Name,
		})
	})

	if skipped > 0 {
		l.Debug().Int("skipped", skipped).Str("source", spec.Name).Msg("Skipped rows without a usable address or speed.")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return speed.Normalize(candidates[i].Speed) > speed.Normalize(candidates[j].Speed)
	})
	if len(candidates) > TopPerSource {
		candidates = candidates[:TopPerSource]
	}
	return candidates, nil
}

// checkHeaders compares the header row against the configured expectations.
func checkHeaders(header *goquery.Selection, expect map[int]string) error {
	cells := header.ChildrenFiltered("td, th")
	for col, want := range expect {
		if col >= cells.Length() {
			return fmt.Errorf("%w: header has %d cells, column %d expected %q", ErrLayoutDrift, cells.Length(), col, want)
		}
		got := strings.TrimSpace(cells.Eq(col).Text())
		if !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
			return fmt.Errorf("%w: column %d is %q, expected %q", ErrLayoutDrift, col, got, want)
		}
	}
	return nil
}
