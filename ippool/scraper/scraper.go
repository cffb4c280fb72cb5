package scraper

import (
	"context"
	"errors"
	"regexp"
	"time"

	"cfip_nexus/internal/shared/config"
	"cfip_nexus/internal/shared/types"
	"cfip_nexus/ippool/model"
)

// TopPerSource caps how many rows a ranked source may contribute.
const TopPerSource = 5

var (
	// ErrNoTable is returned when a ranked page contains no <table>.
	ErrNoTable = errors.New("no table element found")
	// ErrLayoutDrift is returned when a table's header row no longer matches
	// the headers configured for the source.
	ErrLayoutDrift = errors.New("table layout does not match configured headers")
)

var (
	// ipv4Token finds an IPv4-shaped token anywhere in a table cell.
	ipv4Token = regexp.MustCompile(`(?:\d{1,3}\.){3}\d{1,3}`)
	// ipv4Line accepts a line that is nothing but an IPv4-shaped token.
	ipv4Line = regexp.MustCompile(`^(?:\d{1,3}\.){3}\d{1,3}$`)
)

// Source 接口定义了从一个 IP 源抓取候选地址的行为。
type Source interface {
	// Scrape fetches the source and parses it into candidates. Failures are
	// returned as errors; the caller decides how to degrade.
	Scrape(ctx context.Context) ([]model.Candidate, error)

	// Name 返回来源的名称，用于日志记录和统计。
	Name() string

	// Kind reports which parsing rules the source applies.
	Kind() types.SourceKind
}

// FetchOptions are shared by every source of a run.
type FetchOptions struct {
	Timeout   time.Duration
	UserAgent string
	ProxyURL  string // optional http://, https:// or socks5:// forward proxy
}

// New validates spec and builds the matching source.
func New(spec types.SourceSpec, opts FetchOptions) (Source, error) {
	if err := config.ValidateSource(spec); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	switch spec.Kind {
	case types.SourceKindTable:
		client, err := newHTTPClient(opts)
		if err != nil {
			return nil, err
		}
		return &TableSource{spec: spec, opts: opts, client: client}, nil
	default:
		return &PlainTextSource{spec: spec, opts: opts}, nil
	}
}

// NewAll builds one source per spec, preserving order.
func NewAll(specs []types.SourceSpec, opts FetchOptions) ([]Source, error) {
	sources := make([]Source, 0, len(specs))
	for _, spec := range specs {
		s, err := New(spec, opts)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, nil
}
