// Package geo attaches a country code to an address. Lookups are best-effort:
// every failure degrades to model.UnknownCountry.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cfip_nexus/internal/shared/logger"
	"cfip_nexus/ippool/model"
)

// Options configures a Resolver.
type Options struct {
	// Endpoint is a URL template; "{ip}" is replaced by the address.
	Endpoint      string
	Timeout       time.Duration
	RatePerMinute int // 0 disables pacing
}

// geoAPIResponse covers the field names used by ip-api.com, ipinfo.io and
// ipapi.co style services.
type geoAPIResponse struct {
	Status         string `json:"status"`
	CountryCode    string `json:"countryCode"`
	CountryCodeAlt string `json:"country_code"`
	Country        string `json:"country"`
}

// Resolver looks up country codes and remembers every answer, including
// failures, so an address is queried at most once per Resolver.
type Resolver struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a Resolver. Use one per run.
func NewResolver(opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	r := &Resolver{
		endpoint: opts.Endpoint,
		client:   &http.Client{Timeout: opts.Timeout},
		cache:    make(map[string]string),
	}
	if opts.RatePerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	return r
}

// Resolve returns the two-letter country code for ip, or "XX".
func (r *Resolver) Resolve(ctx context.Context, ip string) string {
	r.mu.Lock()
	if code, ok := r.cache[ip]; ok {
		r.mu.Unlock()
		return code
	}
	r.mu.Unlock()

	code, err := r.lookup(ctx, ip)
	if err != nil {
		l := logger.WithComponent("IPPool/Geo")
		l.Warn().Err(err).Str("ip", ip).Msg("Geo lookup failed, using fallback code.")
		code = model.UnknownCountry
	}

	r.mu.Lock()
	r.cache[ip] = code
	r.mu.Unlock()
	return code
}

func (r *Resolver) lookup(ctx context.Context, ip string) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	apiURL := strings.ReplaceAll(r.endpoint, "{ip}", url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("geo api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var apiResp geoAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("decode geo api response: %w", err)
	}
	if apiResp.Status != "" && apiResp.Status != "success" {
		return "", fmt.Errorf("geo api returned status %q", apiResp.Status)
	}

	for _, c := range []string{apiResp.CountryCode, apiResp.CountryCodeAlt, apiResp.Country} {
		if code, ok := countryCode(c); ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("geo api response has no country code")
}

// countryCode accepts exactly two ASCII letters.
func countryCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return "", false
	}
	for _, ch := range s {
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z') {
			return "", false
		}
	}
	return strings.ToUpper(s), true
}
