package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"cfip_nexus/internal/shared/types"
)

// MaxColumnIndex bounds the column indices a table source may name. Anything
// above it cannot belong to a real listing table and is rejected as a typo.
const MaxColumnIndex = 63

const (
	defaultTimeoutSeconds    = 20
	defaultGeoTimeoutSeconds = 10
	defaultGeoRatePerMinute  = 40
	defaultGeoConcurrency    = 4
	defaultGeoEndpoint       = "http://ip-api.com/json/{ip}?fields=status,countryCode"
	defaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
	defaultOutputPath        = "ip.txt"
	defaultGitHubAPIBase     = "https://api.github.com"
	defaultTelegramAPIBase   = "https://api.telegram.org"
)

// LoadIni loads the cfip.ini behaviour file, fills defaults and applies the
// environment overrides. It is the only place environment variables are read.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	ApplyDefaults(cfg)
	overrideFromEnv(&cfg.LogConf.Level, "CFIP_LOG_LEVEL")
	overrideFromEnv(&cfg.GitHubConf.Token, "GITHUB_TOKEN")
	overrideFromEnv(&cfg.GitHubConf.Repo, "GITHUB_REPO")
	overrideFromEnv(&cfg.TelegramConf.BotToken, "TELEGRAM_BOT_TOKEN")
	overrideFromEnv(&cfg.TelegramConf.ChatID, "TELEGRAM_CHAT_ID")
	overrideFromEnvInt(&cfg.HarvestConf.TimeoutSeconds, "CFIP_TIMEOUT_SECONDS")
	return nil
}

// ApplyDefaults fills every zero-valued tunable with its default.
func ApplyDefaults(cfg *types.Config) {
	if cfg.HarvestConf.TimeoutSeconds <= 0 {
		cfg.HarvestConf.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.HarvestConf.UserAgent == "" {
		cfg.HarvestConf.UserAgent = defaultUserAgent
	}
	if cfg.GeoConf.Endpoint == "" {
		cfg.GeoConf.Endpoint = defaultGeoEndpoint
	}
	if cfg.GeoConf.TimeoutSeconds <= 0 {
		cfg.GeoConf.TimeoutSeconds = defaultGeoTimeoutSeconds
	}
	if cfg.GeoConf.RatePerMinute < 0 {
		cfg.GeoConf.RatePerMinute = 0
	} else if cfg.GeoConf.RatePerMinute == 0 {
		cfg.GeoConf.RatePerMinute = defaultGeoRatePerMinute
	}
	if cfg.GeoConf.Concurrency <= 0 {
		cfg.GeoConf.Concurrency = defaultGeoConcurrency
	}
	if cfg.OutputConf.Path == "" {
		cfg.OutputConf.Path = defaultOutputPath
	}
	if cfg.GitHubConf.APIBase == "" {
		cfg.GitHubConf.APIBase = defaultGitHubAPIBase
	}
	if cfg.TelegramConf.APIBase == "" {
		cfg.TelegramConf.APIBase = defaultTelegramAPIBase
	}
}

// sourcesFile is the on-disk shape of sources.yaml.
type sourcesFile struct {
	Sources []types.SourceSpec `yaml:"sources"`
}

// LoadSources reads the source list from a YAML file.
func LoadSources(fileName string) ([]types.SourceSpec, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", fileName, err)
	}
	for i := range f.Sources {
		f.Sources[i].Kind = types.SourceKind(strings.ToLower(string(f.Sources[i].Kind)))
	}
	return f.Sources, nil
}

// Validate checks the whole configuration. Every problem is reported, not
// just the first one.
func Validate(cfg *types.Config, sources []types.SourceSpec) error {
	var errs []error

	if len(sources) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	seen := make(map[string]struct{}, len(sources))
	for i, spec := range sources {
		if err := ValidateSource(spec); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
		}
		if _, dup := seen[spec.Name]; dup {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate source name %q", i, spec.Name))
		}
		seen[spec.Name] = struct{}{}
	}

	if !strings.Contains(cfg.GeoConf.Endpoint, "{ip}") {
		errs = append(errs, fmt.Errorf("geo endpoint %q has no {ip} placeholder", cfg.GeoConf.Endpoint))
	}
	if cfg.HarvestConf.ProxyURL != "" {
		u, err := url.Parse(cfg.HarvestConf.ProxyURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5") || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid proxy_url %q", cfg.HarvestConf.ProxyURL))
		}
	}
	if cfg.GitHubConf.Enabled {
		if cfg.GitHubConf.Token == "" || cfg.GitHubConf.Repo == "" {
			errs = append(errs, errors.New("github upload enabled but token or repo is empty"))
		} else if strings.Count(cfg.GitHubConf.Repo, "/") != 1 {
			errs = append(errs, fmt.Errorf("github repo %q is not owner/name", cfg.GitHubConf.Repo))
		}
	}
	if cfg.TelegramConf.Enabled && (cfg.TelegramConf.BotToken == "" || cfg.TelegramConf.ChatID == "") {
		errs = append(errs, errors.New("telegram enabled but bot_token or chat_id is empty"))
	}

	return errors.Join(errs...)
}

// ValidateSource checks one source entry in isolation.
func ValidateSource(spec types.SourceSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return errors.New("source name is empty")
	}
	u, err := url.Parse(spec.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source %q: invalid url %q", spec.Name, spec.URL)
	}

	switch spec.Kind {
	case types.SourceKindTable:
		if !validColumn(spec.AddressColumn) || !validColumn(spec.SpeedColumn) {
			return fmt.Errorf("source %q: column indices (%d, %d) out of range 0..%d",
				spec.Name, spec.AddressColumn, spec.SpeedColumn, MaxColumnIndex)
		}
		if spec.AddressColumn == spec.SpeedColumn {
			return fmt.Errorf("source %q: address and speed share column %d", spec.Name, spec.AddressColumn)
		}
		for col, text := range spec.ExpectHeaders {
			if !validColumn(col) {
				return fmt.Errorf("source %q: expect_headers column %d out of range", spec.Name, col)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("source %q: expect_headers column %d has empty text", spec.Name, col)
			}
		}
	case types.SourceKindPlainText:
		if len(spec.ExpectHeaders) > 0 {
			return fmt.Errorf("source %q: expect_headers only applies to table sources", spec.Name)
		}
	default:
		return fmt.Errorf("source %q: unknown kind %q", spec.Name, spec.Kind)
	}
	return nil
}

func validColumn(i int) bool {
	return i >= 0 && i <= MaxColumnIndex
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
