package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cfip_nexus/internal/shared/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadIni_DefaultsAndEnv(t *testing.T) {
	path := writeFile(t, "cfip.ini", `
[log]
level = debug

[harvest]
timeout_seconds = 15

[github]
enabled = true
repo = someone/ips
path = cf_ip
`)
	t.Setenv("GITHUB_TOKEN", "tok-from-env")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")

	cfg := new(types.Config)
	if err := LoadIni(cfg, path); err != nil {
		t.Fatal(err)
	}

	if cfg.LogConf.Level != "debug" {
		t.Errorf("expected level 'debug', got %q", cfg.LogConf.Level)
	}
	if cfg.HarvestConf.TimeoutSeconds != 15 {
		t.Errorf("expected timeout 15, got %d", cfg.HarvestConf.TimeoutSeconds)
	}
	if cfg.GeoConf.Endpoint != defaultGeoEndpoint {
		t.Errorf("expected default geo endpoint, got %q", cfg.GeoConf.Endpoint)
	}
	if cfg.GeoConf.RatePerMinute != defaultGeoRatePerMinute {
		t.Errorf("expected default rate, got %d", cfg.GeoConf.RatePerMinute)
	}
	if cfg.OutputConf.Path != "ip.txt" {
		t.Errorf("expected default output path, got %q", cfg.OutputConf.Path)
	}
	if !cfg.GitHubConf.Enabled || cfg.GitHubConf.Repo != "someone/ips" {
		t.Errorf("github section not mapped: %+v", cfg.GitHubConf)
	}
	if cfg.GitHubConf.Token != "tok-from-env" {
		t.Errorf("expected token from env, got %q", cfg.GitHubConf.Token)
	}
	if cfg.TelegramConf.ChatID != "12345" {
		t.Errorf("expected chat id from env, got %q", cfg.TelegramConf.ChatID)
	}
}

func TestLoadSources(t *testing.T) {
	path := writeFile(t, "sources.yaml", `
sources:
  - name: cf-164746
    kind: Table
    url: https://ip.164746.xyz/
    address_column: 0
    speed_column: 5
    expect_headers:
      5: 速度
  - name: fission
    kind: plaintext
    url: https://raw.githubusercontent.com/lijboy/CloudflareCDNFission/main/Fission_ip.txt
`)
	sources, err := LoadSources(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Kind != types.SourceKindTable {
		t.Errorf("expected kind to be lower-cased to 'table', got %q", sources[0].Kind)
	}
	if sources[0].SpeedColumn != 5 || sources[0].ExpectHeaders[5] != "速度" {
		t.Errorf("table fields not mapped: %+v", sources[0])
	}
	if sources[1].Kind != types.SourceKindPlainText {
		t.Errorf("expected plaintext kind, got %q", sources[1].Kind)
	}
}

func TestLoadSources_MissingFile(t *testing.T) {
	if _, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		spec    types.SourceSpec
		wantErr string
	}{
		{
			name: "valid table",
			spec: types.SourceSpec{Name: "a", Kind: types.SourceKindTable, URL: "https://a.example/", AddressColumn: 0, SpeedColumn: 5},
		},
		{
			name: "valid plaintext",
			spec: types.SourceSpec{Name: "b", Kind: types.SourceKindPlainText, URL: "http://b.example/ips.txt"},
		},
		{
			name:    "column out of range",
			spec:    types.SourceSpec{Name: "c", Kind: types.SourceKindTable, URL: "https://c.example/", AddressColumn: 0, SpeedColumn: 500},
			wantErr: "out of range",
		},
		{
			name:    "negative column",
			spec:    types.SourceSpec{Name: "c", Kind: types.SourceKindTable, URL: "https://c.example/", AddressColumn: -1, SpeedColumn: 2},
			wantErr: "out of range",
		},
		{
			name:    "shared column",
			spec:    types.SourceSpec{Name: "d", Kind: types.SourceKindTable, URL: "https://d.example/", AddressColumn: 1, SpeedColumn: 1},
			wantErr: "share column",
		},
		{
			name:    "unknown kind",
			spec:    types.SourceSpec{Name: "e", Kind: "json", URL: "https://e.example/"},
			wantErr: "unknown kind",
		},
		{
			name:    "bad url",
			spec:    types.SourceSpec{Name: "f", Kind: types.SourceKindPlainText, URL: "ftp://f.example/"},
			wantErr: "invalid url",
		},
		{
			name:    "headers on plaintext",
			spec:    types.SourceSpec{Name: "g", Kind: types.SourceKindPlainText, URL: "https://g.example/", ExpectHeaders: map[int]string{0: "IP"}},
			wantErr: "only applies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSource(tt.spec)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := new(types.Config)
	ApplyDefaults(cfg)
	cfg.GeoConf.Endpoint = "http://geo.example/lookup"
	cfg.GitHubConf.Enabled = true

	sources := []types.SourceSpec{
		{Name: "dup", Kind: types.SourceKindPlainText, URL: "https://a.example/"},
		{Name: "dup", Kind: types.SourceKindPlainText, URL: "https://b.example/"},
	}

	err := Validate(cfg, sources)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate source name", "{ip} placeholder", "github upload enabled"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_NoSources(t *testing.T) {
	cfg := new(types.Config)
	ApplyDefaults(cfg)
	if err := Validate(cfg, nil); err == nil {
		t.Fatal("expected error for empty source list")
	}
}
