package types

// SourceKind selects the parsing rules applied to a source's response body.
type SourceKind string

const (
	// SourceKindTable is a ranked source: an HTML page with one data table
	// carrying an address column and a reported-speed column.
	SourceKindTable SourceKind = "table"
	// SourceKindPlainText is an unranked source: one address per line.
	SourceKindPlainText SourceKind = "plaintext"
)

// SourceSpec describes one configured IP source. It is loaded from
// configs/sources.yaml and validated once before any request is made.
type SourceSpec struct {
	Name string     `yaml:"name"`
	Kind SourceKind `yaml:"kind"`
	URL  string     `yaml:"url"`

	// --- table sources only ---
	AddressColumn int `yaml:"address_column"`
	SpeedColumn   int `yaml:"speed_column"`
	// ExpectHeaders maps a column index to text its header cell must contain.
	// Empty means the layout is trusted and non-matching rows are skipped.
	ExpectHeaders map[int]string `yaml:"expect_headers,omitempty"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level      string `ini:"level"`
	File       string `ini:"file"`
	MaxSizeMB  int    `ini:"max_size_mb"`
	MaxBackups int    `ini:"max_backups"`
}

// HarvestConf controls how sources are fetched.
type HarvestConf struct {
	TimeoutSeconds int    `ini:"timeout_seconds"`
	UserAgent      string `ini:"user_agent"`
	ProxyURL       string `ini:"proxy_url"` // optional http:// or socks5:// forward proxy
}

// GeoConf configures the geolocation lookup.
type GeoConf struct {
	Endpoint       string `ini:"endpoint"` // must contain {ip}
	TimeoutSeconds int    `ini:"timeout_seconds"`
	RatePerMinute  int    `ini:"rate_per_minute"` // 0 disables pacing
	Concurrency    int    `ini:"concurrency"`
}

// OutputConf names the artifact written on every successful run.
type OutputConf struct {
	Path string `ini:"path"`
}

// GitHubConf configures the optional upload of the artifact to a repository.
type GitHubConf struct {
	Enabled bool   `ini:"enabled"`
	Token   string `ini:"token"`
	Repo    string `ini:"repo"` // owner/name
	Path    string `ini:"path"` // file path inside the repository
	Branch  string `ini:"branch"`
	APIBase string `ini:"api_base"`
}

// TelegramConf configures the optional run notification.
type TelegramConf struct {
	Enabled  bool   `ini:"enabled"`
	BotToken string `ini:"bot_token"`
	ChatID   string `ini:"chat_id"`
	APIBase  string `ini:"api_base"`
}

// Config is the behaviour configuration read from cfip.ini.
type Config struct {
	LogConf      `ini:"log"`
	HarvestConf  `ini:"harvest"`
	GeoConf      `ini:"geo"`
	OutputConf   `ini:"output"`
	GitHubConf   `ini:"github"`
	TelegramConf `ini:"telegram"`
}
