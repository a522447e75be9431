package model

import "time"

// Config is the complete runtime configuration.
// Values are layered by the CLI: flags > TCASFEES_* env > config file > DefaultConfig.
type Config struct {
	Catalog      CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Browser      BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	HTTP         HTTPConfig      `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig     `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Output       OutputConfig    `yaml:"output" mapstructure:"output"`
}

// CatalogConfig describes the target catalog site
type CatalogConfig struct {
	LandingURL     string        `yaml:"landing_url" mapstructure:"landing_url"`
	SearchURL      string        `yaml:"search_url,omitempty" mapstructure:"search_url"` // Used by the http engine when the search box has no form; {query} is replaced
	SearchInput    string        `yaml:"search_input" mapstructure:"search_input"`
	ResultAnchor   string        `yaml:"result_anchor" mapstructure:"result_anchor"`
	LandingTimeout time.Duration `yaml:"landing_timeout" mapstructure:"landing_timeout"`
	ResultTimeout  time.Duration `yaml:"result_timeout" mapstructure:"result_timeout"`
	DetailTimeout  time.Duration `yaml:"detail_timeout" mapstructure:"detail_timeout"`
	FieldTimeout   time.Duration `yaml:"field_timeout" mapstructure:"field_timeout"`
	KeyDelay       time.Duration `yaml:"key_delay" mapstructure:"key_delay"`
	DetailDelay    time.Duration `yaml:"detail_delay" mapstructure:"detail_delay"`

	Labels FieldLabels `yaml:"labels" mapstructure:"labels"`

	// AdmissionRounds are round labels read from the detail page next to the fixed fields
	AdmissionRounds []string `yaml:"admission_rounds" mapstructure:"admission_rounds"`

	Queries []string `yaml:"queries" mapstructure:"queries"`
}

// FieldLabels are the detail-page label texts whose adjacent element holds the value
type FieldLabels struct {
	DegreeNameEN string `yaml:"degree_name_en" mapstructure:"degree_name_en"`
	ProgramType  string `yaml:"program_type" mapstructure:"program_type"`
	Fee          string `yaml:"fee" mapstructure:"fee"`
}

// BrowserConfig selects the page navigator engine
type BrowserConfig struct {
	Engine       string        `yaml:"engine" mapstructure:"engine"` // chrome, or http for static mirrors
	Headless     bool          `yaml:"headless" mapstructure:"headless"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// HTTPConfig configures the http engine's client
type HTTPConfig struct {
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent        string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries       int           `yaml:"max_retries" mapstructure:"max_retries"`
	InsecureTLS      bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy        string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy       string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy          string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	CloudflareBypass bool          `yaml:"cloudflare_bypass" mapstructure:"cloudflare_bypass"`
	RespectRobots    bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CacheConfig configures the detail page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateLimitConfig paces requests per host
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// OutputConfig controls persistence and logging
type OutputConfig struct {
	JSONPath   string `yaml:"json" mapstructure:"json"`
	SQLitePath string `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Verbose    bool   `yaml:"verbose" mapstructure:"verbose"`
	LogFormat  string `yaml:"log_format" mapstructure:"log_format"` // console or json
}

// DefaultConfig returns the defaults for course.mytcas.com
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			LandingURL:     "https://course.mytcas.com",
			SearchInput:    "input#search",
			ResultAnchor:   ".t-programs li a",
			LandingTimeout: 60 * time.Second,
			ResultTimeout:  15 * time.Second,
			DetailTimeout:  60 * time.Second,
			FieldTimeout:   5 * time.Second,
			KeyDelay:       100 * time.Millisecond,
			Labels: FieldLabels{
				DegreeNameEN: "ชื่อหลักสูตรภาษาอังกฤษ",
				ProgramType:  "ประเภทหลักสูตร",
				Fee:          "ค่าใช้จ่าย",
			},
			AdmissionRounds: []string{
				"รอบที่ 1 Portfolio",
				"รอบที่ 2 Quota",
				"รอบที่ 3 Admission",
				"รอบที่ 4 Direct Admission",
			},
			Queries: []string{
				"วิศวกรรมคอมพิวเตอร์",
				"วิศวกรรมปัญญาประดิษฐ์",
			},
		},
		Browser: BrowserConfig{
			Engine:       "chrome",
			Headless:     true,
			PollInterval: 500 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "tcasfees/0.1 (+https://github.com/ppiankov/tcasfees)",
			MaxBodyBytes:  5_000_000,
			MaxRetries:    3,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".tcasfees-cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         2,
		},
		Output: OutputConfig{
			JSONPath:  "tcas_data.json",
			LogFormat: "console",
		},
	}
}
