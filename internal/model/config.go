package model

import "time"

// Config holds the full runtime configuration
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Cache       CacheConfig       `yaml:"cache"`
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Research    ResearchConfig    `yaml:"research"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Output      OutputConfig      `yaml:"output"`
}

// HTTPConfig controls the page-fetching HTTP client
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	InsecureTLS  bool          `yaml:"insecure_tls"`

	// Proxy settings (empty means environment)
	HTTPProxy  string `yaml:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy"`
	NoProxy    string `yaml:"no_proxy"`
}

// CacheConfig controls fetched-page caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Dir       string        `yaml:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl"`
}

// LLMConfig holds language-model collaborator configuration
type LLMConfig struct {
	// Provider name: "openai", "ollama", "" (disabled)
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// Timeout for a single completion, in seconds
	Timeout   int `yaml:"timeout"`
	MaxTokens int `yaml:"max_tokens"`
}

// SearchConfig holds web-search collaborator configuration
type SearchConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	ResultsPerQuery int    `yaml:"results_per_query"`
	TimeoutSeconds  int    `yaml:"timeout"`
}

// ResearchConfig controls the cycle loop defaults and budgets
type ResearchConfig struct {
	MaxCycles       int `yaml:"max_cycles"`
	SourcesPerCycle int `yaml:"sources_per_cycle"`

	// MaxSourceChars bounds the text handed to extraction. This is the
	// dominant cost control on constrained hardware.
	MaxSourceChars int `yaml:"max_source_chars"`

	// RetriesPerSource bounds fetch/extract retries before a source is
	// marked rejected.
	RetriesPerSource int `yaml:"retries_per_source"`

	// MaxLLMFailures is the number of consecutive language-model failures
	// tolerated before the run is declared failed.
	MaxLLMFailures int `yaml:"max_llm_failures"`

	CheckpointDir string `yaml:"checkpoint_dir"`
}

// EvaluationConfig controls source acceptance thresholds.
//
// LenientCategories is a list of substring patterns matched against a
// source URL. Matching sources are held to LenientThreshold instead of
// AcceptThreshold; employer-review and professional-network pages are
// empirically higher-yield, so the defaults list those. The list is
// configuration, not a hard-coded policy.
type EvaluationConfig struct {
	AcceptThreshold   float64  `yaml:"accept_threshold"`
	LenientThreshold  float64  `yaml:"lenient_threshold"`
	LenientCategories []string `yaml:"lenient_categories"`
}

// ConcurrencyConfig controls in-cycle parallelism
type ConcurrencyConfig struct {
	// FetchWorkers caps concurrent page fetches within a cycle. Extraction
	// is always serialized regardless of this setting.
	FetchWorkers      int     `yaml:"fetch_workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	Verbose       bool   `yaml:"verbose"`
	IncludeFooter bool   `yaml:"include_footer"`
}

// DefaultConfig returns sensible defaults for constrained local hardware
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Prospector/0.2 (research bot)",
			MaxBodyBytes: 2_000_000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".prospector/cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:  "ollama",
			Timeout:   120,
			MaxTokens: 1500,
		},
		Search: SearchConfig{
			ResultsPerQuery: 5,
			TimeoutSeconds:  20,
		},
		Research: ResearchConfig{
			MaxCycles:        5,
			SourcesPerCycle:  10,
			MaxSourceChars:   6000,
			RetriesPerSource: 2,
			MaxLLMFailures:   5,
			CheckpointDir:    ".prospector/checkpoints",
		},
		Evaluation: EvaluationConfig{
			AcceptThreshold:  7,
			LenientThreshold: 5,
			LenientCategories: []string{
				"glassdoor", "indeed.", "linkedin.", "crunchbase",
			},
		},
		Concurrency: ConcurrencyConfig{
			FetchWorkers:      4,
			RequestsPerSecond: 1,
			Burst:             3,
		},
		Output: OutputConfig{
			Dir:           "output",
			IncludeFooter: true,
		},
	}
}
