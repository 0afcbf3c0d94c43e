package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/spf13/viper"
)

type Config struct {
	Anthropic    AnthropicConfig `mapstructure:"anthropic"`
	Models       ModelsConfig    `mapstructure:"models"`
	Router       RouterConfig    `mapstructure:"router"`
	Loop         LoopConfig      `mapstructure:"loop"`
	Transport    TransportConfig `mapstructure:"transport"`
	Tools        ToolsConfig     `mapstructure:"tools"`
	Fetch        FetchConfig     `mapstructure:"fetch"`
	Session      SessionConfig   `mapstructure:"session"`
	SourcesFile  string          `mapstructure:"sources_file"`  // YAML source catalog; defaults to sources.yaml in the config dir
	SystemPrompt string          `mapstructure:"system_prompt"` // extra instructions appended to the chat prompt
}

type AnthropicConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIVersion string `mapstructure:"api_version"`
	MaxTokens  int    `mapstructure:"max_tokens"`
}

// ModelsConfig maps each tier to a model id.
type ModelsConfig struct {
	Cheap   string `mapstructure:"cheap"`
	Mid     string `mapstructure:"mid"`
	Premium string `mapstructure:"premium"`
}

type RouterConfig struct {
	Policy    string  `mapstructure:"policy"`    // two-tier or legacy-three-tier
	Threshold float64 `mapstructure:"threshold"` // confidence below which the tier escalates
	MaxTips   int     `mapstructure:"max_tips"`
	// Tier forces every turn onto one tier, skipping classification. Empty means automatic.
	Tier string `mapstructure:"tier"`
}

type LoopConfig struct {
	MaxIterations int  `mapstructure:"max_iterations"`
	ParallelTools bool `mapstructure:"parallel_tools"`
}

type TransportConfig struct {
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type ToolsConfig struct {
	Timezone        string `mapstructure:"timezone"`
	DefaultLocation string `mapstructure:"default_location"`
	SearchBaseURL   string `mapstructure:"search_base_url"`
	MaxResults      int    `mapstructure:"max_results"`
}

type FetchConfig struct {
	MaxBytes      int64         `mapstructure:"max_bytes"`
	MinContent    int           `mapstructure:"min_content"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	models := llm.DefaultModels()
	v.SetDefault("anthropic.base_url", llm.DefaultBaseURL)
	v.SetDefault("anthropic.api_version", llm.DefaultAPIVersion)
	v.SetDefault("anthropic.max_tokens", llm.DefaultMaxTokens)
	v.SetDefault("models.cheap", models.Cheap)
	v.SetDefault("models.mid", models.Mid)
	v.SetDefault("models.premium", models.Premium)
	v.SetDefault("router.policy", "two-tier")
	v.SetDefault("router.threshold", 0.7)
	v.SetDefault("router.max_tips", 5)
	v.SetDefault("router.tier", "")
	v.SetDefault("loop.max_iterations", llm.DefaultMaxIterations)
	v.SetDefault("loop.parallel_tools", true)
	v.SetDefault("transport.idle_timeout", 90*time.Second)
	v.SetDefault("transport.connect_timeout", 30*time.Second)
	v.SetDefault("tools.timezone", "America/New_York")
	v.SetDefault("tools.default_location", "San Francisco, CA")
	v.SetDefault("tools.search_base_url", "https://api.tavily.com")
	v.SetDefault("tools.max_results", 5)
	v.SetDefault("fetch.max_bytes", 512<<10)
	v.SetDefault("fetch.min_content", 200)
	v.SetDefault("fetch.rate_per_second", 2.0)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("sources_file", "")
	v.SetDefault("session.enabled", true)
	v.SetDefault("session.path", "")
	v.SetDefault("system_prompt", "")
}

// Load reads config.yaml from the config dir (or the working directory),
// then TIERCHAT_* environment variables, on top of the defaults.
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("tierchat")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	SetDefaults(viper.GetViper())

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decode(viper.GetViper())
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SourcesFile = expandHome(cfg.SourcesFile)
	if cfg.SourcesFile == "" {
		cfg.SourcesFile = defaultSourcesFile()
	}
	cfg.Session.Path = expandHome(cfg.Session.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Router.Threshold < 0 || c.Router.Threshold > 1 {
		return fmt.Errorf("router.threshold must be between 0 and 1, got %v", c.Router.Threshold)
	}
	if c.Loop.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be at least 1, got %d", c.Loop.MaxIterations)
	}
	if c.Router.Tier != "" {
		if _, ok := llm.ParseTier(c.Router.Tier); !ok {
			return fmt.Errorf("router.tier: unknown tier %q", c.Router.Tier)
		}
	}
	return nil
}

// ApplyOverrides applies command-line tier and model overrides.
// If tier is non-empty, every turn is forced onto it.
// If model is non-empty, it replaces the model for the forced tier (mid when
// routing stays automatic).
func (c *Config) ApplyOverrides(tier, model string) {
	if tier != "" {
		c.Router.Tier = tier
	}
	if model == "" {
		return
	}
	t, ok := llm.ParseTier(c.Router.Tier)
	if !ok {
		t = llm.TierMid
	}
	switch t {
	case llm.TierCheap:
		c.Models.Cheap = model
	case llm.TierPremium:
		c.Models.Premium = model
	default:
		c.Models.Mid = model
	}
}

// ForcedTier returns the configured forced tier, if any.
func (c *Config) ForcedTier() *llm.Tier {
	t, ok := llm.ParseTier(c.Router.Tier)
	if !ok {
		return nil
	}
	return &t
}

// LLMModels converts the models section.
func (c *Config) LLMModels() llm.Models {
	return llm.Models{Cheap: c.Models.Cheap, Mid: c.Models.Mid, Premium: c.Models.Premium}
}

// defaultSourcesFile returns sources.yaml in the config dir when it exists,
// otherwise "" so the built-in catalog is used.
func defaultSourcesFile() string {
	dir, err := GetConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "sources.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// GetConfigDir returns the XDG config directory for tierchat.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "tierchat"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "tierchat"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes a commented starter config to disk.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`models:
  cheap: %s
  mid: %s
  premium: %s

router:
  # two-tier routes between cheap and mid; premium only via /opus.
  # legacy-three-tier lets the classifier pick premium too.
  policy: %s
  threshold: %v

loop:
  max_iterations: %d

tools:
  timezone: %s
  default_location: %q

# Extra instructions appended to the system prompt
# system_prompt: |
#   Be concise.
`, cfg.Models.Cheap, cfg.Models.Mid, cfg.Models.Premium, cfg.Router.Policy, cfg.Router.Threshold,
		cfg.Loop.MaxIterations, cfg.Tools.Timezone, cfg.Tools.DefaultLocation)

	return os.WriteFile(path, []byte(content), 0600)
}
