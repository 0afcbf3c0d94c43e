package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/spf13/viper"
)

func loadFrom(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v)
	if yaml != "" {
		if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
			t.Fatalf("read config: %v", err)
		}
	}
	return decode(v)
}

func TestDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := loadFrom(t, "")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Router.Policy != "two-tier" || cfg.Router.Threshold != 0.7 || cfg.Router.MaxTips != 5 {
		t.Fatalf("router=%+v", cfg.Router)
	}
	if cfg.Loop.MaxIterations != llm.DefaultMaxIterations {
		t.Fatalf("max_iterations=%d", cfg.Loop.MaxIterations)
	}
	if cfg.Transport.IdleTimeout != 90*time.Second {
		t.Fatalf("idle_timeout=%s", cfg.Transport.IdleTimeout)
	}
	if cfg.Tools.DefaultLocation != "San Francisco, CA" || cfg.Tools.Timezone != "America/New_York" {
		t.Fatalf("tools=%+v", cfg.Tools)
	}
	if cfg.LLMModels() != llm.DefaultModels() {
		t.Fatalf("models=%+v", cfg.LLMModels())
	}
	if cfg.ForcedTier() != nil {
		t.Fatalf("forced tier=%v, want nil", cfg.ForcedTier())
	}
	if !cfg.Session.Enabled {
		t.Fatal("sessions should default to enabled")
	}
	if cfg.SourcesFile != "" {
		t.Fatalf("sources_file=%q, want built-in catalog", cfg.SourcesFile)
	}
}

func TestSourcesFileFromConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	path := filepath.Join(home, "tierchat", "sources.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("categories: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFrom(t, "")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.SourcesFile != path {
		t.Fatalf("sources_file=%q, want %q", cfg.SourcesFile, path)
	}
}

func TestFileValues(t *testing.T) {
	cfg, err := loadFrom(t, `
router:
  policy: legacy-three-tier
  threshold: 0.5
  tier: opus
transport:
  idle_timeout: 5s
fetch:
  rate_per_second: 0.5
`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Router.Policy != "legacy-three-tier" || cfg.Router.Threshold != 0.5 {
		t.Fatalf("router=%+v", cfg.Router)
	}
	if got := cfg.ForcedTier(); got == nil || *got != llm.TierPremium {
		t.Fatalf("forced tier=%v, want premium", got)
	}
	if cfg.Transport.IdleTimeout != 5*time.Second {
		t.Fatalf("idle_timeout=%s", cfg.Transport.IdleTimeout)
	}
	if cfg.Fetch.RatePerSecond != 0.5 {
		t.Fatalf("rate=%v", cfg.Fetch.RatePerSecond)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"threshold", "router:\n  threshold: 1.5\n", "router.threshold"},
		{"iterations", "loop:\n  max_iterations: 0\n", "loop.max_iterations"},
		{"tier", "router:\n  tier: gpt\n", "router.tier"},
	}
	for _, tt := range tests {
		_, err := loadFrom(t, tt.yaml)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err=%v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		Models: ModelsConfig{
			Cheap:   "claude-haiku-4-5",
			Mid:     "claude-sonnet-4-5",
			Premium: "claude-opus-4-1",
		},
	}

	cfg.ApplyOverrides("premium", "claude-opus-next")
	if cfg.Router.Tier != "premium" {
		t.Fatalf("tier=%q, want %q", cfg.Router.Tier, "premium")
	}
	if cfg.Models.Premium != "claude-opus-next" {
		t.Fatalf("premium model=%q, want %q", cfg.Models.Premium, "claude-opus-next")
	}
	if cfg.Models.Mid != "claude-sonnet-4-5" {
		t.Fatalf("mid model changed unexpectedly: %q", cfg.Models.Mid)
	}

	cfg.Router.Tier = ""
	cfg.ApplyOverrides("", "claude-sonnet-next")
	if cfg.Router.Tier != "" {
		t.Fatalf("tier changed unexpectedly: %q", cfg.Router.Tier)
	}
	if cfg.Models.Mid != "claude-sonnet-next" {
		t.Fatalf("mid model=%q, want %q", cfg.Models.Mid, "claude-sonnet-next")
	}
}
