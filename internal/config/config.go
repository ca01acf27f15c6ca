// Package config loads the top-level specdrift configuration from
// .specdrift.yaml, environment variables prefixed SPECDRIFT_, and a local
// .env file, in ascending precedence. Every subsystem keeps its own Config
// type with defaults; this package only binds them together.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/analysis"
	"github.com/specdrift/specdrift/internal/content"
	"github.com/specdrift/specdrift/internal/dedup"
	"github.com/specdrift/specdrift/internal/discovery"
	"github.com/specdrift/specdrift/internal/inference"
	"github.com/specdrift/specdrift/internal/synthesis"
	"github.com/specdrift/specdrift/internal/verify"
)

// EnvPrefix is the environment variable prefix for overrides, e.g.
// SPECDRIFT_VERIFY_QUALITY_THRESHOLD.
const EnvPrefix = "SPECDRIFT"

// FileName is the per-project configuration file.
const FileName = ".specdrift.yaml"

// Config is the assembled configuration for one specdrift invocation.
// Subsystem configs carry yaml tags; the loader decodes on those.
type Config struct {
	// DatabasePath locates the run store. Relative paths resolve against
	// the scan root.
	DatabasePath string `yaml:"database_path"`

	AI        ai.Config           `yaml:"ai"`
	Scan      content.ScanOptions `yaml:"scan"`
	Discovery discovery.Config    `yaml:"discovery"`
	Analysis  analysis.Config     `yaml:"analysis"`
	Inference inference.Config    `yaml:"inference"`
	Dedup     dedup.Config        `yaml:"dedup"`
	Synthesis synthesis.Config    `yaml:"synthesis"`
	Verify    verify.Config       `yaml:"verify"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		DatabasePath: ".specdrift.db",
		AI:           ai.DefaultConfig(),
		Scan:         content.DefaultScanOptions(),
		Discovery:    discovery.DefaultConfig(),
		Analysis:     analysis.DefaultConfig(),
		Inference:    inference.DefaultConfig(),
		Dedup:        dedup.DefaultConfig(),
		Synthesis:    synthesis.DefaultConfig(),
		Verify:       verify.DefaultConfig(),
	}
}

// Validate checks every subsystem config.
func (c Config) Validate() error {
	checks := []struct {
		name string
		err  error
	}{
		{"discovery", c.Discovery.Validate()},
		{"analysis", c.Analysis.Validate()},
		{"inference", c.Inference.Validate()},
		{"dedup", c.Dedup.Validate()},
		{"synthesis", c.Synthesis.Validate()},
		{"verify", c.Verify.Validate()},
	}
	for _, check := range checks {
		if check.err != nil {
			return fmt.Errorf("%s: %w", check.name, check.err)
		}
	}
	return nil
}

// Load reads configuration for a scan root. Missing files are fine; a
// malformed file is an error. A .env file beside the config is loaded first
// so SPECDRIFT_* and ANTHROPIC_API_KEY can live there.
func Load(root string) (Config, error) {
	// Best effort: absence is the normal case.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	v := viper.New()
	v.SetConfigFile(filepath.Join(root, FileName))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if _, err := os.Stat(filepath.Join(root, FileName)); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading %s: %w", FileName, err)
		}
	}
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.AI.APIKey == "" {
		cfg.AI.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteDefault writes a commented starter config to root. It refuses to
// overwrite an existing file.
func WriteDefault(root string) (string, error) {
	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return path, fmt.Errorf("encoding default config: %w", err)
	}
	header := "# specdrift configuration. Environment variables prefixed SPECDRIFT_\n" +
		"# override any value here, e.g. SPECDRIFT_VERIFY_QUALITY_THRESHOLD=90.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return path, fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
