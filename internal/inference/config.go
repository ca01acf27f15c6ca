package inference

import "fmt"

// Config holds inference engine configuration.
type Config struct {
	// BatchSize is the number of evidence items inferred concurrently
	// between cancellation checks.
	BatchSize int `yaml:"batch_size"`

	// MinConfidence excludes atoms below this value after fallback
	// substitution. Zero keeps everything.
	MinConfidence int `yaml:"min_confidence"`

	// FallbackConfidence is assigned to atoms synthesized when the model
	// output was unusable.
	FallbackConfidence int `yaml:"fallback_confidence"`

	// Foundational-module boost. The thresholds are tunable defaults, not
	// derived constants: a file counts as foundational when at least
	// MinDependents other files import it and it imports at most
	// MaxDependencies others.
	FoundationalBoost          int `yaml:"foundational_boost"`
	FoundationalMinDependents  int `yaml:"foundational_min_dependents"`
	FoundationalMaxDependencies int `yaml:"foundational_max_dependencies"`
}

// DefaultConfig returns the default inference configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:                   5,
		MinConfidence:               0,
		FallbackConfidence:          30,
		FoundationalBoost:           10,
		FoundationalMinDependents:   3,
		FoundationalMaxDependencies: 2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive (got %d)", c.BatchSize)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be 0-100 (got %d)", c.MinConfidence)
	}
	if c.FallbackConfidence < 0 || c.FallbackConfidence > 100 {
		return fmt.Errorf("fallback_confidence must be 0-100 (got %d)", c.FallbackConfidence)
	}
	if c.FoundationalBoost < 0 {
		return fmt.Errorf("foundational_boost cannot be negative (got %d)", c.FoundationalBoost)
	}
	return nil
}
