package verify

import "fmt"

// Config holds quality verification configuration.
type Config struct {
	// QualityThreshold is the minimum passing score.
	QualityThreshold int `yaml:"quality_threshold"`

	// BatchThreshold is the minimum atom count before the batched or
	// bounded-concurrent strategies are considered.
	BatchThreshold int `yaml:"batch_threshold"`

	// ConcurrencyLimit bounds in-flight tool calls in the
	// bounded-concurrent strategy.
	ConcurrencyLimit int `yaml:"concurrency_limit"`

	// RequireReview forces a human-review pause after scoring.
	RequireReview bool `yaml:"require_review"`

	// LegacyFailBlock pauses for review when failures outnumber passes.
	// Off by default; kept for callers migrating from the old gate.
	LegacyFailBlock bool `yaml:"legacy_fail_block"`
}

// DefaultConfig returns the default verification configuration.
func DefaultConfig() Config {
	return Config{
		QualityThreshold: 80,
		BatchThreshold:   20,
		ConcurrencyLimit: 5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return fmt.Errorf("quality_threshold must be 0-100 (got %d)", c.QualityThreshold)
	}
	if c.BatchThreshold < 0 {
		return fmt.Errorf("batch_threshold cannot be negative (got %d)", c.BatchThreshold)
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("concurrency_limit must be positive (got %d)", c.ConcurrencyLimit)
	}
	return nil
}
