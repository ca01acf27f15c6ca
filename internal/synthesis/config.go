package synthesis

import "fmt"

// Strategy selects how atoms are clustered into molecules.
type Strategy string

const (
	StrategyModule        Strategy = "module"
	StrategyCategory      Strategy = "category"
	StrategyNamespace     Strategy = "namespace"
	StrategyDomainConcept Strategy = "domain_concept"
	StrategySemantic      Strategy = "semantic"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyModule, StrategyCategory, StrategyNamespace,
		StrategyDomainConcept, StrategySemantic:
		return true
	}
	return false
}

// Config holds molecule synthesis configuration.
type Config struct {
	Strategy Strategy `yaml:"strategy"`

	// MinAtomsPerMolecule drops smaller clusters; their atoms remain
	// standalone and still reach verification.
	MinAtomsPerMolecule int `yaml:"min_atoms_per_molecule"`

	// SemanticThreshold is the single-link similarity threshold for the
	// semantic strategy.
	SemanticThreshold float64 `yaml:"semantic_threshold"`

	// RefineNames enables the cosmetic LLM refinement pass.
	RefineNames bool `yaml:"refine_names"`

	// RefineBatchSize is the number of molecules refined per model call.
	RefineBatchSize int `yaml:"refine_batch_size"`
}

// DefaultConfig returns the default synthesis configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:            StrategyDomainConcept,
		MinAtomsPerMolecule: 1,
		SemanticThreshold:   0.3,
		RefineNames:         true,
		RefineBatchSize:     5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Strategy.Valid() {
		return fmt.Errorf("unknown clustering strategy %q", c.Strategy)
	}
	if c.MinAtomsPerMolecule < 1 {
		return fmt.Errorf("min_atoms_per_molecule must be at least 1 (got %d)", c.MinAtomsPerMolecule)
	}
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		return fmt.Errorf("semantic_threshold must be in [0,1] (got %g)", c.SemanticThreshold)
	}
	if c.RefineBatchSize <= 0 {
		return fmt.Errorf("refine_batch_size must be positive (got %d)", c.RefineBatchSize)
	}
	return nil
}
