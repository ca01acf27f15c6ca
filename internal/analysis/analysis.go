// Package analysis builds per-evidence context ahead of inference: a short
// summary of what each evidence item demonstrates, plus the domain concepts
// it touches. Analysis is advisory; any LLM failure degrades to a
// deterministic summary so the pipeline never stalls here.
package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/types"
)

// Config holds analyzer configuration.
type Config struct {
	// Concurrency bounds parallel analysis calls.
	Concurrency int `yaml:"concurrency"`

	// MaxConcepts caps domain concepts kept per item.
	MaxConcepts int `yaml:"max_concepts"`
}

// DefaultConfig returns the default analysis configuration.
func DefaultConfig() Config {
	return Config{Concurrency: 5, MaxConcepts: 8}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive (got %d)", c.Concurrency)
	}
	if c.MaxConcepts <= 0 {
		return fmt.Errorf("max_concepts must be positive (got %d)", c.MaxConcepts)
	}
	return nil
}

// Analyzer derives context for evidence items.
type Analyzer struct {
	invoker ai.Invoker
	config  Config
}

// New creates an Analyzer. invoker may be nil, in which case every item gets
// the deterministic fallback summary.
func New(invoker ai.Invoker, config Config) (*Analyzer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	return &Analyzer{invoker: invoker, config: config}, nil
}

// analysisResponse is the JSON shape the model is asked for.
type analysisResponse struct {
	Summary        string   `json:"summary"`
	DomainConcepts []string `json:"domain_concepts"`
}

// Analyze produces an EvidenceAnalysis per item, keyed by EvidenceItem.Key().
// Items with duplicate keys keep the first analysis.
func (a *Analyzer) Analyze(ctx context.Context, items []types.EvidenceItem) (map[string]types.EvidenceAnalysis, error) {
	results := make([]types.EvidenceAnalysis, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)
	for i := range items {
		g.Go(func() error {
			results[i] = a.analyzeOne(gctx, items[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]types.EvidenceAnalysis, len(items))
	for i, item := range items {
		if _, exists := out[item.Key()]; !exists {
			out[item.Key()] = results[i]
		}
	}
	return out, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, item types.EvidenceItem) types.EvidenceAnalysis {
	if a.invoker == nil {
		return fallbackAnalysis(item)
	}

	resp, err := a.invoker.Invoke(ctx, ai.Request{
		Task:      ai.TaskAnalysis,
		CacheHint: true,
		Messages:  []ai.Message{{Role: "user", Content: analysisPrompt(item)}},
	})
	if err != nil {
		log.Printf("[ANALYSIS] %s: call failed, using fallback: %v", item.Key(), err)
		return fallbackAnalysis(item)
	}

	parsed := ai.Parse[analysisResponse](resp, "evidence analysis")
	if !parsed.Success || strings.TrimSpace(parsed.Data.Summary) == "" {
		log.Printf("[ANALYSIS] %s: unparseable response, using fallback", item.Key())
		return fallbackAnalysis(item)
	}

	concepts := parsed.Data.DomainConcepts
	if len(concepts) > a.config.MaxConcepts {
		concepts = concepts[:a.config.MaxConcepts]
	}
	return types.EvidenceAnalysis{
		Summary:        strings.TrimSpace(parsed.Data.Summary),
		DomainConcepts: normalizeConcepts(concepts),
	}
}

func analysisPrompt(item types.EvidenceItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize what this %s evidence demonstrates about the system's behavior.\n\n", item.Type)
	fmt.Fprintf(&b, "File: %s\nName: %s\n", item.FilePath, item.Name)
	if item.Code != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```\n", item.Code)
	}
	for k, v := range item.Metadata {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	b.WriteString("\nRespond with JSON only: {\"summary\": \"one or two sentences\", \"domain_concepts\": [\"lowercase noun phrases\"]}")
	return b.String()
}

// fallbackAnalysis is deterministic and cheap: a mechanical summary built
// from the item itself.
func fallbackAnalysis(item types.EvidenceItem) types.EvidenceAnalysis {
	summary := fmt.Sprintf("%s evidence %q in %s", item.Type, item.Name, item.FilePath)
	if method, ok := item.Metadata["method"]; ok {
		if path, ok := item.Metadata["path"]; ok {
			summary = fmt.Sprintf("%s endpoint %s %s defined in %s", item.Type, method, path, item.FilePath)
		}
	}
	return types.EvidenceAnalysis{
		Summary:        summary,
		DomainConcepts: conceptsFromName(item.Name),
	}
}

// conceptsFromName splits an identifier into lowercase word concepts.
func conceptsFromName(name string) []string {
	words := splitIdentifier(name)
	var concepts []string
	for _, w := range words {
		w = strings.ToLower(w)
		if len(w) >= 3 && w != "test" && w != "func" {
			concepts = append(concepts, w)
		}
	}
	return concepts
}

// splitIdentifier breaks CamelCase, snake_case, and kebab-case names into
// words.
func splitIdentifier(name string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '/' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				prev := rune(name[i-1])
				if prev >= 'a' && prev <= 'z' {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

func normalizeConcepts(concepts []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range concepts {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
