// Package ai provides the LLM invocation layer for the reconciliation
// pipeline: a supervisor wrapping the Anthropic API with retry, circuit
// breaking, rate limiting, concurrency capping and response caching, plus a
// resilient parser for JSON embedded in model output.
//
// Pipeline components depend on the small Invoker interface, never on the
// concrete supervisor, so tests substitute deterministic fakes.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Model tiers. Complex reasoning (inference, scoring) goes to the default
// model; cheap cosmetic work (naming, summaries) goes to the simple model.
const (
	// ModelDefault is the high-end model for inference and verification.
	ModelDefault = "claude-sonnet-4-5-20250929"

	// ModelSimple is the cost-efficient model for summaries and naming.
	ModelSimple = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the default model, honoring SPECDRIFT_MODEL_DEFAULT.
func GetDefaultModel() string {
	if m := os.Getenv("SPECDRIFT_MODEL_DEFAULT"); m != "" {
		return m
	}
	return ModelDefault
}

// GetSimpleModel returns the simple-task model, honoring SPECDRIFT_MODEL_SIMPLE.
func GetSimpleModel() string {
	if m := os.Getenv("SPECDRIFT_MODEL_SIMPLE"); m != "" {
		return m
	}
	return ModelSimple
}

// Task classifies an invocation so the supervisor can pick a model tier and
// tag usage logs.
type Task string

const (
	TaskAnalysis  Task = "evidence_analysis"
	TaskInference Task = "atom_inference"
	TaskScoring   Task = "quality_scoring"
	TaskNaming    Task = "molecule_naming"
)

// simple reports whether the task can run on the cheap model tier.
func (t Task) simple() bool {
	return t == TaskAnalysis || t == TaskNaming
}

// Message is one entry in an invocation's message list.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request describes one LLM invocation: a message list, a task
// classification, and an optional prompt-caching hint.
type Request struct {
	Messages  []Message
	Task      Task
	MaxTokens int

	// CacheHint marks the request as safe to serve from the response
	// cache. Callers set it for deterministic prompts (templated analysis,
	// scoring) and leave it off for anything context-dependent.
	CacheHint bool
}

// Invoker is the capability the pipeline consumes. Failures surface as
// ordinary errors; every call site recovers with the fallback its phase
// defines (fallback atom, template name, rule-based score).
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Config holds supervisor configuration.
type Config struct {
	APIKey string `yaml:"api_key"` // if empty, read from ANTHROPIC_API_KEY

	ModelDefault string `yaml:"model_default"` // default: GetDefaultModel()
	ModelSimple  string `yaml:"model_simple"`  // default: GetSimpleModel()

	Retry RetryConfig `yaml:"retry"`

	// RatePerSecond throttles outbound calls; 0 disables throttling.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// CacheSize is the LRU response cache capacity; 0 disables caching.
	CacheSize int `yaml:"cache_size"`
}

// DefaultConfig returns the default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		ModelDefault:  GetDefaultModel(),
		ModelSimple:   GetSimpleModel(),
		Retry:         DefaultRetryConfig(),
		RatePerSecond: 2.0,
		CacheSize:     512,
	}
}

// Supervisor is the Anthropic-backed Invoker used in production. It owns
// retry/backoff, the circuit breaker, a weighted semaphore bounding
// in-flight calls, a token-bucket rate limiter, and the response cache.
type Supervisor struct {
	client         *anthropic.Client
	modelDefault   string
	modelSimple    string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
	cache          *lru.Cache[string, string]
	callCount      atomic.Int64
}

var _ Invoker = (*Supervisor)(nil)

// NewSupervisor creates a supervisor from cfg.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	modelDefault := cfg.ModelDefault
	if modelDefault == "" {
		modelDefault = GetDefaultModel()
	}
	modelSimple := cfg.ModelSimple
	if modelSimple == "" {
		modelSimple = GetSimpleModel()
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 {
		retryCfg = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	s := &Supervisor{
		client:       &client,
		modelDefault: modelDefault,
		modelSimple:  modelSimple,
		retry:        retryCfg,
	}

	if retryCfg.CircuitBreakerEnabled {
		s.circuitBreaker = NewCircuitBreaker(
			retryCfg.FailureThreshold,
			retryCfg.SuccessThreshold,
			retryCfg.OpenTimeout,
		)
	}
	if retryCfg.MaxConcurrentCalls > 0 {
		s.concurrencySem = semaphore.NewWeighted(int64(retryCfg.MaxConcurrentCalls))
	}
	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, string](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating response cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// CallCount returns the number of API calls made so far (cache hits do not
// count). The orchestrator copies this onto RunState.
func (s *Supervisor) CallCount() int {
	return int(s.callCount.Load())
}

// Invoke sends the request to the Anthropic messages API and returns the
// concatenated text blocks of the response.
func (s *Supervisor) Invoke(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("invoke: empty message list")
	}

	var cacheKey string
	if req.CacheHint && s.cache != nil {
		cacheKey = s.cacheKey(req)
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	model := s.modelDefault
	if req.Task.simple() {
		model = s.modelSimple
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	var response *anthropic.Message
	err := s.retryWithBackoff(ctx, string(req.Task), func(attemptCtx context.Context) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(attemptCtx); err != nil {
				return err
			}
		}
		resp, apiErr := s.client.Messages.New(attemptCtx, params)
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic %s call failed: %w", req.Task, err)
	}

	s.callCount.Add(1)

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	if cacheKey != "" {
		s.cache.Add(cacheKey, text)
	}

	return text, nil
}

// cacheKey hashes the model tier plus every message into a stable key.
func (s *Supervisor) cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(string(req.Task)))
	for _, m := range req.Messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
