package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/analysis"
	"github.com/specdrift/specdrift/internal/config"
	"github.com/specdrift/specdrift/internal/content"
	"github.com/specdrift/specdrift/internal/discovery"
	"github.com/specdrift/specdrift/internal/inference"
	"github.com/specdrift/specdrift/internal/pipeline"
	"github.com/specdrift/specdrift/internal/storage"
	"github.com/specdrift/specdrift/internal/synthesis"
	"github.com/specdrift/specdrift/internal/verify"
)

var (
	flagQuiet bool
)

var rootCmd = &cobra.Command{
	Use:   "specdrift",
	Short: "Reconcile code evidence against behavioral specifications",
	Long: `specdrift scans a codebase for behavioral evidence (tests, exports,
routes, UI components, docs, comments, coverage gaps), infers candidate
behavioral atoms from it, merges duplicates across evidence types, groups
atoms into molecules, and verifies atom quality, optionally pausing for
human review before results are persisted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagQuiet {
			log.SetOutput(discardWriter{})
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress progress logging")
	rootCmd.AddCommand(initCmd, reconcileCmd, reviewCmd, runsCmd, cancelCmd)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// workspace bundles everything a command needs for one invocation.
type workspace struct {
	root       string
	cfg        config.Config
	store      storage.RunStore
	supervisor *ai.Supervisor // nil when no API key is configured
}

// openWorkspace loads config and the run store for root. The model
// supervisor is optional: without an API key every inference degrades to
// deterministic fallbacks, which is still useful for dry runs.
func openWorkspace(root string) (*workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(abs, dbPath)
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}

	supervisor, err := ai.NewSupervisor(cfg.AI)
	if err != nil {
		log.Printf("[CLI] model supervisor unavailable, using deterministic fallbacks: %v", err)
		supervisor = nil
	}

	return &workspace{root: abs, cfg: cfg, store: store, supervisor: supervisor}, nil
}

func (w *workspace) close() {
	if err := w.store.Close(); err != nil {
		log.Printf("[CLI] closing run store: %v", err)
	}
}

// invoker returns the supervisor as an Invoker, or nil.
func (w *workspace) invoker() ai.Invoker {
	if w.supervisor == nil {
		return nil
	}
	return w.supervisor
}

// buildOrchestrator assembles the pipeline from the workspace config.
func (w *workspace) buildOrchestrator() (*pipeline.Orchestrator, error) {
	d, err := discovery.New(content.NewFSScanner(), w.store, w.cfg.Discovery)
	if err != nil {
		return nil, err
	}
	an, err := analysis.New(w.invoker(), w.cfg.Analysis)
	if err != nil {
		return nil, err
	}
	eng, err := inference.New(w.invoker(), nil, w.cfg.Inference)
	if err != nil {
		return nil, err
	}
	syn, err := synthesis.New(w.invoker(), w.cfg.Synthesis)
	if err != nil {
		return nil, err
	}
	var batch ai.BatchFacility
	if w.supervisor != nil {
		batch = ai.NewInvokerBatch(w.supervisor, w.cfg.Verify.ConcurrencyLimit)
	}
	ver, err := verify.New(nil, batch, w.cfg.Verify)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Discoverer:  d,
		Analyzer:    an,
		Engine:      eng,
		Synthesizer: syn,
		Verifier:    ver,
		DedupConfig: w.cfg.Dedup,
		Store:       w.store,
	}
	if w.supervisor != nil {
		opts.Counter = w.supervisor
	}
	return pipeline.New(opts)
}
