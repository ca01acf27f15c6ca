package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specdrift/specdrift/internal/content"
	"github.com/specdrift/specdrift/internal/events"
	"github.com/specdrift/specdrift/internal/storage"
	"github.com/specdrift/specdrift/internal/types"
)

type fakeSource struct {
	result *content.ScanResult
	err    error
}

func (f *fakeSource) Scan(ctx context.Context, root string, opts content.ScanOptions) (*content.ScanResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeStore struct {
	terminal    map[string]string
	terminalErr error
	links       map[string]string
	linksErr    error
	runs        map[string]*types.RunState
}

func (f *fakeStore) TerminalDispositions(ctx context.Context) (map[string]string, error) {
	return f.terminal, f.terminalErr
}

func (f *fakeStore) RecordDisposition(ctx context.Context, evidenceKey, disposition, runID string) error {
	return nil
}

func (f *fakeStore) AtomLinks(ctx context.Context) (map[string]string, error) {
	return f.links, f.linksErr
}

func (f *fakeStore) LinkAtom(ctx context.Context, evidenceKey, atomID string) error { return nil }

func (f *fakeStore) SaveRun(ctx context.Context, state *types.RunState) error { return nil }

func (f *fakeStore) LoadRun(ctx context.Context, runID string) (*types.RunState, error) {
	state, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return state, nil
}

func (f *fakeStore) ListRuns(ctx context.Context) ([]storage.RunSummary, error) { return nil, nil }

func (f *fakeStore) StoreEvent(ctx context.Context, event *events.RunEvent) error { return nil }

func (f *fakeStore) Close() error { return nil }

func item(t types.EvidenceType, file, name string, confidence int) types.EvidenceItem {
	return types.EvidenceItem{Type: t, FilePath: file, Name: name, BaseConfidence: confidence}
}

func TestFullScanPassthrough(t *testing.T) {
	items := []types.EvidenceItem{
		item(types.EvidenceTest, "auth_test.go", "TestLogin", 90),
		item(types.EvidenceSourceExport, "auth.go", "Login", 70),
	}
	src := &fakeSource{result: &content.ScanResult{Items: items, FilesScanned: 2}}
	d, err := New(src, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(result.Items))
	}
	if result.Mode != ModeFull {
		t.Errorf("expected full mode, got %s", result.Mode)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestTypeCapRanksByConfidence(t *testing.T) {
	items := []types.EvidenceItem{
		item(types.EvidenceCodeComment, "a.go", "first", 50),
		item(types.EvidenceCodeComment, "b.go", "second", 80),
		item(types.EvidenceCodeComment, "c.go", "third", 50),
		item(types.EvidenceCodeComment, "d.go", "fourth", 60),
	}
	cfg := DefaultConfig()
	cfg.TypeCaps = map[types.EvidenceType]int{types.EvidenceCodeComment: 2}

	src := &fakeSource{result: &content.ScanResult{Items: items}}
	d, err := New(src, nil, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items after cap, got %d", len(result.Items))
	}
	// Highest confidence survives; the 50/50 tie resolves to the
	// first-discovered item, which loses to the 60.
	if result.Items[0].Name != "second" || result.Items[1].Name != "fourth" {
		t.Errorf("unexpected survivors: %s, %s", result.Items[0].Name, result.Items[1].Name)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "capped at 2") {
		t.Errorf("expected cap warning, got %v", result.Warnings)
	}
}

func TestTypeCapTieKeepsFirstDiscovered(t *testing.T) {
	items := []types.EvidenceItem{
		item(types.EvidenceDocumentation, "README.md", "Overview", 60),
		item(types.EvidenceDocumentation, "docs/a.md", "Setup", 60),
		item(types.EvidenceDocumentation, "docs/b.md", "Usage", 60),
	}
	cfg := DefaultConfig()
	cfg.TypeCaps = map[types.EvidenceType]int{types.EvidenceDocumentation: 2}

	src := &fakeSource{result: &content.ScanResult{Items: items}}
	d, _ := New(src, nil, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].Name != "Overview" || result.Items[1].Name != "Setup" {
		t.Errorf("tie should keep discovery order, got %s, %s",
			result.Items[0].Name, result.Items[1].Name)
	}
}

func TestTotalCap(t *testing.T) {
	var items []types.EvidenceItem
	for i := 0; i < 20; i++ {
		items = append(items, item(types.EvidenceTest, fmt.Sprintf("f%d_test.go", i), fmt.Sprintf("Test%d", i), 90))
	}
	cfg := DefaultConfig()
	cfg.MaxTotalItems = 5

	src := &fakeSource{result: &content.ScanResult{Items: items}}
	d, _ := New(src, nil, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(result.Items) != 5 {
		t.Errorf("expected 5 items after total cap, got %d", len(result.Items))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "total evidence capped") {
		t.Errorf("expected total cap warning, got %v", result.Warnings)
	}
}

func writeDiff(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "baseline.diff")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing diff: %v", err)
	}
	return path
}

const sampleDiff = `diff --git a/auth.go b/auth.go
index 1111111..2222222 100644
--- a/auth.go
+++ b/auth.go
@@ -1,3 +1,4 @@
 package auth
+
 func Login() {}
`

func TestDeltaFiltersToChangedFiles(t *testing.T) {
	items := []types.EvidenceItem{
		item(types.EvidenceSourceExport, "auth.go", "Login", 70),
		item(types.EvidenceSourceExport, "billing.go", "Charge", 70),
	}
	cfg := DefaultConfig()
	cfg.Mode = ModeDelta
	cfg.BaselineDiffPath = writeDiff(t, sampleDiff)

	src := &fakeSource{result: &content.ScanResult{Items: items}}
	d, _ := New(src, &fakeStore{}, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].FilePath != "auth.go" {
		t.Errorf("expected only auth.go evidence, got %+v", result.Items)
	}
	if result.Mode != ModeDelta {
		t.Errorf("expected delta mode, got %s", result.Mode)
	}
}

func TestDeltaMissingBaselineFallsBackToFull(t *testing.T) {
	items := []types.EvidenceItem{
		item(types.EvidenceSourceExport, "auth.go", "Login", 70),
		item(types.EvidenceSourceExport, "billing.go", "Charge", 70),
	}
	cfg := DefaultConfig()
	cfg.Mode = ModeDelta
	cfg.BaselineDiffPath = filepath.Join(t.TempDir(), "missing.diff")

	src := &fakeSource{result: &content.ScanResult{Items: items}}
	d, _ := New(src, &fakeStore{}, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("fallback must not fail the run: %v", err)
	}
	if result.Mode != ModeFull {
		t.Errorf("expected fallback to full mode, got %s", result.Mode)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected all items after fallback, got %d", len(result.Items))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "falling back to full scan") {
		t.Errorf("expected fallback warning, got %v", result.Warnings)
	}
}

func TestDeltaInvalidBaselineFallsBackToFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeDelta
	cfg.BaselineDiffPath = writeDiff(t, "not a diff at all\n")

	src := &fakeSource{result: &content.ScanResult{
		Items: []types.EvidenceItem{item(types.EvidenceTest, "a_test.go", "TestA", 90)},
	}}
	d, _ := New(src, &fakeStore{}, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("fallback must not fail the run: %v", err)
	}
	if result.Mode != ModeFull || len(result.Items) != 1 {
		t.Errorf("expected full fallback with 1 item, got mode=%s items=%d",
			result.Mode, len(result.Items))
	}
}

func TestDeltaClosureExcludesSettledEvidence(t *testing.T) {
	settled := item(types.EvidenceSourceExport, "auth.go", "Login", 70)
	open := item(types.EvidenceSourceExport, "auth.go", "Logout", 70)
	cfg := DefaultConfig()
	cfg.Mode = ModeDelta
	cfg.BaselineDiffPath = writeDiff(t, sampleDiff)

	store := &fakeStore{
		terminal: map[string]string{settled.Key(): storage.DispositionAccepted},
	}
	src := &fakeSource{result: &content.ScanResult{Items: []types.EvidenceItem{settled, open}}}
	d, _ := New(src, store, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Name != "Logout" {
		t.Errorf("expected settled evidence excluded, got %+v", result.Items)
	}
}

func TestDeltaIsolationRoutesLinkedEvidenceToWarnings(t *testing.T) {
	linked := item(types.EvidenceSourceExport, "auth.go", "Login", 70)
	free := item(types.EvidenceSourceExport, "auth.go", "Logout", 70)
	cfg := DefaultConfig()
	cfg.Mode = ModeDelta
	cfg.BaselineDiffPath = writeDiff(t, sampleDiff)

	store := &fakeStore{
		links: map[string]string{linked.Key(): "atom-123"},
	}
	src := &fakeSource{result: &content.ScanResult{Items: []types.EvidenceItem{linked, free}}}
	d, _ := New(src, store, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Name != "Logout" {
		t.Errorf("linked evidence must not re-enter inference, got %+v", result.Items)
	}
	if len(result.ChangedLinkedEvidence) != 1 || result.ChangedLinkedEvidence[0] != linked.Key() {
		t.Errorf("expected linked key surfaced, got %v", result.ChangedLinkedEvidence)
	}
}

func TestDeltaAgainstBaselineRun(t *testing.T) {
	unchanged := types.EvidenceItem{
		Type: types.EvidenceSourceExport, FilePath: "auth.go", Name: "Login",
		Code: "func Login() {}", BaseConfidence: 70,
	}
	modified := types.EvidenceItem{
		Type: types.EvidenceSourceExport, FilePath: "billing.go", Name: "Charge",
		Code: "func Charge(amount int) {}", BaseConfidence: 70,
	}
	priorModified := modified
	priorModified.Code = "func Charge() {}"

	store := &fakeStore{
		runs: map[string]*types.RunState{
			"run-1": {RunID: "run-1", EvidenceItems: []types.EvidenceItem{unchanged, priorModified}},
		},
	}
	brandNew := item(types.EvidenceTest, "charge_test.go", "TestCharge", 90)

	cfg := DefaultConfig()
	cfg.Mode = ModeDelta
	cfg.BaselineRunID = "run-1"

	src := &fakeSource{result: &content.ScanResult{
		Items: []types.EvidenceItem{unchanged, modified, brandNew},
	}}
	d, _ := New(src, store, cfg)
	result, err := d.Discover(context.Background(), ".", content.DefaultScanOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	got := make(map[string]bool)
	for _, it := range result.Items {
		got[it.Name] = true
	}
	if got["Login"] {
		t.Error("unchanged evidence should be excluded from delta")
	}
	if !got["Charge"] || !got["TestCharge"] {
		t.Errorf("modified and new evidence should survive, got %v", got)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default valid", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.Mode = "incremental" }, true},
		{"zero total cap", func(c *Config) { c.MaxTotalItems = 0 }, true},
		{"negative type cap", func(c *Config) {
			c.TypeCaps[types.EvidenceTest] = -1
		}, true},
		{"unknown evidence type", func(c *Config) {
			c.TypeCaps["screenshot"] = 10
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
