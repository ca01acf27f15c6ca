package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/specdrift/specdrift/internal/ai"
	"github.com/specdrift/specdrift/internal/types"
)

func TestAnalyzeUsesModelResponse(t *testing.T) {
	invoker := ai.InvokerFunc(func(ctx context.Context, req ai.Request) (string, error) {
		if req.Task != ai.TaskAnalysis {
			t.Errorf("expected analysis task, got %s", req.Task)
		}
		return `{"summary": "Login validates credentials and issues a session token.",
			"domain_concepts": ["Authentication", "session", "AUTHENTICATION"]}`, nil
	})
	a, err := New(invoker, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	item := types.EvidenceItem{Type: types.EvidenceTest, FilePath: "auth_test.go", Name: "TestLogin"}
	out, err := a.Analyze(context.Background(), []types.EvidenceItem{item})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	got, ok := out[item.Key()]
	if !ok {
		t.Fatalf("no analysis for %s", item.Key())
	}
	if !strings.Contains(got.Summary, "session token") {
		t.Errorf("unexpected summary: %q", got.Summary)
	}
	// Concepts are lowercased and de-duplicated.
	if len(got.DomainConcepts) != 2 {
		t.Errorf("expected 2 concepts, got %v", got.DomainConcepts)
	}
}

func TestAnalyzeFallsBackOnError(t *testing.T) {
	invoker := ai.InvokerFunc(func(ctx context.Context, req ai.Request) (string, error) {
		return "", errors.New("rate limited")
	})
	a, _ := New(invoker, DefaultConfig())

	item := types.EvidenceItem{Type: types.EvidenceSourceExport, FilePath: "billing.go", Name: "ChargeCustomer"}
	out, err := a.Analyze(context.Background(), []types.EvidenceItem{item})
	if err != nil {
		t.Fatalf("fallback must not fail the phase: %v", err)
	}
	got := out[item.Key()]
	if !strings.Contains(got.Summary, "ChargeCustomer") {
		t.Errorf("fallback summary should mention the item, got %q", got.Summary)
	}
	want := map[string]bool{"charge": true, "customer": true}
	for _, c := range got.DomainConcepts {
		if !want[c] {
			t.Errorf("unexpected concept %q", c)
		}
	}
}

func TestAnalyzeFallsBackOnGarbageResponse(t *testing.T) {
	invoker := ai.InvokerFunc(func(ctx context.Context, req ai.Request) (string, error) {
		return "I could not analyze this.", nil
	})
	a, _ := New(invoker, DefaultConfig())

	item := types.EvidenceItem{Type: types.EvidenceCodeComment, FilePath: "db.go", Name: "TODO retry on conflict"}
	out, err := a.Analyze(context.Background(), []types.EvidenceItem{item})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if out[item.Key()].Summary == "" {
		t.Error("fallback must produce a non-empty summary")
	}
}

func TestAnalyzeNilInvoker(t *testing.T) {
	a, _ := New(nil, DefaultConfig())
	item := types.EvidenceItem{
		Type: types.EvidenceAPIEndpoint, FilePath: "routes.go", Name: "GET /users",
		Metadata: map[string]string{"method": "GET", "path": "/users"},
	}
	out, err := a.Analyze(context.Background(), []types.EvidenceItem{item})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	got := out[item.Key()]
	if !strings.Contains(got.Summary, "GET /users") {
		t.Errorf("endpoint fallback should mention method and path, got %q", got.Summary)
	}
}

func TestAnalyzeCapsConcepts(t *testing.T) {
	invoker := ai.InvokerFunc(func(ctx context.Context, req ai.Request) (string, error) {
		return `{"summary": "ok", "domain_concepts": ["a1","b2","c3","d4","e5","f6","g7","h8","i9","j10"]}`, nil
	})
	cfg := DefaultConfig()
	cfg.MaxConcepts = 3
	a, _ := New(invoker, cfg)

	item := types.EvidenceItem{Type: types.EvidenceTest, FilePath: "x_test.go", Name: "TestX"}
	out, err := a.Analyze(context.Background(), []types.EvidenceItem{item})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got := len(out[item.Key()].DomainConcepts); got != 3 {
		t.Errorf("expected 3 concepts, got %d", got)
	}
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"TestLoginFlow", []string{"Test", "Login", "Flow"}},
		{"charge_customer", []string{"charge", "customer"}},
		{"retry-on-conflict", []string{"retry", "on", "conflict"}},
		{"HTTPServer", []string{"HTTPServer"}},
	}
	for _, tt := range tests {
		got := splitIdentifier(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitIdentifier(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
