package ai

import "testing"

type scorePayload struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

func TestParseDirect(t *testing.T) {
	result := Parse[scorePayload](`{"score": 85, "reasoning": "complete"}`, "test")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.Data.Score != 85 || result.Data.Reasoning != "complete" {
		t.Errorf("unexpected data: %+v", result.Data)
	}
}

func TestParseCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"json fence", "```json\n{\"score\": 70, \"reasoning\": \"ok\"}\n```"},
		{"bare fence", "```\n{\"score\": 70, \"reasoning\": \"ok\"}\n```"},
		{"fence no newline", "```json{\"score\": 70, \"reasoning\": \"ok\"}```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[scorePayload](tt.input, "test")
			if !result.Success {
				t.Fatalf("expected success, got error: %s", result.Error)
			}
			if result.Data.Score != 70 {
				t.Errorf("score = %d, want 70", result.Data.Score)
			}
		})
	}
}

func TestParseTrailingCommas(t *testing.T) {
	result := Parse[scorePayload](`{"score": 60, "reasoning": "trailing",}`, "test")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.Data.Score != 60 {
		t.Errorf("score = %d, want 60", result.Data.Score)
	}
}

func TestParseMixedProse(t *testing.T) {
	input := "Here is my assessment:\n\n{\"score\": 90, \"reasoning\": \"strong\"}\n\nLet me know if you need more."
	result := Parse[scorePayload](input, "test")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.Data.Score != 90 {
		t.Errorf("score = %d, want 90", result.Data.Score)
	}
}

func TestParseArrayNotTruncated(t *testing.T) {
	input := `[{"score": 1, "reasoning": "a"}, {"score": 2, "reasoning": "b"}]`
	result := Parse[[]scorePayload](input, "test")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(result.Data) != 2 {
		t.Errorf("len = %d, want 2", len(result.Data))
	}
}

func TestParseFailures(t *testing.T) {
	for _, input := range []string{"", "   ", "no json here at all"} {
		result := Parse[scorePayload](input, "test")
		if result.Success {
			t.Errorf("Parse(%q) unexpectedly succeeded", input)
		}
		if result.Error == "" {
			t.Errorf("Parse(%q) missing error message", input)
		}
	}
}
