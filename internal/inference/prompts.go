package inference

import (
	"fmt"
	"strings"

	"github.com/specdrift/specdrift/internal/types"
)

// instructionFor returns the type-specific instruction text for one
// evidence kind. Each variant is a pure function of the item; unknown kinds
// fall through to a safe generic instruction.
func instructionFor(item types.EvidenceItem) string {
	switch item.Type {
	case types.EvidenceTest:
		return testInstruction(item)
	case types.EvidenceSourceExport:
		return sourceExportInstruction(item)
	case types.EvidenceUIComponent:
		return uiComponentInstruction(item)
	case types.EvidenceAPIEndpoint:
		return apiEndpointInstruction(item)
	case types.EvidenceDocumentation:
		return documentationInstruction(item)
	case types.EvidenceCodeComment:
		return codeCommentInstruction(item)
	case types.EvidenceCoverageGap:
		return coverageGapInstruction(item)
	default:
		return genericInstruction(item)
	}
}

func testInstruction(item types.EvidenceItem) string {
	return fmt.Sprintf(
		"This is an automated test named %q. State the single behavior the test "+
			"verifies, as an observable outcome a user or caller could witness. "+
			"Do not describe the test mechanics (mocks, fixtures, assertions).",
		item.Name)
}

func sourceExportInstruction(item types.EvidenceItem) string {
	return fmt.Sprintf(
		"This is an exported function or type named %q. State the single behavior "+
			"it provides to callers, phrased as what observably happens when it is "+
			"used, not how it is implemented.",
		item.Name)
}

func uiComponentInstruction(item types.EvidenceItem) string {
	framework := item.Metadata["framework"]
	if framework == "" {
		framework = "UI"
	}
	return fmt.Sprintf(
		"This is a %s component named %q. State the single user-visible behavior "+
			"it delivers: what the user sees or can do, not how it renders.",
		framework, item.Name)
}

func apiEndpointInstruction(item types.EvidenceItem) string {
	method := item.Metadata["method"]
	path := item.Metadata["path"]
	if method != "" && path != "" {
		return fmt.Sprintf(
			"This is an API endpoint: %s %s. State the single behavior a client "+
				"observes when calling it: the effect and the response, not the "+
				"handler internals.",
			method, path)
	}
	return fmt.Sprintf(
		"This is an API endpoint handler named %q. State the single behavior a "+
			"client observes when calling it.",
		item.Name)
}

func documentationInstruction(item types.EvidenceItem) string {
	return fmt.Sprintf(
		"This is documentation section %q. State the single behavior the "+
			"documentation promises the system delivers. Documentation can be "+
			"stale; reflect the promise, and lower confidence accordingly.",
		item.Name)
}

func codeCommentInstruction(item types.EvidenceItem) string {
	return fmt.Sprintf(
		"This is a code comment (%s). State the single intended behavior it "+
			"describes or the constraint it records. Comments are weak evidence; "+
			"report low confidence unless the comment is explicit.",
		item.Name)
}

func coverageGapInstruction(item types.EvidenceItem) string {
	return fmt.Sprintf(
		"This is uncovered code at %q with no exercising test. State the "+
			"single behavior this code appears to implement, flagging it as "+
			"unverified by tests.",
		item.Name)
}

func genericInstruction(item types.EvidenceItem) string {
	return fmt.Sprintf(
		"This is %s evidence named %q. State the single observable behavior it "+
			"indicates the system has.",
		item.Type, item.Name)
}

// buildPrompt assembles the full inference prompt for one item, folding in
// the per-item analysis context when present.
func buildPrompt(item types.EvidenceItem, analysis *types.EvidenceAnalysis) string {
	var b strings.Builder
	b.WriteString(instructionFor(item))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "File: %s", item.FilePath)
	if item.LineNumber > 0 {
		fmt.Fprintf(&b, ":%d", item.LineNumber)
	}
	b.WriteString("\n")
	if item.Code != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```\n", item.Code)
	}
	if analysis != nil {
		fmt.Fprintf(&b, "\nContext: %s\n", analysis.Summary)
		if len(analysis.DomainConcepts) > 0 {
			fmt.Fprintf(&b, "Domain concepts: %s\n", strings.Join(analysis.DomainConcepts, ", "))
		}
	}
	b.WriteString(`
Respond with JSON only:
{
  "description": "one observable behavior, a single claim",
  "category": "functional|security|performance|reliability|usability",
  "observable_outcomes": ["what can be witnessed"],
  "confidence": 0-100,
  "reasoning": "why this evidence supports the claim",
  "ambiguity_reasons": []
}`)
	return b.String()
}
