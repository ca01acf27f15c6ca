package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Pre-compiled patterns; compiling per parse is an order of magnitude slower.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?([\\s\\S]*?)\\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// ParseResult is the outcome of parsing JSON out of model output.
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// maxParseInput guards against pathological model output.
const maxParseInput = 10 * 1024 * 1024

// Parse extracts a JSON value of type T from model output, tolerating the
// formatting quirks LLMs produce.
//
// Strategy sequence:
//  1. direct parse
//  2. strip markdown code fences and retry
//  3. remove trailing commas and retry
//  4. extract the first JSON object/array from mixed prose and retry
func Parse[T any](text string, contextLabel string) ParseResult[T] {
	if len(text) > maxParseInput {
		return parseError[T](contextLabel, fmt.Sprintf("input exceeds %d bytes", maxParseInput))
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T](contextLabel, "empty input")
	}

	if result, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: result}
	} else {
		slog.Debug("direct JSON parse failed, trying cleanup",
			"context", contextLabel, "error", err.Error())
	}

	unfenced := strings.TrimSpace(codeFenceRegex.ReplaceAllString(trimmed, "$1"))
	if unfenced != trimmed {
		if result, err := tryParse[T](unfenced); err == nil {
			return ParseResult[T]{Success: true, Data: result}
		}
	}

	cleaned := trailingCommaRegex.ReplaceAllString(unfenced, "$1")
	if result, err := tryParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: result}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if result, err := tryParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: result}
		}
	}

	return parseError[T](contextLabel, "all JSON parsing strategies failed")
}

func tryParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// extractJSON pulls the first JSON object or array out of mixed content.
// The leading character decides which pattern to try first, so an array of
// objects is not truncated to its first element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if match := arrayRegex.FindString(trimmed); match != "" {
			return match
		}
	}
	if match := objectRegex.FindString(trimmed); match != "" {
		return match
	}
	return arrayRegex.FindString(trimmed)
}

func parseError[T any](contextLabel, message string) ParseResult[T] {
	var zero T
	if contextLabel != "" {
		message = contextLabel + ": " + message
	}
	return ParseResult[T]{Success: false, Data: zero, Error: message}
}

// Truncate shortens s for log lines.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
