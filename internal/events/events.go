// Package events defines the observational run event log: phase
// transitions, warnings, and cancellations emitted by the orchestrator and
// stored alongside the run. Events never influence pipeline behavior.
package events

import "time"

// EventType identifies what happened.
type EventType string

const (
	EventPhaseTransition EventType = "phase_transition"
	EventWarning         EventType = "warning"
	EventPhaseError      EventType = "phase_error"
	EventRunCancelled    EventType = "run_cancelled"
	EventReviewPending   EventType = "review_pending"
	EventReviewResumed   EventType = "review_resumed"
)

// Severity grades an event for display filtering.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// RunEvent is one entry in a run's event log.
type RunEvent struct {
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// PhaseTransition records the state machine advancing.
func PhaseTransition(runID, from, to string) *RunEvent {
	return &RunEvent{
		Type:      EventPhaseTransition,
		RunID:     runID,
		Severity:  SeverityInfo,
		Message:   "phase " + from + " → " + to,
		Data:      map[string]interface{}{"from": from, "to": to},
		Timestamp: time.Now(),
	}
}

// Warning records a phase-level degradation that the run recovered from.
func Warning(runID, message string) *RunEvent {
	return &RunEvent{
		Type:      EventWarning,
		RunID:     runID,
		Severity:  SeverityWarning,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// PhaseError records a non-fatal phase failure.
func PhaseError(runID, phase, message string) *RunEvent {
	return &RunEvent{
		Type:      EventPhaseError,
		RunID:     runID,
		Severity:  SeverityError,
		Message:   message,
		Data:      map[string]interface{}{"phase": phase},
		Timestamp: time.Now(),
	}
}

// Cancelled records the run aborting on its cancellation flag.
func Cancelled(runID, phase string) *RunEvent {
	return &RunEvent{
		Type:      EventRunCancelled,
		RunID:     runID,
		Severity:  SeverityWarning,
		Message:   "run cancelled during " + phase,
		Data:      map[string]interface{}{"phase": phase},
		Timestamp: time.Now(),
	}
}

// ReviewPending records the verify phase suspending for human review.
func ReviewPending(runID string, atomCount int) *RunEvent {
	return &RunEvent{
		Type:      EventReviewPending,
		RunID:     runID,
		Severity:  SeverityInfo,
		Message:   "verification suspended awaiting human review",
		Data:      map[string]interface{}{"atom_count": atomCount},
		Timestamp: time.Now(),
	}
}

// ReviewResumed records human review input being applied.
func ReviewResumed(runID string, overrides int) *RunEvent {
	return &RunEvent{
		Type:      EventReviewResumed,
		RunID:     runID,
		Severity:  SeverityInfo,
		Message:   "verification resumed with human review input",
		Data:      map[string]interface{}{"overrides": overrides},
		Timestamp: time.Now(),
	}
}
