package workflow

import (
	"time"

	"ytreport/internal/services"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunPending            RunStatus = "pending"
	RunRunning            RunStatus = "running"
	RunSucceeded          RunStatus = "succeeded"
	RunFailed             RunStatus = "failed"
	RunPartiallySucceeded RunStatus = "partially_succeeded"
)

// IsTerminal reports whether no further execution happens in this status.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunPartiallySucceeded:
		return true
	default:
		return false
	}
}

// AllRunStatuses lists every run status in lifecycle order.
func AllRunStatuses() []RunStatus {
	return []RunStatus{RunPending, RunRunning, RunSucceeded, RunPartiallySucceeded, RunFailed}
}

// ParseRunStatus validates a status name.
func ParseRunStatus(value string) (RunStatus, bool) {
	for _, status := range AllRunStatuses() {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// StageStatus is the per-stage progress within a run.
type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageAttempting StageStatus = "attempting"
	StageRetrying   StageStatus = "retrying"
	StageDone       StageStatus = "done"
	StageSkipped    StageStatus = "skipped"
	StageFailed     StageStatus = "failed"
)

// Outcome is the result of a single stage attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeRetryableFailure Outcome = "retryable_failure"
	OutcomeFatalFailure     Outcome = "fatal_failure"
)

// StageAttempt is one audit-trail entry. Entries are appended, never edited.
type StageAttempt struct {
	Stage        string        `json:"stage"`
	Attempt      int           `json:"attempt"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Outcome      Outcome       `json:"outcome"`
	ErrorKind    services.Kind `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// RunState is the complete record of one run. Only the executor that owns a
// run mutates it; everyone else sees checkpointed copies.
type RunState struct {
	RunID        string                 `json:"run_id"`
	GraphName    string                 `json:"graph_name"`
	Status       RunStatus              `json:"status"`
	Context      *RunContext            `json:"context"`
	History      []StageAttempt         `json:"history"`
	CurrentStage string                 `json:"current_stage,omitempty"`
	Stages       map[string]StageStatus `json:"stages"`
	// Degraded is set once a non-required stage has failed.
	Degraded     bool          `json:"degraded,omitempty"`
	FailedStage  string        `json:"failed_stage,omitempty"`
	ErrorKind    services.Kind `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewRunState creates a pending run with an empty context.
func NewRunState(runID, graph string, now time.Time) *RunState {
	now = now.UTC()
	return &RunState{
		RunID:     runID,
		GraphName: graph,
		Status:    RunPending,
		Context:   NewRunContext(),
		Stages:    make(map[string]StageStatus),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StageStatus returns the progress of the named stage.
func (s *RunState) StageStatus(name string) StageStatus {
	if status, ok := s.Stages[name]; ok {
		return status
	}
	return StageNotStarted
}

// Attempts returns the recorded attempts for a stage in order.
func (s *RunState) Attempts(stage string) []StageAttempt {
	var out []StageAttempt
	for _, attempt := range s.History {
		if attempt.Stage == stage {
			out = append(out, attempt)
		}
	}
	return out
}

// LastAttempt returns the most recent attempt across all stages.
func (s *RunState) LastAttempt() (StageAttempt, bool) {
	if len(s.History) == 0 {
		return StageAttempt{}, false
	}
	return s.History[len(s.History)-1], true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Context = s.Context.Clone()
	clone.History = append([]StageAttempt(nil), s.History...)
	clone.Stages = make(map[string]StageStatus, len(s.Stages))
	for name, status := range s.Stages {
		clone.Stages[name] = status
	}
	return &clone
}

func (s *RunState) setStage(name string, status StageStatus) {
	if s.Stages == nil {
		s.Stages = make(map[string]StageStatus)
	}
	s.Stages[name] = status
}

func (s *RunState) record(attempt StageAttempt) {
	s.History = append(s.History, attempt)
}

func (s *RunState) fail(stage string, kind services.Kind, message string) {
	s.Status = RunFailed
	s.FailedStage = stage
	s.ErrorKind = kind
	s.ErrorMessage = message
}

// MarkCancelled moves a run that has not started executing to failed with
// kind cancelled.
func (s *RunState) MarkCancelled(now time.Time) {
	s.fail(s.CurrentStage, services.KindCancelled, ErrRunCancelled.Error())
	s.UpdatedAt = now.UTC()
}
