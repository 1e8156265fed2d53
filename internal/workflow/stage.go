package workflow

import (
	"context"
	"time"

	"ytreport/internal/services"
)

// End is the reserved edge target that terminates a run.
const End = "$end"

// Outputs is the fragment a capability returns on success. Values are stored
// as JSON, so they must marshal cleanly.
type Outputs map[string]any

// Capability performs one stage's external call. It sees only the keys the
// stage declared through the View.
type Capability func(ctx context.Context, in View) (Outputs, error)

// Guard decides whether an edge is taken, given the run context after the
// stage finished. Guards must treat absent keys as false.
type Guard func(Reader) bool

// Edge connects a stage to its successor. A nil Guard always matches.
type Edge struct {
	To    string
	Guard Guard
}

// RetryPolicy bounds the attempts for one stage. Delays grow exponentially
// from BaseDelay and are capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RetryableKinds []services.Kind
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retries(kind services.Kind) bool {
	kinds := p.RetryableKinds
	if kinds == nil {
		kinds = services.DefaultRetryableKinds
	}
	for _, candidate := range kinds {
		if candidate == kind {
			return true
		}
	}
	return false
}

// Stage is the immutable definition of one unit of work in a graph.
type Stage struct {
	Name string
	// InputKeys must all be present or the stage is skipped.
	InputKeys []string
	// OptionalInputKeys are readable when present and never cause a skip.
	OptionalInputKeys []string
	OutputKeys        []string
	Capability        Capability
	Retry             RetryPolicy
	Required          bool
	// Edges are evaluated in order after success; the first match wins. A
	// stage without edges is terminal.
	Edges []Edge
	// SkipTo overrides the successor used when the stage is skipped.
	SkipTo string
	// Health reports the readiness of the stage's capability.
	Health func(context.Context) StageHealth
}

// Then returns an unguarded edge to the named stage.
func Then(to string) Edge {
	return Edge{To: to}
}

// When returns an edge taken only when guard matches.
func When(to string, guard Guard) Edge {
	return Edge{To: to, Guard: guard}
}

func (s *Stage) declares(key string) bool {
	for _, k := range s.InputKeys {
		if k == key {
			return true
		}
	}
	for _, k := range s.OptionalInputKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Stage) missingInput(ctx *RunContext) (string, bool) {
	for _, key := range s.InputKeys {
		if !ctx.Has(key) {
			return key, true
		}
	}
	return "", false
}

func (s *Stage) outputsPresent(ctx *RunContext) bool {
	for _, key := range s.OutputKeys {
		if !ctx.Has(key) {
			return false
		}
	}
	return true
}
