package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ytreport/internal/logging"
	"ytreport/internal/services"
)

type callResult struct {
	out Outputs
	err error
}

// runStage performs the attempts for one stage. Attempt numbers continue
// from any attempts already in the history, so a resumed run keeps counting
// against the same budget. At least one attempt is always made.
func (r *run) runStage(ctx context.Context, stage *Stage) (stageResult, error) {
	prior := len(r.state.Attempts(stage.Name))
	maxAttempts := stage.Retry.attempts()
	schedule := newBackoffSchedule(stage.Retry, r.exec.clock)
	schedule.advance(prior)

	for attempt := prior + 1; ; attempt++ {
		attemptCtx := services.WithAttempt(services.WithStage(ctx, stage.Name), attempt)
		logger := r.stageLogger(attemptCtx, stage)

		r.state.setStage(stage.Name, StageAttempting)
		logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

		started := r.exec.clock.Now().UTC()
		result, interrupted := r.invoke(attemptCtx, stage)
		ended := r.exec.clock.Now().UTC()

		if interrupted {
			if errors.Is(context.Cause(ctx), ErrRunCancelled) {
				r.state.record(StageAttempt{
					Stage:        stage.Name,
					Attempt:      attempt,
					StartedAt:    started,
					EndedAt:      ended,
					Outcome:      OutcomeFatalFailure,
					ErrorKind:    services.KindCancelled,
					ErrorMessage: "run cancelled during attempt; result discarded",
				})
				logger.Info("stage result discarded after cancellation",
					logging.String(logging.FieldEventType, "stage_cancelled"),
				)
				return stageCancelled, nil
			}
			return stageInterrupted, r.shutdownError(ctx)
		}

		err := result.err
		if err == nil {
			err = r.state.Context.Merge(stage.Name, stage.OutputKeys, result.out)
		}
		if err == nil {
			r.state.record(StageAttempt{
				Stage:     stage.Name,
				Attempt:   attempt,
				StartedAt: started,
				EndedAt:   ended,
				Outcome:   OutcomeSuccess,
			})
			r.state.setStage(stage.Name, StageDone)
			logger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Duration("stage_duration", ended.Sub(started)),
			)
			if err := r.checkpoint(ctx); err != nil {
				return stageInterrupted, err
			}
			return stageSucceeded, nil
		}

		kind, retryable := classify(err, stage.Retry)
		message := strings.TrimSpace(err.Error())
		if retryable && attempt < maxAttempts {
			r.state.record(StageAttempt{
				Stage:        stage.Name,
				Attempt:      attempt,
				StartedAt:    started,
				EndedAt:      ended,
				Outcome:      OutcomeRetryableFailure,
				ErrorKind:    kind,
				ErrorMessage: message,
			})
			r.state.setStage(stage.Name, StageRetrying)
			wait := schedule.next()
			logger.Warn("stage attempt failed; retrying",
				logging.String(logging.FieldEventType, "stage_retry"),
				logging.String(logging.FieldErrorKind, string(kind)),
				logging.Error(err),
				logging.Duration("backoff", wait),
				logging.Int("max_attempts", maxAttempts),
			)
			if err := r.checkpoint(ctx); err != nil {
				return stageInterrupted, err
			}
			if result, err := r.wait(ctx, wait); result != stageSucceeded {
				return result, err
			}
			continue
		}

		if retryable {
			message = fmt.Sprintf("retries exhausted after %d attempts: %s", attempt, message)
		}
		r.state.record(StageAttempt{
			Stage:        stage.Name,
			Attempt:      attempt,
			StartedAt:    started,
			EndedAt:      ended,
			Outcome:      OutcomeFatalFailure,
			ErrorKind:    kind,
			ErrorMessage: message,
		})
		r.logFailure(logger, stage, kind, err)
		if stage.Required {
			r.state.fail(stage.Name, kind, message)
		} else if r.state.ErrorKind == "" {
			r.state.ErrorKind = kind
			r.state.ErrorMessage = fmt.Sprintf("%s: %s", stage.Name, message)
		}
		return stageFailedFatal, nil
	}
}

// wait sleeps for the backoff interval unless the run is cancelled first.
func (r *run) wait(ctx context.Context, d time.Duration) (stageResult, error) {
	if d <= 0 {
		if ctx.Err() == nil {
			return stageSucceeded, nil
		}
	} else {
		select {
		case <-r.exec.clock.After(d):
			return stageSucceeded, nil
		case <-ctx.Done():
		}
	}
	if errors.Is(context.Cause(ctx), ErrRunCancelled) {
		return stageCancelled, nil
	}
	return stageInterrupted, r.shutdownError(ctx)
}

// invoke calls the capability on a context detached from run cancellation so
// an in-flight call can finish. If the run is cancelled the result is
// discarded; on shutdown the call's context is cancelled too.
func (r *run) invoke(ctx context.Context, stage *Stage) (callResult, bool) {
	callCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan callResult, 1)
	view := newView(stage, r.state.Context.Clone())

	go func() {
		defer stop()
		defer func() {
			if rec := recover(); rec != nil {
				done <- callResult{err: Fatal(fmt.Errorf("stage %s panicked: %v", stage.Name, rec))}
			}
		}()
		out, err := stage.Capability(callCtx, view)
		done <- callResult{out: out, err: err}
	}()

	select {
	case result := <-done:
		return result, false
	case <-ctx.Done():
		if !errors.Is(context.Cause(ctx), ErrRunCancelled) {
			stop()
		}
		return callResult{}, true
	}
}

func (r *run) logFailure(logger *slog.Logger, stage *Stage, kind services.Kind, err error) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.String(logging.FieldErrorHint, services.Hint(kind)),
		logging.Bool("required", stage.Required),
		logging.Error(err),
	}
	if stage.Required {
		attrs = append(attrs, logging.Alert("stage_failure"))
		logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)
		return
	}
	logging.WarnWithContext(logger, "optional stage failed; continuing degraded", "stage_failure",
		append(attrs, logging.String(logging.FieldImpact, "run finishes partially_succeeded"))...)
}
