package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Markers for the capability error taxonomy. Adapters tag failures with one of
// these through Wrap so the executor can classify them without knowing the
// adapter internals.
var (
	ErrNotFound         = errors.New("not found")
	ErrDisabled         = errors.New("disabled")
	ErrRateLimited      = errors.New("rate limited")
	ErrTimeout          = errors.New("timeout")
	ErrUnavailable      = errors.New("upstream unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUpstreamRejected = errors.New("upstream rejected")
	ErrConfiguration    = errors.New("configuration error")
	ErrCancelled        = errors.New("cancelled")
)

// Kind is the stable, persisted name of an error class.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindDisabled           Kind = "disabled"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindUnavailable        Kind = "unavailable"
	KindInvalidInput       Kind = "invalid_input"
	KindUpstreamRejected   Kind = "upstream_rejected"
	KindConfiguration      Kind = "configuration"
	KindContract           Kind = "contract"
	KindGraphConfiguration Kind = "graph_configuration"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// DefaultRetryableKinds lists the kinds treated as transient unless a stage
// retry policy says otherwise.
var DefaultRetryableKinds = []Kind{KindRateLimited, KindTimeout, KindUnavailable}

var markerKinds = []struct {
	marker error
	kind   Kind
}{
	{ErrCancelled, KindCancelled},
	{ErrNotFound, KindNotFound},
	{ErrDisabled, KindDisabled},
	{ErrRateLimited, KindRateLimited},
	{ErrTimeout, KindTimeout},
	{ErrUnavailable, KindUnavailable},
	{ErrInvalidInput, KindInvalidInput},
	{ErrUpstreamRejected, KindUpstreamRejected},
	{ErrConfiguration, KindConfiguration},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err. Untagged context deadlines and network timeouts count
// as timeouts; anything else without a marker is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var kinded interface{ ErrorKind() Kind }
	if errors.As(err, &kinded) {
		if kind := kinded.ErrorKind(); kind != "" {
			return kind
		}
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindInternal
}

// IsRetryable reports whether err belongs to one of the default transient kinds.
func IsRetryable(err error) bool {
	kind := KindOf(err)
	for _, candidate := range DefaultRetryableKinds {
		if kind == candidate {
			return true
		}
	}
	return false
}

// ErrorDetails is a flattened view of a wrapped error for logs and API payloads.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Hint    string
	Cause   error
}

// Details extracts the classification and the human-readable detail of err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := KindOf(err)
	details := ErrorDetails{
		Kind:    kind,
		Message: strings.TrimSpace(err.Error()),
		Hint:    Hint(kind),
		Cause:   errors.Unwrap(err),
	}
	return details
}

// Hint returns a short operator-facing next step for kind.
func Hint(kind Kind) string {
	switch kind {
	case KindNotFound:
		return "verify the video or record exists"
	case KindDisabled:
		return "captions are disabled for this video; pick another video"
	case KindRateLimited:
		return "upstream is throttling requests; lower the request rate"
	case KindTimeout:
		return "raise the adapter timeout_seconds or retry later"
	case KindUnavailable:
		return "upstream returned a server error; retry later"
	case KindInvalidInput:
		return "check the request parameters"
	case KindUpstreamRejected:
		return "check API keys and model names"
	case KindConfiguration, KindGraphConfiguration:
		return "check configuration and graph definitions"
	case KindCancelled:
		return "run was cancelled by request"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
