package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ytreport/internal/services"
)

// classify tags a transport or API failure with its error kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrCancelled, "", op, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "", op, "", err)
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return services.Wrap(statusMarker(statusErr.StatusCode), "", op, "", err)
	}

	var empty *emptyContentError
	if errors.As(err, &empty) {
		if empty.Refusal != "" {
			return services.Wrap(services.ErrUpstreamRejected, "", op, "model refused", err)
		}
		return services.Wrap(services.ErrUnavailable, "", op, "", err)
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return services.Wrap(services.ErrUpstreamRejected, "", op, "", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "", op, "", err)
	}
	return services.Wrap(services.ErrUnavailable, "", op, "", err)
}

func statusMarker(code int) error {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return services.ErrTimeout
	case code == http.StatusTooManyRequests:
		return services.ErrRateLimited
	case code >= http.StatusInternalServerError:
		return services.ErrUnavailable
	default:
		return services.ErrUpstreamRejected
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
