package httpx

import (
	"context"
	"errors"
	"net"
)

// IsRetryableStatus reports whether an HTTP status from an inference
// endpoint signals a transient condition worth retrying. Quota pushback
// (429), request timeout (408) and server-side failures qualify; every
// other status is terminal for the item.
func IsRetryableStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// IsTransientError reports whether a transport-level error is worth
// retrying: timeouts and temporary network failures.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
