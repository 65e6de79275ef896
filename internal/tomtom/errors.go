package tomtom

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrProviderUnavailable marks transient transport failures (timeouts,
// connection errors, 429, 5xx). The caller may try again on its next
// scheduled tick; nothing retries within a tick.
var ErrProviderUnavailable = errors.New("tomtom: provider unavailable")

// ErrProviderRejected marks permanent rejections (invalid coordinates, no
// routable segment near the point). The venue should be flagged for manual
// review rather than retried.
var ErrProviderRejected = errors.New("tomtom: provider rejected request")

// isTransportError reports whether err looks like a transient network
// failure rather than a rejection of the request itself.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from net/http.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"context deadline exceeded",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
