package channel

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every outbound adapter request.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns a resty client with a bounded timeout and retries
// disabled; retrying is the manager's job.
func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0)
}

// CheckResponse converts a resty outcome into the channel error kinds.
// Transport failures and 5xx statuses become [TransportError]; 401/403
// become [AuthError]; 404 wraps [ErrRemoteNotFound]; 405/501 wrap
// [ErrUnsupported]. Any other non-2xx status is a final rejection.
func CheckResponse(channelName, op string, resp *resty.Response, err error) error {
	if err != nil {
		return &TransportError{Channel: channelName, Op: op, Err: err}
	}
	if resp == nil {
		return &TransportError{Channel: channelName, Op: op, Err: errors.New("no response")}
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{Channel: channelName, Message: fmt.Sprintf("%s returned %d", op, code)}
	case code == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", channelName, op, ErrRemoteNotFound)
	case code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented:
		return fmt.Errorf("%s %s: %w (status %d)", channelName, op, ErrUnsupported, code)
	case code >= 500:
		return &TransportError{Channel: channelName, Op: op, Err: fmt.Errorf("unexpected status %d: %s", code, snippet(resp.Body()))}
	case code >= 300:
		return fmt.Errorf("%s %s: rejected with status %d: %s", channelName, op, code, snippet(resp.Body()))
	}
	return nil
}

// Malformed wraps a decoding failure as a transport error.
func Malformed(channelName, op string, err error) error {
	return &TransportError{Channel: channelName, Op: op, Err: fmt.Errorf("malformed response: %w", err)}
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "…"
	}
	return s
}
