package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// Kind labels a failure for error events, logs and metrics.
type Kind string

const (
	KindNotFound Kind = "not_found"
	KindStatus   Kind = "status"
	KindNetwork  Kind = "network"
	KindDecode   Kind = "decode"
	KindExec     Kind = "exec"
	KindCanceled Kind = "canceled"
	KindInternal Kind = "internal"
)

// ErrNotFound marks lookups of unknown projects, avatars or binaries.
var ErrNotFound = errors.New("not found")

// ErrMalformedResponse marks upstream bodies that parsed but lack required fields.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is a non-2xx upstream HTTP response.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s http status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s http status %d: %s", e.Service, e.Code, body)
}

// Retryable reports whether a caller with a retry policy could try again.
// Nothing in the turn pipeline retries; the flag is informational.
func (e *StatusError) Retryable() bool {
	return IsRetryableHTTPStatus(e.Code)
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps an error chain onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		statusErr *StatusError
		netErr    net.Error
		exitErr   *exec.ExitError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrNotFound), errors.Is(err, exec.ErrNotFound):
		return KindNotFound
	case errors.As(err, &statusErr):
		return KindStatus
	case errors.As(err, &exitErr):
		return KindExec
	case errors.Is(err, ErrMalformedResponse), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return KindDecode
	case errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindInternal
	}
}
