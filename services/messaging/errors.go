package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fitcoach-controlplane/pkg/errutil"
)

// ErrInvalidAddress is returned for phone numbers that cannot be addressed.
var ErrInvalidAddress = errors.New("invalid address")

// GatewayError is a failed gateway call. Transient errors may be retried.
type GatewayError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("messaging %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("messaging %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Status() errutil.CoreStatus {
	if errors.Is(e.Err, ErrInvalidAddress) {
		return errutil.StatusValidationFailed
	}
	return errutil.StatusBadGateway
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func classifyStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func invalidAddress(raw string) error {
	return &GatewayError{Op: "format_phone", Err: fmt.Errorf("%w: %q", ErrInvalidAddress, raw)}
}
