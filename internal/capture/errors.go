package capture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrServiceUnavailable is returned by Run once the circuit breaker opens.
// The remaining queue is not attempted.
var ErrServiceUnavailable = errors.New("capture service unavailable")

// StatusError reports an HTTP error status observed on the main document.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("page returned status %d", e.Code)
}

// fatalFaults mark renderer errors after which the browser session can no
// longer be trusted and must be recycled.
var fatalFaults = []string{
	"protocol error",
	"session closed",
	"navigation failed",
	"target closed",
}

// IsFatalFault reports whether err indicates an unusable render session.
// Matching is by substring, case-insensitive, since driver errors arrive as
// wrapped free-form text.
func IsFatalFault(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fault := range fatalFaults {
		if strings.Contains(msg, fault) {
			return true
		}
	}
	return false
}
