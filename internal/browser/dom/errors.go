package dom

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a single required element is missing.
	ErrNotFound = errors.New("element not found")
	// ErrStaleElement is returned by handles whose document has been replaced.
	ErrStaleElement = errors.New("stale element reference")
	// ErrSessionLost means the browser session is gone and nothing further can be done with it.
	ErrSessionLost = errors.New("browser session lost")
	// ErrUnsupported is returned by backends that cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by this page")
)

// sessionLostMarkers are driver error fragments that mean the session died
// underneath us without a typed error.
var sessionLostMarkers = []string{
	"invalid session id",
	"session deleted",
	"session with given id not found",
	"target closed",
	"no target with given id",
	"websocket: close",
}

// IsSessionLost reports whether err means the browser session is unusable.
func IsSessionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionLost) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sessionLostMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
