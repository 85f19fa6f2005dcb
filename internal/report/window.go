package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWindow signals a window flag that cannot be parsed.
var ErrInvalidWindow = errors.New("invalid report window")

// DefaultWindow is the horizon used when the caller does not pick one.
const DefaultWindow = "24h"

// Window is a trailing report horizon in whole hours.
type Window struct {
	Hours int
}

// ParseWindow accepts "24h", "7d", or a bare hour count such as "36".
func ParseWindow(raw string) (Window, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return Window{}, fmt.Errorf("%w: empty", ErrInvalidWindow)
	}

	multiplier := 1
	digits := trimmed

	switch {
	case strings.HasSuffix(trimmed, "h"):
		digits = strings.TrimSuffix(trimmed, "h")
	case strings.HasSuffix(trimmed, "d"):
		digits = strings.TrimSuffix(trimmed, "d")
		multiplier = 24
	}

	span, convErr := strconv.Atoi(digits)
	if convErr != nil {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, raw)
	}

	if span <= 0 {
		return Window{}, fmt.Errorf("%w: %q must be a positive span", ErrInvalidWindow, raw)
	}

	return Window{Hours: span * multiplier}, nil
}

// String renders the window in normalized hour form, e.g. "168h".
func (w Window) String() string {
	return fmt.Sprintf("%dh", w.Hours)
}

// Duration returns the window as a time span.
func (w Window) Duration() time.Duration {
	return time.Duration(w.Hours) * time.Hour
}
