package domain

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	percentPrefix = "percent_"

	// CloseCommand drives a valve fully closed.
	CloseCommand = "percent_0"
	// DefaultRestoreCommand is used when the pre-simulation state is unknown (fail open).
	DefaultRestoreCommand = "percent_100"
)

var namedCommand = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PercentCommand builds percent_<p>.
func PercentCommand(p float64) string {
	return percentPrefix + strconv.FormatFloat(p, 'f', -1, 64)
}

// ParsePercent extracts P from percent_P.
func ParsePercent(cmd string) (float64, bool) {
	if !strings.HasPrefix(cmd, percentPrefix) {
		return 0, false
	}
	p, err := strconv.ParseFloat(strings.TrimPrefix(cmd, percentPrefix), 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// ValidateCommand accepts percent_0..percent_100 and lowercase named commands (e.g. "maintenance").
func ValidateCommand(cmd string) error {
	if strings.HasPrefix(cmd, percentPrefix) {
		p, ok := ParsePercent(cmd)
		if !ok || p < 0 || p > 100 {
			return NewValidationError("invalid command: " + cmd)
		}
		return nil
	}
	if !namedCommand.MatchString(cmd) {
		return NewValidationError("invalid command: " + cmd)
	}
	return nil
}
