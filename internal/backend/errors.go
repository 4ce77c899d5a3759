package backend

import (
	"errors"
	"fmt"
)

// OfflineBody placeholder body returned when a read fails and nothing is cached
const OfflineBody = "Offline"

// NetworkError non-2xx response or transport failure talking to the device backend.
// Body carries the backend error text (or OfflineBody).
type NetworkError struct {
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %v", e.Path, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("backend %s: status %d: %s", e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend %s: status %d", e.Path, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork 判断是否为后端网络错误
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsOffline transport failure with no cached copy to fall back on
func IsOffline(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Err != nil && ne.Body == OfflineBody
}
