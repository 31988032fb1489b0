package catalog

import (
	"errors"
	"fmt"
)

// Error codes for discovery failures, shared with the CLI error output.
const (
	ErrCodeScanError   = "E002" // Directory unreadable
	ErrCodeNotFound    = "E005" // Path not found or not a directory
	ErrCodeDuplicateID = "E008" // Two sources map to the same identifier
)

// DiscoveryError reports a catalog that could not be read. It is fatal for
// the whole run: there is no partial-catalog mode.
type DiscoveryError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// IsDiscoveryError reports whether err is or wraps a *DiscoveryError.
func IsDiscoveryError(err error) bool {
	var de *DiscoveryError
	return errors.As(err, &de)
}
