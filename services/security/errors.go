package security

import (
	"errors"
	"fmt"
)

var ErrAlertNotFound = errors.New("security alert not found")

// ConfigurationError reports a rate-limit action with no usable configuration.
// It is a programming error and is never converted into an allow decision.
type ConfigurationError struct {
	Action string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rate limit action %q: %s", e.Action, e.Reason)
}

func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
