package session

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when an operation that needs a held
// token is invoked before any token has been acquired.
var ErrUnauthenticated = errors.New("no token held")

// ConfigError reports a required configuration field that was missing
// at construction time.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("required configuration field %s is missing", e.Field)
}
