package prep

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks a preparation request that cannot produce a
// usable dataset (no features, unknown columns, no rows).
var ErrInvalidConfig = errors.New("invalid configuration")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
