package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrRuleBuiltIn     = errors.New("built-in rule cannot be deleted")
	ErrRateLimited     = errors.New("too many permission mutations")
)

// ConfigValidationError reports a rejected share-config update. The whole
// update is rejected; no partial category is applied.
type ConfigValidationError struct {
	Field  string
	Detail string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid share config: %s: %s", e.Field, e.Detail)
}
