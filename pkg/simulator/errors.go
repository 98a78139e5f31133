package simulator

import "fmt"

// ConfigurationError signale une configuration invalide. Toujours
// retournée avant le premier jour simulé.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func wrapConfigErr(field string, err error) error {
	return &ConfigurationError{Field: field, Reason: err.Error(), Err: err}
}
