package model

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid or inconsistent model, sampler or transform
// configuration. Nothing is simulated or sampled once it is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// NumericalError reports a non-finite rate produced during evolution.
type NumericalError struct {
	Country string
	Step    int
	Feature string
	Value   float64
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical: country=%s step=%d %s=%v is not finite", e.Country, e.Step, e.Feature, e.Value)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewConfigError is used by sibling packages that validate their own requests.
func NewConfigError(field, format string, args ...any) error {
	return configErrorf(field, format, args...)
}

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

func IsNumericalError(err error) bool {
	var target *NumericalError
	return errors.As(err, &target)
}
