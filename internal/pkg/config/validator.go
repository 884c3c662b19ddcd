package config

import (
	"cmp"
	"fmt"

	"github.com/robfig/cron/v3"
)

// InRange checks lo <= value <= hi. It works for ints, floats and
// time.Duration, which prints in its own notation.
func InRange[T cmp.Ordered](value, lo, hi T) error {
	if lo > hi {
		return fmt.Errorf("invalid range [%v, %v]", lo, hi)
	}
	if value < lo || value > hi {
		return fmt.Errorf("%v is outside [%v, %v]", value, lo, hi)
	}
	return nil
}

// Between returns a validator for InRange, for use with the LoadEnv functions.
func Between[T cmp.Ordered](lo, hi T) func(T) error {
	return func(v T) error { return InRange(v, lo, hi) }
}

// ValidateCronSchedule accepts five-field cron expressions and the
// descriptors understood by cron.New, such as "@hourly" or "@every 10m".
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("empty cron schedule")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("cron schedule %q: %w", schedule, err)
	}
	return nil
}
