package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/worktrack/internal/rules"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected consistent message for populated error, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestTrackingNotAllowedError(t *testing.T) {
	t.Parallel()

	err := error(&TrackingNotAllowedError{NextWindow: "Next allowed: Today at 09:00"})
	if !errors.Is(err, ErrTrackingNotAllowed) {
		t.Fatalf("expected errors.Is to match ErrTrackingNotAllowed")
	}
	if got := err.Error(); got != "Tracking is not permitted at this time. Next allowed: Today at 09:00" {
		t.Fatalf("unexpected message %q", got)
	}

	wrapped := fmt.Errorf("start: %w", err)
	var target *TrackingNotAllowedError
	if !errors.As(wrapped, &target) || target.NextWindow != "Next allowed: Today at 09:00" {
		t.Fatalf("expected errors.As to recover next window, got %+v", target)
	}

	if got := (&TrackingNotAllowedError{}).Error(); got != "Tracking is not permitted at this time." {
		t.Fatalf("unexpected message without window %q", got)
	}
}

func TestInvalidRuleConfigurationAlias(t *testing.T) {
	t.Parallel()

	err := rules.Validate(rules.TypeAllDays, []rules.Schedule{{DayOfWeek: rules.AllDays}})
	if !errors.Is(err, ErrInvalidRuleConfiguration) {
		t.Fatalf("expected rule validation failures to match ErrInvalidRuleConfiguration, got %v", err)
	}
}
