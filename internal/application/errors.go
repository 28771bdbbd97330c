package application

import (
	"errors"

	"github.com/example/worktrack/internal/rules"
)

var (
	// ErrNotFound is returned by repositories when the requested record does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned by repositories when a conditional write lost a race.
	ErrConflict = errors.New("application: conflicting update")
	// ErrAlreadyExists is returned when a natural key is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned when a password check fails.
	ErrInvalidCredentials = errors.New("application: invalid credentials")

	// ErrUserNotFound is returned when the employee cannot be resolved.
	ErrUserNotFound = errors.New("application: user not found")
	// ErrSessionNotFound is returned when the work session does not exist.
	ErrSessionNotFound = errors.New("application: session not found")
	// ErrAlreadyStopped is returned when stopping a session that is already stopped.
	ErrAlreadyStopped = errors.New("application: session already stopped")
	// ErrTrackingNotAllowed is matched by TrackingNotAllowedError.
	ErrTrackingNotAllowed = errors.New("application: tracking is not permitted at this time")

	// ErrRuleNotFound is returned when the tracking rule does not exist.
	ErrRuleNotFound = errors.New("application: rule not found")
	// ErrInvalidRuleConfiguration is returned when schedules do not fit the rule type.
	ErrInvalidRuleConfiguration = rules.ErrInvalidConfiguration
	// ErrDuplicateName is returned when another rule already uses the name.
	ErrDuplicateName = errors.New("application: rule name already exists")
	// ErrDefaultRuleImmutable is returned when changing the default rule away from ALL_DAYS.
	ErrDefaultRuleImmutable = errors.New("application: default rule type cannot be changed")
	// ErrRuleInUse is returned when deleting a rule that employees are assigned to.
	ErrRuleInUse = errors.New("application: rule is assigned to employees")
	// ErrCannotDeleteDefault is returned when deleting the default rule.
	ErrCannotDeleteDefault = errors.New("application: default rule cannot be deleted")
)

// TrackingNotAllowedError carries the next allowed window alongside a denial.
type TrackingNotAllowedError struct {
	NextWindow string
}

func (e *TrackingNotAllowedError) Error() string {
	if e == nil || e.NextWindow == "" {
		return "Tracking is not permitted at this time."
	}
	return "Tracking is not permitted at this time. " + e.NextWindow
}

// Is lets errors.Is match the sentinel.
func (e *TrackingNotAllowedError) Is(target error) bool {
	return target == ErrTrackingNotAllowed
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
