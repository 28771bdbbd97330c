package persistence

import "time"

// Session and activity status values as stored.
const (
	StatusActive   = "ACTIVE"
	StatusStopped  = "STOPPED"
	StatusIdle     = "IDLE"
	StatusInactive = "INACTIVE"
)

// User represents an employee account.
type User struct {
	UserID       string
	FirstName    string
	LastName     string
	JobRole      string
	PhoneNumber  *string
	PasswordHash string
	RuleID       *string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Rule represents a login rule together with its schedules.
type Rule struct {
	ID          string
	Name        string
	Description string
	Type        string
	IsDefault   bool
	Schedules   []RuleSchedule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RuleSchedule is one stored window of a rule. Times are "HH:MM:SS" and are
// both nil for an all-day window.
type RuleSchedule struct {
	DayOfWeek string
	StartTime *string
	EndTime   *string
	Active    bool
}

// WorkSession represents a tracked span of work.
type WorkSession struct {
	ID                       string
	UserID                   string
	TaskName                 string
	EstimatedDurationMinutes *int64
	StartTime                time.Time
	EndTime                  *time.Time
	Status                   string
	IdleWarningSent          bool
	LastIdleCheckTime        *time.Time
}

// ActivityLog is one activity signal for a session.
type ActivityLog struct {
	ID        string
	SessionID string
	LoggedAt  time.Time
	Status    string
	Metadata  string
}
