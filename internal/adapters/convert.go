package adapters

import (
	"fmt"
	"time"

	"github.com/example/worktrack/internal/application"
	"github.com/example/worktrack/internal/persistence"
	"github.com/example/worktrack/internal/rules"
)

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		UserID:       model.UserID,
		FirstName:    model.FirstName,
		LastName:     model.LastName,
		JobRole:      model.JobRole,
		PhoneNumber:  cloneString(model.PhoneNumber),
		PasswordHash: model.PasswordHash,
		RuleID:       cloneString(model.RuleID),
		Status:       application.UserStatus(model.Status),
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User) persistence.User {
	status := string(user.Status)
	if status == "" {
		status = persistence.StatusActive
	}
	return persistence.User{
		UserID:       user.UserID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		JobRole:      user.JobRole,
		PhoneNumber:  cloneString(user.PhoneNumber),
		PasswordHash: user.PasswordHash,
		RuleID:       cloneString(user.RuleID),
		Status:       status,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toPersistenceRule(rule rules.Rule) persistence.Rule {
	schedules := make([]persistence.RuleSchedule, 0, len(rule.Schedules))
	for _, schedule := range rule.Schedules {
		schedules = append(schedules, persistence.RuleSchedule{
			DayOfWeek: schedule.DayOfWeek,
			StartTime: formatTimeOfDay(schedule.Start),
			EndTime:   formatTimeOfDay(schedule.End),
			Active:    schedule.Active,
		})
	}
	return persistence.Rule{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Type:        string(rule.Type),
		IsDefault:   rule.IsDefault,
		Schedules:   schedules,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
	}
}

func toApplicationRule(model persistence.Rule) (rules.Rule, error) {
	ruleType, err := rules.ParseType(model.Type)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("rule %s: %w", model.ID, err)
	}
	schedules := make([]rules.Schedule, 0, len(model.Schedules))
	for _, stored := range model.Schedules {
		start, err := parseTimeOfDay(stored.StartTime)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("rule %s: %w", model.ID, err)
		}
		end, err := parseTimeOfDay(stored.EndTime)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("rule %s: %w", model.ID, err)
		}
		schedules = append(schedules, rules.Schedule{
			DayOfWeek: stored.DayOfWeek,
			Start:     start,
			End:       end,
			Active:    stored.Active,
		})
	}
	return rules.Rule{
		ID:          model.ID,
		Name:        model.Name,
		Description: model.Description,
		Type:        ruleType,
		IsDefault:   model.IsDefault,
		Schedules:   schedules,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}

// formatTimeOfDay always writes seconds so stored values compare as text.
func formatTimeOfDay(t *rules.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	return &s
}

func parseTimeOfDay(value *string) (*rules.TimeOfDay, error) {
	if value == nil {
		return nil, nil
	}
	t, err := rules.ParseTimeOfDay(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toApplicationSession(model persistence.WorkSession) application.WorkSession {
	return application.WorkSession{
		ID:                       model.ID,
		UserID:                   model.UserID,
		TaskName:                 model.TaskName,
		EstimatedDurationMinutes: cloneInt64(model.EstimatedDurationMinutes),
		StartTime:                model.StartTime,
		EndTime:                  cloneTime(model.EndTime),
		Status:                   application.SessionStatus(model.Status),
		IdleWarningSent:          model.IdleWarningSent,
		LastIdleCheckTime:        cloneTime(model.LastIdleCheckTime),
	}
}

func toPersistenceSession(session application.WorkSession) persistence.WorkSession {
	return persistence.WorkSession{
		ID:                       session.ID,
		UserID:                   session.UserID,
		TaskName:                 session.TaskName,
		EstimatedDurationMinutes: cloneInt64(session.EstimatedDurationMinutes),
		StartTime:                session.StartTime,
		EndTime:                  cloneTime(session.EndTime),
		Status:                   string(session.Status),
		IdleWarningSent:          session.IdleWarningSent,
		LastIdleCheckTime:        cloneTime(session.LastIdleCheckTime),
	}
}

func toApplicationActivity(model persistence.ActivityLog) application.ActivityLog {
	return application.ActivityLog{
		ID:        model.ID,
		SessionID: model.SessionID,
		LoggedAt:  model.LoggedAt,
		Status:    application.ActivityStatus(model.Status),
		Metadata:  model.Metadata,
	}
}

func toApplicationActivities(models []persistence.ActivityLog) []application.ActivityLog {
	logs := make([]application.ActivityLog, 0, len(models))
	for _, model := range models {
		logs = append(logs, toApplicationActivity(model))
	}
	return logs
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
