package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/worktrack/internal/rules"
)

// RuleRepository captures the persistence operations needed by the rule service.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule rules.Rule) (rules.Rule, error)
	GetRule(ctx context.Context, id string) (rules.Rule, error)
	UpdateRule(ctx context.Context, rule rules.Rule) (rules.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]rules.Rule, error)
	GetDefaultRule(ctx context.Context) (rules.Rule, error)
	RuleNameExists(ctx context.Context, name string) (bool, error)
	CountUsersAssigned(ctx context.Context, ruleID string) (int, error)
}

const ruleCacheTTL = 30 * time.Second

// RuleService manages tracking rules and answers whether a user may track now.
type RuleService struct {
	rules       RuleRepository
	evaluator   *rules.Evaluator
	publisher   EventPublisher
	cache       *ruleCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRuleService constructs a rule service with the provided dependencies.
func NewRuleService(repo RuleRepository, evaluator *rules.Evaluator, idGenerator func() string, now func() time.Time) *RuleService {
	return NewRuleServiceWithLogger(repo, evaluator, nil, idGenerator, now, nil)
}

// NewRuleServiceWithLogger constructs a rule service with an event publisher and logger.
func NewRuleServiceWithLogger(repo RuleRepository, evaluator *rules.Evaluator, publisher EventPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RuleService {
	if evaluator == nil {
		evaluator = rules.NewEvaluator(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RuleService{
		rules:       repo,
		evaluator:   evaluator,
		publisher:   publisher,
		cache:       newRuleCache(ruleCacheTTL, 0, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *RuleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RuleService", operation, attrs...)
}

// EnsureDefaultRule creates the unrestricted default rule when none exists.
// It is safe to call on every process start.
func (s *RuleService) EnsureDefaultRule(ctx context.Context) (rule rules.Rule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "EnsureDefaultRule")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to ensure default rule", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	rule, err = s.rules.GetDefaultRule(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrNotFound) {
		return
	}

	created := s.now()
	rule, err = s.rules.CreateRule(ctx, rules.Rule{
		ID:          s.idGenerator(),
		Name:        rules.DefaultRuleName,
		Description: rules.DefaultRuleDescription,
		Type:        rules.TypeAllDays,
		IsDefault:   true,
		CreatedAt:   created,
		UpdatedAt:   created,
	})
	if err != nil {
		return
	}

	logger.With("rule_id", rule.ID).InfoContext(ctx, "default rule created")
	return
}

// DefaultRule returns the default rule.
func (s *RuleService) DefaultRule(ctx context.Context) (rules.Rule, error) {
	if s == nil || s.rules == nil {
		return rules.Rule{}, fmt.Errorf("rule repository not configured")
	}
	rule, err := s.rules.GetDefaultRule(ctx)
	if err != nil {
		return rules.Rule{}, mapRuleRepoError(err)
	}
	return rule, nil
}

// CreateRule validates input and persists a new, non-default rule.
func (s *RuleService) CreateRule(ctx context.Context, input RuleInput) (rule rules.Rule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	input = normalizeRuleInput(input)
	logger := s.loggerWith(ctx, "CreateRule", "rule_name", input.Name, "rule_type", string(input.Type))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("rule_id", rule.ID).InfoContext(ctx, "rule created")
	}()

	if err = validateRuleInput(input); err != nil {
		return
	}

	var exists bool
	exists, err = s.rules.RuleNameExists(ctx, input.Name)
	if err != nil {
		return
	}
	if exists {
		err = ErrDuplicateName
		return
	}

	created := s.now()
	rule, err = s.rules.CreateRule(ctx, rules.Rule{
		ID:          s.idGenerator(),
		Name:        input.Name,
		Description: input.Description,
		Type:        input.Type,
		IsDefault:   false,
		Schedules:   activeSchedules(input.Schedules),
		CreatedAt:   created,
		UpdatedAt:   created,
	})
	if err != nil {
		err = mapRuleRepoError(err)
		return
	}

	s.cache.Invalidate()
	publishEvent(ctx, s.publisher, logger, TopicRules, Event{Type: EventRuleChanged, OccurredAt: created, Rule: &rule})
	return
}

// UpdateRule replaces a rule's attributes and its entire schedule set.
func (s *RuleService) UpdateRule(ctx context.Context, params UpdateRuleParams) (rule rules.Rule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	input := normalizeRuleInput(params.Input)
	logger := s.loggerWith(ctx, "UpdateRule", "rule_id", params.RuleID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rule updated")
	}()

	var existing rules.Rule
	existing, err = s.rules.GetRule(ctx, params.RuleID)
	if err != nil {
		err = mapRuleRepoError(err)
		return
	}

	if existing.IsDefault && input.Type != rules.TypeAllDays {
		err = ErrDefaultRuleImmutable
		return
	}

	if err = validateRuleInput(input); err != nil {
		return
	}

	if input.Name != existing.Name {
		var exists bool
		exists, err = s.rules.RuleNameExists(ctx, input.Name)
		if err != nil {
			return
		}
		if exists {
			err = ErrDuplicateName
			return
		}
	}

	updated := existing
	updated.Name = input.Name
	updated.Description = input.Description
	updated.Type = input.Type
	updated.Schedules = activeSchedules(input.Schedules)
	updated.UpdatedAt = s.now()

	rule, err = s.rules.UpdateRule(ctx, updated)
	if err != nil {
		err = mapRuleRepoError(err)
		return
	}

	s.cache.Invalidate()
	publishEvent(ctx, s.publisher, logger, TopicRules, Event{Type: EventRuleChanged, OccurredAt: updated.UpdatedAt, Rule: &rule})
	return
}

// DeleteRule removes a rule that is neither the default nor assigned to anyone.
func (s *RuleService) DeleteRule(ctx context.Context, ruleID string) (err error) {
	if s == nil {
		return fmt.Errorf("RuleService is nil")
	}
	if s.rules == nil {
		return fmt.Errorf("rule repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteRule", "rule_id", ruleID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rule deleted")
	}()

	existing, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return mapRuleRepoError(err)
	}
	if existing.IsDefault {
		return ErrCannotDeleteDefault
	}

	assigned, err := s.rules.CountUsersAssigned(ctx, ruleID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return fmt.Errorf("%w: cannot delete rule '%s' because it is assigned to %d employee(s)", ErrRuleInUse, existing.Name, assigned)
	}

	if err = s.rules.DeleteRule(ctx, ruleID); err != nil {
		return mapRuleRepoError(err)
	}

	s.cache.Invalidate()
	publishEvent(ctx, s.publisher, logger, TopicRules, Event{Type: EventRuleChanged, OccurredAt: s.now(), Rule: &existing})
	return nil
}

// GetRule returns a rule with its assignment count.
func (s *RuleService) GetRule(ctx context.Context, ruleID string) (RuleUsage, error) {
	if s == nil || s.rules == nil {
		return RuleUsage{}, fmt.Errorf("rule repository not configured")
	}

	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return RuleUsage{}, mapRuleRepoError(err)
	}
	assigned, err := s.rules.CountUsersAssigned(ctx, ruleID)
	if err != nil {
		return RuleUsage{}, err
	}
	return RuleUsage{Rule: rule, AssignedEmployees: assigned}, nil
}

// ListRules returns every rule ordered by name, with assignment counts.
func (s *RuleService) ListRules(ctx context.Context) (usages []RuleUsage, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ListRules")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(usages)).InfoContext(ctx, "rules listed")
	}()

	var all []rules.Rule
	all, err = s.rules.ListRules(ctx)
	if err != nil {
		return
	}

	usages = make([]RuleUsage, 0, len(all))
	for _, rule := range all {
		var assigned int
		assigned, err = s.rules.CountUsersAssigned(ctx, rule.ID)
		if err != nil {
			return nil, err
		}
		usages = append(usages, RuleUsage{Rule: rule, AssignedEmployees: assigned})
	}

	sort.Slice(usages, func(i, j int) bool {
		a, b := usages[i].Rule, usages[j].Rule
		if strings.EqualFold(a.Name, b.Name) {
			return a.ID < b.ID
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return
}

// CheckTracking evaluates the user's assigned rule at now.
//
// A user without a rule, or whose rule can no longer be found, is allowed.
func (s *RuleService) CheckTracking(ctx context.Context, user User, now time.Time) (TrackingDecision, error) {
	if s == nil {
		return TrackingDecision{}, fmt.Errorf("RuleService is nil")
	}

	logger := s.loggerWith(ctx, "CheckTracking", "user_id", user.UserID)

	if user.RuleID == nil || *user.RuleID == "" {
		logger.WarnContext(ctx, "user has no rule assigned, allowing tracking")
		return TrackingDecision{Allowed: true, NextWindow: rules.MessageNoRestriction}, nil
	}

	rule, err := s.loadRule(ctx, *user.RuleID)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			logger.WarnContext(ctx, "assigned rule not found, allowing tracking", "rule_id", *user.RuleID)
			return TrackingDecision{Allowed: true, NextWindow: rules.MessageNoRestriction}, nil
		}
		return TrackingDecision{}, err
	}

	if s.evaluator.IsAllowed(rule, now) {
		return TrackingDecision{Allowed: true}, nil
	}

	next := s.evaluator.NextAllowedDescription(rule, now)
	logger.InfoContext(ctx, "tracking denied by rule", "rule_id", rule.ID, "next_window", next)
	return TrackingDecision{Allowed: false, NextWindow: next}, nil
}

// NextAllowedWindow describes when the user may next track.
func (s *RuleService) NextAllowedWindow(ctx context.Context, user User, now time.Time) (string, error) {
	if user.RuleID == nil || *user.RuleID == "" {
		return rules.MessageNoRestriction, nil
	}
	rule, err := s.loadRule(ctx, *user.RuleID)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return rules.MessageNoRestriction, nil
		}
		return "", err
	}
	return s.evaluator.NextAllowedDescription(rule, now), nil
}

func (s *RuleService) loadRule(ctx context.Context, id string) (rules.Rule, error) {
	if rule, ok := s.cache.Get(id); ok {
		return rule, nil
	}
	if s.rules == nil {
		return rules.Rule{}, fmt.Errorf("rule repository not configured")
	}
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return rules.Rule{}, mapRuleRepoError(err)
	}
	s.cache.Store(rule)
	return rule, nil
}

func normalizeRuleInput(input RuleInput) RuleInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = plainText(input.Description)
	input.Type = rules.Type(strings.ToUpper(strings.TrimSpace(string(input.Type))))
	schedules := rules.CloneSchedules(input.Schedules)
	for i := range schedules {
		schedules[i].DayOfWeek = strings.ToUpper(strings.TrimSpace(schedules[i].DayOfWeek))
	}
	input.Schedules = schedules
	return input
}

func validateRuleInput(input RuleInput) error {
	if input.Name == "" {
		vErr := &ValidationError{}
		vErr.add("name", "name is required")
		return vErr
	}
	if tooLong(input.Name, 100) {
		vErr := &ValidationError{}
		vErr.add("name", "name must be at most 100 characters")
		return vErr
	}
	return rules.Validate(input.Type, input.Schedules)
}

func activeSchedules(schedules []rules.Schedule) []rules.Schedule {
	out := rules.CloneSchedules(schedules)
	for i := range out {
		out[i].Active = true
	}
	return out
}

func mapRuleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrRuleNotFound
	}
	if errors.Is(err, ErrAlreadyExists) {
		return ErrDuplicateName
	}
	return err
}
