package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/example/worktrack/internal/rules"
)

const minPasswordLength = 8

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]User, error)
}

// RuleLookup resolves rules referenced by employees.
type RuleLookup interface {
	GetRule(ctx context.Context, ruleID string) (RuleUsage, error)
	DefaultRule(ctx context.Context) (rules.Rule, error)
}

// UserService manages the employee directory.
type UserService struct {
	users     UserRepository
	rules     RuleLookup
	hasher    PasswordHasher
	publisher EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, ruleLookup RuleLookup, hasher PasswordHasher, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, ruleLookup, hasher, nil, now, nil)
}

// NewUserServiceWithLogger wires dependencies including an event publisher and logger.
func NewUserServiceWithLogger(users UserRepository, ruleLookup RuleLookup, hasher PasswordHasher, publisher EventPublisher, now func() time.Time, logger *slog.Logger) *UserService {
	if hasher == nil {
		hasher = NewArgon2idHasher(DefaultArgon2idParams)
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, rules: ruleLookup, hasher: hasher, publisher: publisher, now: now, logger: defaultLogger(logger)}
}

// CreateEmployee registers an employee. Without an explicit rule the default
// rule is assigned.
func (s *UserService) CreateEmployee(ctx context.Context, params CreateEmployeeParams) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	userID := strings.TrimSpace(params.UserID)
	input := normalizeEmployeeInput(params.Input)

	vErr := validateEmployeeInput(input)
	vErr.merge(validateUserID(userID))
	vErr.merge(validatePassword(params.Password, true))
	if vErr.HasErrors() {
		return User{}, vErr
	}

	ruleID, err := s.resolveRule(ctx, input.RuleID)
	if err != nil {
		return User{}, err
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	created := s.now()
	user, err := s.users.CreateUser(ctx, User{
		UserID:       userID,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		JobRole:      input.JobRole,
		PhoneNumber:  input.PhoneNumber,
		PasswordHash: hash,
		RuleID:       ruleID,
		Status:       input.Status,
		CreatedAt:    created,
		UpdatedAt:    created,
	})
	if err != nil {
		return User{}, err
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "CreateEmployee", "user_id", user.UserID)
	logger.InfoContext(ctx, "employee created")
	publishEvent(ctx, s.publisher, logger, TopicEmployees, Event{Type: EventEmployeeCreated, OccurredAt: created, Employee: &user})
	return user, nil
}

// UpdateEmployee changes an employee's profile, rule, status and optionally password.
func (s *UserService) UpdateEmployee(ctx context.Context, params UpdateEmployeeParams) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	existing, err := s.users.GetUser(ctx, params.UserID)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}

	input := normalizeEmployeeInput(params.Input)
	vErr := validateEmployeeInput(input)
	vErr.merge(validatePassword(params.Password, false))
	if vErr.HasErrors() {
		return User{}, vErr
	}

	ruleID, err := s.resolveRule(ctx, input.RuleID)
	if err != nil {
		return User{}, err
	}

	updated := existing
	updated.FirstName = input.FirstName
	updated.LastName = input.LastName
	updated.JobRole = input.JobRole
	updated.PhoneNumber = input.PhoneNumber
	updated.RuleID = ruleID
	updated.Status = input.Status
	updated.UpdatedAt = s.now()
	if params.Password != "" {
		if updated.PasswordHash, err = s.hasher.Hash(params.Password); err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
	}

	user, err := s.users.UpdateUser(ctx, updated)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "UpdateEmployee", "user_id", user.UserID)
	publishEvent(ctx, s.publisher, logger, TopicEmployees, Event{Type: EventEmployeeUpdated, OccurredAt: updated.UpdatedAt, Employee: &user})
	return user, nil
}

// DeleteEmployee removes an employee from the directory.
func (s *UserService) DeleteEmployee(ctx context.Context, userID string) error {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return fmt.Errorf("user repository not configured")
	}

	existing, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return mapUserRepoError(err)
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return mapUserRepoError(err)
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "DeleteEmployee", "user_id", userID)
	publishEvent(ctx, s.publisher, logger, TopicEmployees, Event{Type: EventEmployeeDeleted, OccurredAt: s.now(), Employee: &existing})
	return nil
}

// GetEmployee returns a single employee.
func (s *UserService) GetEmployee(ctx context.Context, userID string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}
	return user, nil
}

// ListEmployees returns all employees ordered by user ID.
func (s *UserService) ListEmployees(ctx context.Context) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return nil, nil
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]User, len(users))
	copy(out, users)
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// Authenticate checks an employee's password. Unknown users, inactive users
// and wrong passwords all yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, userID, password string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "Authenticate", "user_id", userID)

	user, err := s.users.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.WarnContext(ctx, "authentication failed", "error_kind", ErrorKind(ErrInvalidCredentials))
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if user.Status != UserActive {
		logger.WarnContext(ctx, "authentication rejected for inactive user")
		return User{}, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		logger.WarnContext(ctx, "authentication failed", "error_kind", ErrorKind(ErrInvalidCredentials))
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) resolveRule(ctx context.Context, ruleID *string) (*string, error) {
	if s.rules == nil {
		return ruleID, nil
	}
	if ruleID != nil {
		usage, err := s.rules.GetRule(ctx, *ruleID)
		if err != nil {
			return nil, err
		}
		id := usage.Rule.ID
		return &id, nil
	}
	rule, err := s.rules.DefaultRule(ctx)
	if err != nil {
		return nil, err
	}
	id := rule.ID
	return &id, nil
}

func normalizeEmployeeInput(input EmployeeInput) EmployeeInput {
	out := EmployeeInput{
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		JobRole:     strings.TrimSpace(input.JobRole),
		PhoneNumber: normalizeOptionalString(input.PhoneNumber),
		RuleID:      normalizeOptionalString(input.RuleID),
		Status:      UserStatus(strings.ToUpper(strings.TrimSpace(string(input.Status)))),
	}
	if out.Status == "" {
		out.Status = UserActive
	}
	return out
}

func validateEmployeeInput(input EmployeeInput) *ValidationError {
	vErr := &ValidationError{}

	if input.FirstName == "" {
		vErr.add("first_name", "first name is required")
	}
	if input.LastName == "" {
		vErr.add("last_name", "last name is required")
	}
	if input.Status != UserActive && input.Status != UserInactive {
		vErr.add("status", "status must be ACTIVE or INACTIVE")
	}
	if input.PhoneNumber != nil && tooLong(*input.PhoneNumber, 20) {
		vErr.add("phone_number", "phone number must be at most 20 characters")
	}

	return vErr
}

func validateUserID(userID string) *ValidationError {
	vErr := &ValidationError{}
	switch {
	case userID == "":
		vErr.add("user_id", "user id is required")
	case tooLong(userID, 50):
		vErr.add("user_id", "user id must be at most 50 characters")
	case strings.IndexFunc(userID, unicode.IsSpace) >= 0:
		vErr.add("user_id", "user id must not contain spaces")
	}
	return vErr
}

func validatePassword(password string, required bool) *ValidationError {
	vErr := &ValidationError{}
	if password == "" {
		if required {
			vErr.add("password", "password is required")
		}
		return vErr
	}
	if len([]rune(password)) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return vErr
}

func mapUserRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
