package testfixtures

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/worktrack/internal/adapters"
	"github.com/example/worktrack/internal/application"
	"github.com/example/worktrack/internal/events"
	"github.com/example/worktrack/internal/persistence"
	"github.com/example/worktrack/internal/rules"
)

// FastHasherParams keeps argon2id cheap enough for tests.
var FastHasherParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = time.UTC
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services is a fully wired service graph over one store.
type Services struct {
	Store    persistence.Store
	Broker   *events.Broker
	Rules    *application.RuleService
	Users    *application.UserService
	Sessions *application.SessionService
	Activity *application.ActivityService
}

// NewServices wires every application service over store and creates the
// default rule.
func (f *ServiceFactory) NewServices(tb testing.TB, store persistence.Store) *Services {
	tb.Helper()

	now := f.Clock.NowFunc()
	ids := f.IDGenerator.NextFunc()
	broker := events.NewBroker(16, f.Logger)
	tb.Cleanup(broker.Close)

	userRepo := adapters.NewUserRepository(store)
	ruleRepo := adapters.NewRuleRepository(store, store)
	sessionRepo := adapters.NewSessionRepository(store)
	activityRepo := adapters.NewActivityLogRepository(store)

	ruleService := application.NewRuleServiceWithLogger(ruleRepo, rules.NewEvaluator(f.Location), broker, ids, now, f.Logger)
	userService := application.NewUserServiceWithLogger(userRepo, ruleService, application.NewArgon2idHasher(FastHasherParams), broker, now, f.Logger)
	sessionService := application.NewSessionServiceWithLogger(sessionRepo, userRepo, ruleService, broker, ids, now, f.Logger)
	activityService := application.NewActivityServiceWithLogger(activityRepo, sessionRepo, broker, ids, now, f.Logger)

	if _, err := ruleService.EnsureDefaultRule(context.Background()); err != nil {
		tb.Fatalf("failed to ensure default rule: %v", err)
	}

	return &Services{
		Store:    store,
		Broker:   broker,
		Rules:    ruleService,
		Users:    userService,
		Sessions: sessionService,
		Activity: activityService,
	}
}

// CreateEmployee registers an ACTIVE employee with the default rule.
func (s *Services) CreateEmployee(tb testing.TB, userID, first, last string) application.User {
	tb.Helper()

	user, err := s.Users.CreateEmployee(context.Background(), application.CreateEmployeeParams{
		UserID:   userID,
		Password: "correct-horse",
		Input: application.EmployeeInput{
			FirstName: first,
			LastName:  last,
			JobRole:   "Engineer",
			Status:    application.UserActive,
		},
	})
	if err != nil {
		tb.Fatalf("failed to create employee %s: %v", userID, err)
	}
	return user
}
