package sqlstore

import (
	"context"

	"github.com/example/worktrack/internal/persistence"
)

// Store bundles the SQL repositories over one connection pool.
type Store struct {
	*UserRepository
	*RuleRepository
	*SessionRepository
	*ActivityLogRepository

	pool *ConnectionPool
	url  string
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by config.URL.
func Open(ctx context.Context, config Config) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Store{
		UserRepository:        NewUserRepository(pool),
		RuleRepository:        NewRuleRepository(pool),
		SessionRepository:     NewSessionRepository(pool),
		ActivityLogRepository: NewActivityLogRepository(pool),
		pool:                  pool,
		url:                   config.URL,
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return RunMigrations(s.url)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Pool exposes the connection pool.
func (s *Store) Pool() *ConnectionPool {
	return s.pool
}
