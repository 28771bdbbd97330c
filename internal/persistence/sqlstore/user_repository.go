package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/worktrack/internal/persistence"
)

// UserRepository implements persistence.UserRepository.
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewUserRepository creates a user repository on pool.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const userColumns = `user_id, first_name, last_name, job_role, phone_number, password_hash, rule_id, status, created_at, updated_at`

// CreateUser inserts a new employee.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query,
			user.UserID,
			user.FirstName,
			user.LastName,
			user.JobRole,
			nullString(user.PhoneNumber),
			user.PasswordHash,
			nullString(user.RuleID),
			user.Status,
			r.helper.timeArg(user.CreatedAt),
			r.helper.timeArg(user.UpdatedAt),
		)
		return err
	})
}

// UpdateUser overwrites an existing employee.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	query := `
		UPDATE users
		SET first_name = ?, last_name = ?, job_role = ?, phone_number = ?, password_hash = ?,
		    rule_id = ?, status = ?, updated_at = ?
		WHERE user_id = ?
	`
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query,
			user.FirstName,
			user.LastName,
			user.JobRole,
			nullString(user.PhoneNumber),
			user.PasswordHash,
			nullString(user.RuleID),
			user.Status,
			r.helper.timeArg(user.UpdatedAt),
			user.UserID,
		)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetUser retrieves an employee by user ID.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (persistence.User, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// ListUsers returns all employees ordered by user ID.
func (r *UserRepository) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

// DeleteUser removes an employee. Sessions and activity cascade.
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// CountUsersWithRule counts employees assigned to ruleID.
func (r *UserRepository) CountUsersWithRule(ctx context.Context, ruleID string) (int, error) {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE rule_id = ?`, ruleID).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		phone, ruleID        sql.NullString
		createdAt, updatedAt timeColumn
	)
	if err := row.Scan(
		&user.UserID,
		&user.FirstName,
		&user.LastName,
		&user.JobRole,
		&phone,
		&user.PasswordHash,
		&ruleID,
		&user.Status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.User{}, err
	}
	user.PhoneNumber = stringPtr(phone)
	user.RuleID = stringPtr(ruleID)
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return user, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
