package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/worktrack/internal/persistence"
)

// RuleRepository implements persistence.RuleRepository. Schedules live in
// login_rule_schedules and are replaced as a whole on update.
type RuleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewRuleRepository creates a rule repository on pool.
func NewRuleRepository(pool *ConnectionPool) *RuleRepository {
	return &RuleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const ruleColumns = `id, name, description, rule_type, is_default, created_at, updated_at`

// CreateRule inserts a rule and its schedules in one transaction.
func (r *RuleRepository) CreateRule(ctx context.Context, rule persistence.Rule) error {
	if rule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := r.helper.ExecTx(ctx, tx,
				`INSERT INTO login_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rule.ID,
				rule.Name,
				rule.Description,
				rule.Type,
				rule.IsDefault,
				r.helper.timeArg(rule.CreatedAt),
				r.helper.timeArg(rule.UpdatedAt),
			)
			if err != nil {
				return err
			}
			return r.insertSchedules(ctx, tx, rule.ID, rule.Schedules)
		})
	})
}

// UpdateRule overwrites a rule and replaces its schedules.
func (r *RuleRepository) UpdateRule(ctx context.Context, rule persistence.Rule) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := r.helper.ExecTx(ctx, tx, `
				UPDATE login_rules
				SET name = ?, description = ?, rule_type = ?, is_default = ?, updated_at = ?
				WHERE id = ?`,
				rule.Name,
				rule.Description,
				rule.Type,
				rule.IsDefault,
				r.helper.timeArg(rule.UpdatedAt),
				rule.ID,
			)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return persistence.ErrNotFound
			}

			if _, err := r.helper.ExecTx(ctx, tx, `DELETE FROM login_rule_schedules WHERE rule_id = ?`, rule.ID); err != nil {
				return err
			}
			return r.insertSchedules(ctx, tx, rule.ID, rule.Schedules)
		})
	})
}

func (r *RuleRepository) insertSchedules(ctx context.Context, tx *sql.Tx, ruleID string, schedules []persistence.RuleSchedule) error {
	for i, schedule := range schedules {
		_, err := r.helper.ExecTx(ctx, tx, `
			INSERT INTO login_rule_schedules (rule_id, position, day_of_week, start_time, end_time, is_active)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ruleID,
			i,
			schedule.DayOfWeek,
			nullString(schedule.StartTime),
			nullString(schedule.EndTime),
			schedule.Active,
		)
		if err != nil {
			return fmt.Errorf("insert schedule %d: %w", i, err)
		}
	}
	return nil
}

// GetRule retrieves a rule with its schedules.
func (r *RuleRepository) GetRule(ctx context.Context, id string) (persistence.Rule, error) {
	return r.getOne(ctx, `SELECT `+ruleColumns+` FROM login_rules WHERE id = ?`, id)
}

// GetDefaultRule returns the rule flagged as default.
func (r *RuleRepository) GetDefaultRule(ctx context.Context) (persistence.Rule, error) {
	return r.getOne(ctx, `SELECT `+ruleColumns+` FROM login_rules WHERE is_default = ?`, true)
}

func (r *RuleRepository) getOne(ctx context.Context, query string, args ...any) (persistence.Rule, error) {
	rule, err := scanRule(r.helper.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Rule{}, persistence.ErrNotFound
		}
		return persistence.Rule{}, r.mapper.MapError(err)
	}

	schedules, err := r.loadSchedules(ctx, `WHERE rule_id = ?`, rule.ID)
	if err != nil {
		return persistence.Rule{}, err
	}
	rule.Schedules = schedules[rule.ID]
	if rule.Schedules == nil {
		rule.Schedules = []persistence.RuleSchedule{}
	}
	return rule, nil
}

// RuleNameExists reports whether a rule already uses name.
func (r *RuleRepository) RuleNameExists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM login_rules WHERE name = ?`, name).Scan(&count); err != nil {
		return false, r.mapper.MapError(err)
	}
	return count > 0, nil
}

// ListRules returns all rules ordered by name.
func (r *RuleRepository) ListRules(ctx context.Context) ([]persistence.Rule, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+ruleColumns+` FROM login_rules ORDER BY name`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var rules []persistence.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	schedules, err := r.loadSchedules(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Schedules = schedules[rules[i].ID]
		if rules[i].Schedules == nil {
			rules[i].Schedules = []persistence.RuleSchedule{}
		}
	}
	return rules, nil
}

// DeleteRule removes a rule and its schedules. Rules referenced by
// employees fail with ErrConstraintViolation.
func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `DELETE FROM login_rules WHERE id = ?`, id)
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

func (r *RuleRepository) loadSchedules(ctx context.Context, where string, args ...any) (map[string][]persistence.RuleSchedule, error) {
	query := `SELECT rule_id, day_of_week, start_time, end_time, is_active FROM login_rule_schedules ` + where + ` ORDER BY rule_id, position`
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	byRule := make(map[string][]persistence.RuleSchedule)
	for rows.Next() {
		var (
			ruleID     string
			schedule   persistence.RuleSchedule
			start, end sql.NullString
		)
		if err := rows.Scan(&ruleID, &schedule.DayOfWeek, &start, &end, &schedule.Active); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedule.StartTime = stringPtr(start)
		schedule.EndTime = stringPtr(end)
		byRule[ruleID] = append(byRule[ruleID], schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return byRule, nil
}

func scanRule(row rowScanner) (persistence.Rule, error) {
	var (
		rule                 persistence.Rule
		createdAt, updatedAt timeColumn
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Type,
		&rule.IsDefault,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Rule{}, err
	}
	rule.CreatedAt = createdAt.Time
	rule.UpdatedAt = updatedAt.Time
	return rule, nil
}
