// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verdantgoods/riskd/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// InsertTransaction stores a transaction. Inserting an id that already
// exists is a silent no-op so retried scoring calls never double-count
// velocity.
func (r *SQLRepository) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	var customerID sql.NullString
	if tx.CustomerID != nil {
		customerID = sql.NullString{String: *tx.CustomerID, Valid: true}
	}

	firstPurchase := 0
	if tx.IsFirstPurchase {
		firstPurchase = 1
	}

	query := `
		INSERT INTO transactions (
			id, email, card_bin, card_last_four, amount, currency,
			billing_country, shipping_country, ip_country,
			product_category, customer_id, is_first_purchase,
			timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Email, tx.CardBIN, tx.CardLastFour,
		tx.Amount, tx.Currency,
		tx.BillingCountry, tx.ShippingCountry, tx.IPCountry,
		tx.ProductCategory, customerID, firstPurchase,
		tx.Timestamp.UTC(), tx.CreatedAt.UTC(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, email, card_bin, card_last_four, amount, currency,
			   billing_country, shipping_country, ip_country,
			   product_category, customer_id, is_first_purchase,
			   timestamp, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var customerID sql.NullString
	var firstPurchase int

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Email, &tx.CardBIN, &tx.CardLastFour,
		&tx.Amount, &tx.Currency,
		&tx.BillingCountry, &tx.ShippingCountry, &tx.IPCountry,
		&tx.ProductCategory, &customerID, &firstPurchase,
		&tx.Timestamp, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if customerID.Valid {
		tx.CustomerID = &customerID.String
	}
	tx.IsFirstPurchase = firstPurchase == 1

	return &tx, nil
}

// CountTransactions counts stored transactions whose key column matches
// value with timestamp in (before-window, before]. The half-open lower
// bound keeps a transaction exactly at the window edge out of its own
// count.
func (r *SQLRepository) CountTransactions(ctx context.Context, key domain.VelocityKey, value string, before time.Time, window time.Duration) (int, error) {
	var column string
	switch key {
	case domain.VelocityByEmail:
		column = "email"
	case domain.VelocityByCardBIN:
		column = "card_bin"
	default:
		return 0, fmt.Errorf("%w: unknown velocity key %q", ErrInvalidInput, string(key))
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM transactions
		WHERE %s = ? AND timestamp > ? AND timestamp <= ?
	`, column)

	cutoff := before.Add(-window).UTC()

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), value, cutoff, before.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AverageTransactionAmount returns the mean stored amount. ok is false
// when the store holds no transactions.
func (r *SQLRepository) AverageTransactionAmount(ctx context.Context) (float64, bool, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT AVG(amount) FROM transactions`).Scan(&avg)
	if err != nil {
		return 0, false, err
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

// InsertRule stores a rule. IDs are assigned by the caller.
func (r *SQLRepository) InsertRule(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	active := 0
	if rule.IsActive {
		active = 1
	}

	query := `
		INSERT INTO rules (
			id, name, description, conditions, action,
			risk_score_modifier, priority, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, string(conditions),
		rule.Action, rule.RiskScoreModifier, rule.Priority, active,
		rule.CreatedAt.UTC(),
	)
	return err
}

// GetRule retrieves a rule by ID regardless of active state.
func (r *SQLRepository) GetRule(ctx context.Context, ruleID string) (*domain.Rule, error) {
	query := `
		SELECT id, name, description, conditions, action,
			   risk_score_modifier, priority, is_active, created_at
		FROM rules
		WHERE id = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves every rule ordered by ascending priority.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	query := `
		SELECT id, name, description, conditions, action,
			   risk_score_modifier, priority, is_active, created_at
		FROM rules
		ORDER BY priority ASC, created_at ASC, id ASC
	`
	return r.queryRules(ctx, query)
}

// ListActiveRules retrieves active rules in evaluation order.
func (r *SQLRepository) ListActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	query := `
		SELECT id, name, description, conditions, action,
			   risk_score_modifier, priority, is_active, created_at
		FROM rules
		WHERE is_active = 1
		ORDER BY priority ASC, created_at ASC, id ASC
	`
	return r.queryRules(ctx, query)
}

func (r *SQLRepository) queryRules(ctx context.Context, query string) ([]*domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var description sql.NullString
	var conditions string
	var active int

	err := row.Scan(
		&rule.ID, &rule.Name, &description, &conditions,
		&rule.Action, &rule.RiskScoreModifier, &rule.Priority,
		&active, &rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.IsActive = active == 1
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to parse conditions for %s: %w", rule.ID, err)
	}

	return &rule, nil
}

// InsertChargeback records a dispute. Duplicate ids are a silent no-op
// so replayed processor webhooks never double-count.
func (r *SQLRepository) InsertChargeback(ctx context.Context, cb *domain.Chargeback) error {
	if cb.ID == "" {
		return fmt.Errorf("%w: chargeback id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO chargebacks (
			id, transaction_id, transaction_date, chargeback_date,
			amount, currency, country, product_category, reason_code,
			email, card_bin
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cb.ID, cb.TransactionID, cb.TransactionDate, cb.ChargebackDate,
		cb.Amount, cb.Currency, cb.Country, cb.ProductCategory,
		cb.ReasonCode, cb.Email, cb.CardBIN,
	)
	return err
}

// ListChargebacks retrieves chargebacks filtered inclusively on
// chargeback_date. Empty bounds are unbounded. ISO dates compare
// lexicographically, so TEXT comparison is chronological.
func (r *SQLRepository) ListChargebacks(ctx context.Context, startDate, endDate string) ([]*domain.Chargeback, error) {
	query := `
		SELECT id, transaction_id, transaction_date, chargeback_date,
			   amount, currency, country, product_category, reason_code,
			   email, card_bin
		FROM chargebacks
	`

	var conds []string
	var args []interface{}
	if startDate != "" {
		conds = append(conds, "chargeback_date >= ?")
		args = append(args, startDate)
	}
	if endDate != "" {
		conds = append(conds, "chargeback_date <= ?")
		args = append(args, endDate)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY chargeback_date ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargebacks []*domain.Chargeback
	for rows.Next() {
		var cb domain.Chargeback
		if err := rows.Scan(
			&cb.ID, &cb.TransactionID, &cb.TransactionDate, &cb.ChargebackDate,
			&cb.Amount, &cb.Currency, &cb.Country, &cb.ProductCategory,
			&cb.ReasonCode, &cb.Email, &cb.CardBIN,
		); err != nil {
			return nil, err
		}
		chargebacks = append(chargebacks, &cb)
	}

	return chargebacks, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
