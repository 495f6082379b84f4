// Package domain defines the core interfaces and types for riskd.
package domain

import (
	"context"
	"time"
)

// VelocityKey selects which identifier a windowed transaction count runs over.
type VelocityKey string

const (
	VelocityByEmail   VelocityKey = "email"
	VelocityByCardBIN VelocityKey = "card_bin"
)

// Repository defines the interface for data persistence. Transaction
// reads must observe every prior completed insert (no caching layer in
// between); the scoring pipeline depends on that for velocity ordering.
type Repository interface {
	// Transaction history. InsertTransaction is idempotent: inserting an
	// existing id is a silent no-op.
	InsertTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// CountTransactions counts stored transactions whose key matches value
	// with timestamp in (before-window, before]. The logical transaction
	// timestamp is used, not insertion time, so replayed history counts
	// the same as live traffic.
	CountTransactions(ctx context.Context, key VelocityKey, value string, before time.Time, window time.Duration) (int, error)

	// AverageTransactionAmount returns the mean stored amount. ok is false
	// when the store is empty; the caller applies its fallback.
	AverageTransactionAmount(ctx context.Context) (avg float64, ok bool, err error)

	// Rule configuration. ListActiveRules orders by ascending priority
	// with a stable tie order.
	InsertRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, ruleID string) (*Rule, error)
	ListRules(ctx context.Context) ([]*Rule, error)
	ListActiveRules(ctx context.Context) ([]*Rule, error)

	// Chargeback ledger. InsertChargeback is idempotent like
	// InsertTransaction; ListChargebacks filters inclusively on
	// chargeback_date, with empty bounds meaning unbounded.
	InsertChargeback(ctx context.Context, cb *Chargeback) error
	ListChargebacks(ctx context.Context, startDate, endDate string) ([]*Chargeback, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
