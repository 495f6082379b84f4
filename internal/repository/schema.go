package repository

// Schema definitions for the riskd database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    card_bin TEXT NOT NULL,
    card_last_four TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    billing_country TEXT NOT NULL,
    shipping_country TEXT NOT NULL,
    ip_country TEXT NOT NULL,
    product_category TEXT NOT NULL,
    customer_id TEXT,
    is_first_purchase INTEGER NOT NULL DEFAULT 0,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_email_ts ON transactions(email, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_bin_ts ON transactions(card_bin, timestamp);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    conditions TEXT NOT NULL,
    action TEXT NOT NULL,
    risk_score_modifier INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_active_priority ON rules(is_active, priority);
`

const schemaChargebacks = `
CREATE TABLE IF NOT EXISTS chargebacks (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    transaction_date TEXT NOT NULL,
    chargeback_date TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    country TEXT NOT NULL,
    product_category TEXT NOT NULL,
    reason_code TEXT NOT NULL,
    email TEXT NOT NULL,
    card_bin TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chargebacks_date ON chargebacks(chargeback_date);
CREATE INDEX IF NOT EXISTS idx_chargebacks_email ON chargebacks(email);
CREATE INDEX IF NOT EXISTS idx_chargebacks_bin ON chargebacks(card_bin);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRules,
		schemaChargebacks,
	}
}
