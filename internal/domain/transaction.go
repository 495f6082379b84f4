package domain

import (
	"time"
)

// Product categories sold by the storefront.
const (
	CategoryElectronics = "electronics"
	CategoryApparel     = "apparel"
	CategoryHomeGoods   = "home_goods"
)

// Transaction represents a purchase attempt submitted for scoring.
type Transaction struct {
	// Core identifiers
	ID    string `json:"transaction_id"`
	Email string `json:"email"`

	// Payment instrument (never the full PAN)
	CardBIN      string `json:"card_bin"`
	CardLastFour string `json:"card_last_four"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Geography (pre-resolved by the upstream gateway)
	BillingCountry  string `json:"billing_country"`
	ShippingCountry string `json:"shipping_country"`
	IPCountry       string `json:"ip_country"`

	// Order context
	ProductCategory string  `json:"product_category"`
	CustomerID      *string `json:"customer_id,omitempty"`
	IsFirstPurchase bool    `json:"is_first_purchase"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoreRequest is the API request payload for scoring a single transaction.
type ScoreRequest struct {
	TransactionID   string     `json:"transaction_id" validate:"required"`
	Email           string     `json:"email" validate:"required,email"`
	CardBIN         string     `json:"card_bin" validate:"required,len=6"`
	CardLastFour    string     `json:"card_last_four" validate:"required,len=4"`
	Amount          float64    `json:"amount" validate:"required,gt=0"`
	Currency        string     `json:"currency" validate:"omitempty,max=3"`
	BillingCountry  string     `json:"billing_country" validate:"required,len=2"`
	ShippingCountry string     `json:"shipping_country" validate:"required,len=2"`
	IPCountry       string     `json:"ip_country" validate:"required,len=2"`
	ProductCategory string     `json:"product_category" validate:"required,oneof=electronics apparel home_goods"`
	CustomerID      *string    `json:"customer_id,omitempty"`
	IsFirstPurchase bool       `json:"is_first_purchase"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
}

// BatchScoreRequest scores up to 500 transactions in strict input order.
type BatchScoreRequest struct {
	Transactions []ScoreRequest `json:"transactions" validate:"max=500,dive"`
}

// ToTransaction converts a request to a Transaction domain object,
// applying the currency and timestamp defaults.
func (r *ScoreRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return &Transaction{
		ID:              r.TransactionID,
		Email:           r.Email,
		CardBIN:         r.CardBIN,
		CardLastFour:    r.CardLastFour,
		Amount:          r.Amount,
		Currency:        currency,
		BillingCountry:  r.BillingCountry,
		ShippingCountry: r.ShippingCountry,
		IPCountry:       r.IPCountry,
		ProductCategory: r.ProductCategory,
		CustomerID:      r.CustomerID,
		IsFirstPurchase: r.IsFirstPurchase,
		Timestamp:       ts,
		CreatedAt:       now,
	}
}

// FlatMap exposes the transaction as the field map rule conditions
// evaluate against. Keys are the wire-contract field names.
func (t *Transaction) FlatMap() map[string]interface{} {
	var customerID interface{}
	if t.CustomerID != nil {
		customerID = *t.CustomerID
	}
	return map[string]interface{}{
		"transaction_id":    t.ID,
		"email":             t.Email,
		"card_bin":          t.CardBIN,
		"card_last_four":    t.CardLastFour,
		"amount":            t.Amount,
		"currency":          t.Currency,
		"billing_country":   t.BillingCountry,
		"shipping_country":  t.ShippingCountry,
		"ip_country":        t.IPCountry,
		"product_category":  t.ProductCategory,
		"customer_id":       customerID,
		"is_first_purchase": t.IsFirstPurchase,
		"timestamp":         t.Timestamp,
	}
}
