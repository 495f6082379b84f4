package domain

// Chargeback reason codes as normalized from the card networks.
const (
	ReasonFraud          = "FRAUD"
	ReasonNotReceived    = "NOT_RECEIVED"
	ReasonNotAsDescribed = "NOT_AS_DESCRIBED"
	ReasonDuplicate      = "DUPLICATE"
	ReasonOther          = "OTHER"
)

// Chargeback is one dispute filed against a settled transaction.
// Dates are calendar dates in YYYY-MM-DD form; chargeback lag is
// measured between them in whole days.
type Chargeback struct {
	ID              string  `json:"id"`
	TransactionID   string  `json:"transaction_id"`
	TransactionDate string  `json:"transaction_date"`
	ChargebackDate  string  `json:"chargeback_date"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Country         string  `json:"country"`
	ProductCategory string  `json:"product_category"`
	ReasonCode      string  `json:"reason_code"`
	Email           string  `json:"email"`
	CardBIN         string  `json:"card_bin"`
}

// ChargebackRequest is the API request payload for recording a chargeback.
// ID is assigned by the server when absent.
type ChargebackRequest struct {
	ID              string  `json:"id"`
	TransactionID   string  `json:"transaction_id" validate:"required"`
	TransactionDate string  `json:"transaction_date" validate:"required,datetime=2006-01-02"`
	ChargebackDate  string  `json:"chargeback_date" validate:"required,datetime=2006-01-02"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	Currency        string  `json:"currency" validate:"omitempty,max=3"`
	Country         string  `json:"country" validate:"required,len=2"`
	ProductCategory string  `json:"product_category" validate:"required,oneof=electronics apparel home_goods"`
	ReasonCode      string  `json:"reason_code" validate:"required,oneof=FRAUD NOT_RECEIVED NOT_AS_DESCRIBED DUPLICATE OTHER"`
	Email           string  `json:"email" validate:"required,email"`
	CardBIN         string  `json:"card_bin" validate:"required,len=6"`
}

// ToChargeback converts a request to a Chargeback, applying defaults.
func (r *ChargebackRequest) ToChargeback() *Chargeback {
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return &Chargeback{
		ID:              r.ID,
		TransactionID:   r.TransactionID,
		TransactionDate: r.TransactionDate,
		ChargebackDate:  r.ChargebackDate,
		Amount:          r.Amount,
		Currency:        currency,
		Country:         r.Country,
		ProductCategory: r.ProductCategory,
		ReasonCode:      r.ReasonCode,
		Email:           r.Email,
		CardBIN:         r.CardBIN,
	}
}

// CountryBreakdown aggregates the filtered ledger for one country.
type CountryBreakdown struct {
	Country         string  `json:"country"`
	ChargebackCount int     `json:"chargeback_count"`
	Percentage      float64 `json:"percentage"`
	TotalAmount     float64 `json:"total_amount"`
}

// CategoryBreakdown aggregates the filtered ledger for one product category.
type CategoryBreakdown struct {
	Category        string  `json:"category"`
	ChargebackCount int     `json:"chargeback_count"`
	Percentage      float64 `json:"percentage"`
	TotalAmount     float64 `json:"total_amount"`
}

// ReasonBreakdown aggregates the filtered ledger for one reason code.
type ReasonBreakdown struct {
	ReasonCode string  `json:"reason_code"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// LagDistribution buckets purchase-to-dispute lags in days.
type LagDistribution struct {
	Days0To30  int `json:"0_30_days"`
	Days31To60 int `json:"31_60_days"`
	Days61To90 int `json:"61_90_days"`
	DaysOver90 int `json:"over_90_days"`
}

// LagStats summarizes how long after purchase disputes are filed.
type LagStats struct {
	AverageDays  float64         `json:"average_days"`
	MedianDays   int             `json:"median_days"`
	MinDays      int             `json:"min_days"`
	MaxDays      int             `json:"max_days"`
	Distribution LagDistribution `json:"distribution"`
}

// Offender is an identifier appearing on two or more chargebacks.
type Offender struct {
	Identifier      string  `json:"identifier"`
	ChargebackCount int     `json:"chargeback_count"`
	TotalAmount     float64 `json:"total_amount"`
}

// RepeatOffenders groups offenders by identifier kind.
type RepeatOffenders struct {
	ByEmail   []Offender `json:"by_email"`
	ByCardBIN []Offender `json:"by_card_bin"`
}

// AnalysisPeriod is the inclusive date range an analysis covers. Bounds
// default to the extrema of the filtered data, or empty when no data.
type AnalysisPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AnalysisReport is the complete output of a chargeback analysis run.
type AnalysisReport struct {
	TotalChargebacks  int                 `json:"total_chargebacks"`
	AnalysisPeriod    AnalysisPeriod      `json:"analysis_period"`
	ByCountry         []CountryBreakdown  `json:"by_country"`
	ByProductCategory []CategoryBreakdown `json:"by_product_category"`
	ByReasonCode      []ReasonBreakdown   `json:"by_reason_code"`
	TimeToChargeback  LagStats            `json:"time_to_chargeback"`
	RepeatOffenders   RepeatOffenders     `json:"repeat_offenders"`
	Summary           []string            `json:"summary"`
}
