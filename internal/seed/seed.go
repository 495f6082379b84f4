// Package seed loads a deterministic demo dataset into an empty store:
// transaction history with planted clean and suspicious patterns,
// a chargeback ledger with known geographic and category skews, and
// the three default merchant rules.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/rules"
)

// seedValue fixes the PRNG so every empty store gets the same dataset.
const seedValue = 42

const dateLayout = "2006-01-02"

// baseDate anchors the generated history so the dataset is stable
// across runs. Transactions spread over the 90 days before it.
var baseDate = time.Date(2026, time.February, 20, 12, 0, 0, 0, time.UTC)

var (
	countries  = []string{"BR", "MX", "CO"}
	categories = []string{domain.CategoryElectronics, domain.CategoryApparel, domain.CategoryHomeGoods}

	disposableDomains = []string{"temp-mail.org", "guerrillamail.com", "mailinator.com", "throwaway.email", "yopmail.com"}
	normalDomains     = []string{"gmail.com", "outlook.com", "yahoo.com", "hotmail.com", "protonmail.com"}

	firstNames = []string{
		"maria", "joao", "carlos", "ana", "pedro", "lucia", "miguel", "sofia",
		"diego", "valentina", "gabriel", "camila", "rafael", "isabella", "lucas",
		"fernanda", "mateo", "daniela", "andres", "paula", "santiago", "catalina",
		"jose", "mariana", "luis", "elena", "ricardo", "natalia", "jorge", "andrea",
	}
	lastNames = []string{
		"silva", "santos", "oliveira", "souza", "rodrigues", "ferreira", "alves",
		"pereira", "lima", "gomes", "costa", "ribeiro", "martins", "carvalho",
		"garcia", "lopez", "martinez", "hernandez", "gonzalez", "torres",
	}

	cardBINs = []string{
		"411111", "510510", "340000", "370000", "601100",
		"424242", "555555", "378282", "650000", "402400",
	}
)

// Seeder writes the demo dataset through the normal persistence paths.
type Seeder struct {
	repo      domain.Repository
	ruleStore *rules.Store
	rng       *rand.Rand

	nextTxn int
	nextCB  int
}

// New creates a seeder with the fixed demo PRNG.
func New(repo domain.Repository, ruleStore *rules.Store) *Seeder {
	return &Seeder{
		repo:      repo,
		ruleStore: ruleStore,
		rng:       rand.New(rand.NewSource(seedValue)),
	}
}

// Run seeds the demo dataset. It is a no-op when seeding is disabled or
// the store already holds any transactions, chargebacks, or rules.
func (s *Seeder) Run(ctx context.Context, cfg domain.SeedConfig) error {
	if !cfg.Enabled {
		return nil
	}

	empty, err := s.storeIsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe store before seeding: %w", err)
	}
	if !empty {
		slog.Info("seed skipped, store already has data")
		return nil
	}

	txnTarget := cfg.Transactions
	if txnTarget <= 0 {
		txnTarget = 800
	}
	cbTarget := cfg.Chargebacks
	if cbTarget <= 0 {
		cbTarget = 120
	}

	start := time.Now()

	if err := s.seedRules(ctx); err != nil {
		return fmt.Errorf("failed to seed rules: %w", err)
	}
	txns, err := s.seedTransactions(ctx, txnTarget)
	if err != nil {
		return fmt.Errorf("failed to seed transactions: %w", err)
	}
	cbs, err := s.seedChargebacks(ctx, cbTarget)
	if err != nil {
		return fmt.Errorf("failed to seed chargebacks: %w", err)
	}

	slog.Info("demo dataset seeded",
		"transactions", txns,
		"chargebacks", cbs,
		"rules", 3,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// storeIsEmpty reports whether all three stores have no rows. Seeding
// never mixes demo data into a store that has seen real traffic.
func (s *Seeder) storeIsEmpty(ctx context.Context) (bool, error) {
	_, hasTxns, err := s.repo.AverageTransactionAmount(ctx)
	if err != nil {
		return false, err
	}
	if hasTxns {
		return false, nil
	}

	cbs, err := s.repo.ListChargebacks(ctx, "", "")
	if err != nil {
		return false, err
	}
	if len(cbs) > 0 {
		return false, nil
	}

	ruleList, err := s.repo.ListRules(ctx)
	if err != nil {
		return false, err
	}
	return len(ruleList) == 0, nil
}

// seedRules creates the default merchant rules through the rule store
// so validation and cache invalidation run exactly as for API writes.
func (s *Seeder) seedRules(ctx context.Context) error {
	defaults := []*domain.RuleRequest{
		{
			Name:        "High-value first purchase review",
			Description: "First-time buyers spending over $500 are routed to manual review",
			Conditions: []domain.Condition{
				{Field: "amount", Operator: domain.OpGt, Value: 500.0},
				{Field: "is_first_purchase", Operator: domain.OpEq, Value: true},
			},
			Action:            domain.ActionManualReview,
			RiskScoreModifier: 30,
			Priority:          1,
		},
		{
			Name:        "Cross-border disposable email block",
			Description: "Billing and shipping countries differ and the email domain is disposable",
			Conditions: []domain.Condition{
				{Field: "billing_country", Operator: domain.OpNeq, ValueField: "shipping_country"},
				{Field: rules.FieldEmailDisposable, Operator: domain.OpEq, Value: true},
			},
			Action:            domain.ActionReject,
			RiskScoreModifier: 50,
			Priority:          2,
		},
		{
			Name:        "High velocity electronics review",
			Description: "Electronics orders from emails with three or more purchases in 24 hours",
			Conditions: []domain.Condition{
				{Field: "product_category", Operator: domain.OpEq, Value: domain.CategoryElectronics},
				{Field: rules.FieldVelocity24h, Operator: domain.OpGte, Value: 3},
			},
			Action:            domain.ActionManualReview,
			RiskScoreModifier: 20,
			Priority:          3,
		},
	}

	for _, req := range defaults {
		if _, err := s.ruleStore.Create(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// seedTransactions plants clean and suspicious history patterns, then
// fills with general traffic to the target count.
func (s *Seeder) seedTransactions(ctx context.Context, target int) (int, error) {
	var txns []*domain.Transaction

	// Loyal repeat customers: same email, same country, moderate
	// amounts. These keep velocity counts realistic but benign.
	for c := 0; c < 8; c++ {
		email := s.email(firstNames[c], lastNames[c], "gmail.com")
		country := s.pick(countries)
		bin := s.pick(cardBINs)
		customerID := fmt.Sprintf("cust_loyal_%03d", c)
		orders := 5 + s.rng.Intn(4)
		for i := 0; i < orders; i++ {
			txns = append(txns, s.transaction(txnParams{
				email:      email,
				bin:        bin,
				amount:     s.amount(85, 25, 25, 180),
				billing:    country,
				shipping:   country,
				ip:         country,
				category:   s.pick([]string{domain.CategoryApparel, domain.CategoryHomeGoods}),
				customerID: customerID,
				ts:         s.timestampDaysBack(1, 90),
			}))
		}
	}

	// Velocity burst: one email hammering the storefront within hours.
	burstStart := baseDate.Add(-4 * time.Hour)
	for i := 0; i < 12; i++ {
		txns = append(txns, s.transaction(txnParams{
			email:      "speed_buyer@temp-mail.org",
			bin:        "510510",
			amount:     s.amount(200, 50, 100, 400),
			billing:    "BR",
			shipping:   "BR",
			ip:         "BR",
			category:   domain.CategoryElectronics,
			customerID: "cust_speed",
			ts:         burstStart.Add(time.Duration(i*10) * time.Minute),
		}))
	}

	// Geo mismatch cluster: billing, shipping, and IP all disagree.
	for i := 0; i < 6; i++ {
		txns = append(txns, s.transaction(txnParams{
			email:    s.email(s.pick(firstNames), s.pick(lastNames), s.pick(normalDomains)),
			bin:      s.pick(cardBINs),
			amount:   s.amount(250, 80, 100, 500),
			billing:  "BR",
			shipping: "CO",
			ip:       "MX",
			category: s.pick(categories),
			first:    s.rng.Intn(2) == 0,
			ts:       s.timestampDaysBack(1, 15),
		}))
	}

	// High-value first-time buyers.
	for i := 0; i < 4; i++ {
		txns = append(txns, s.transaction(txnParams{
			email:    s.email(s.pick(firstNames), s.pick(lastNames), s.pick(normalDomains)),
			bin:      s.pick(cardBINs),
			amount:   s.amount(700, 50, 600, 850),
			billing:  s.pick(countries),
			shipping: s.pick(countries),
			ip:       s.pick(countries),
			category: domain.CategoryElectronics,
			first:    true,
			ts:       s.timestampDaysBack(1, 10),
		}))
	}

	// Disposable email cluster.
	for i := 0; i < 8; i++ {
		country := s.pick(countries)
		txns = append(txns, s.transaction(txnParams{
			email:    fmt.Sprintf("buyer%d@%s", 100+s.rng.Intn(900), s.pick(disposableDomains)),
			bin:      s.pick(cardBINs),
			amount:   s.amount(180, 60, 50, 400),
			billing:  country,
			shipping: country,
			ip:       country,
			category: s.pick(categories),
			first:    s.rng.Intn(2) == 0,
			ts:       s.timestampDaysBack(1, 20),
		}))
	}

	// Combined red flags: velocity BIN, disposable email, full geo
	// mismatch, high-value first purchase.
	txns = append(txns, s.transaction(txnParams{
		email:    "xk7q9m2p@guerrillamail.com",
		bin:      "510510",
		amount:   749.99,
		billing:  "BR",
		shipping: "MX",
		ip:       "CO",
		category: domain.CategoryElectronics,
		first:    true,
		ts:       baseDate.Add(-1 * time.Hour),
	}))

	// General traffic to reach the target.
	countryWeights := []float64{0.40, 0.35, 0.25}
	categoryWeights := []float64{0.30, 0.40, 0.30}
	for len(txns) < target {
		country := s.pickWeighted(countries, countryWeights)
		shipping := country
		if s.rng.Float64() < 0.15 {
			shipping = s.other(countries, country)
		}
		ip := country
		if s.rng.Float64() < 0.10 {
			ip = s.pick(countries)
		}
		txns = append(txns, s.transaction(txnParams{
			email:    s.email(s.pick(firstNames), s.pick(lastNames), s.pick(normalDomains)),
			bin:      s.pick(cardBINs),
			amount:   s.amount(120, 60, 15, 850),
			billing:  country,
			shipping: shipping,
			ip:       ip,
			category: s.pickWeighted(categories, categoryWeights),
			first:    s.rng.Float64() < 0.4,
			ts:       s.timestampDaysBack(0, 90),
		}))
	}

	for _, tx := range txns {
		if err := s.repo.InsertTransaction(ctx, tx); err != nil {
			return 0, err
		}
	}
	return len(txns), nil
}

// seedChargebacks plants repeat offenders and a seasonal spike, then
// fills with the skewed general distribution.
func (s *Seeder) seedChargebacks(ctx context.Context, target int) (int, error) {
	var cbs []*domain.Chargeback

	// Repeat offender emails, all Brazilian fraud.
	repeatEmails := []string{
		"suspicious_buyer@temp-mail.org",
		"fraud_master@guerrillamail.com",
		"repeat_offender@mailinator.com",
	}
	for _, email := range repeatEmails {
		count := 4 + s.rng.Intn(3)
		for i := 0; i < count; i++ {
			cbs = append(cbs, s.chargeback(cbParams{
				country: "BR",
				reason:  domain.ReasonFraud,
				email:   email,
			}))
		}
	}

	// Repeat card BINs.
	for _, bin := range []string{"510510", "340000"} {
		count := 5 + s.rng.Intn(4)
		for i := 0; i < count; i++ {
			cbs = append(cbs, s.chargeback(cbParams{bin: bin}))
		}
	}

	// Holiday-season purchases dispute at roughly twice the base rate.
	decemberCount := target / 6
	for i := 0; i < decemberCount; i++ {
		txnDate := time.Date(2025, time.December, 1+s.rng.Intn(28), 0, 0, 0, 0, time.UTC)
		cbs = append(cbs, s.chargeback(cbParams{txnDate: &txnDate}))
	}

	for len(cbs) < target {
		cbs = append(cbs, s.chargeback(cbParams{}))
	}

	for _, cb := range cbs {
		if err := s.repo.InsertChargeback(ctx, cb); err != nil {
			return 0, err
		}
	}
	return len(cbs), nil
}

type txnParams struct {
	email      string
	bin        string
	amount     float64
	billing    string
	shipping   string
	ip         string
	category   string
	customerID string
	first      bool
	ts         time.Time
}

func (s *Seeder) transaction(p txnParams) *domain.Transaction {
	s.nextTxn++

	var customerID *string
	if p.customerID != "" {
		customerID = &p.customerID
	} else if !p.first {
		id := fmt.Sprintf("cust_%05d", s.nextTxn)
		customerID = &id
	}

	return &domain.Transaction{
		ID:              fmt.Sprintf("txn_seed_%05d", s.nextTxn),
		Email:           p.email,
		CardBIN:         p.bin,
		CardLastFour:    fmt.Sprintf("%04d", 1000+s.rng.Intn(9000)),
		Amount:          p.amount,
		Currency:        "USD",
		BillingCountry:  p.billing,
		ShippingCountry: p.shipping,
		IPCountry:       p.ip,
		ProductCategory: p.category,
		CustomerID:      customerID,
		IsFirstPurchase: p.first,
		Timestamp:       p.ts,
		CreatedAt:       p.ts,
	}
}

type cbParams struct {
	country string
	reason  string
	email   string
	bin     string
	txnDate *time.Time
}

// Chargeback distribution targets: countries 55/25/20 BR/MX/CO,
// categories 45/30/25 electronics/apparel/home goods, reasons
// 40/25/20/10/5 across the five codes.
func (s *Seeder) chargeback(p cbParams) *domain.Chargeback {
	s.nextCB++

	country := p.country
	if country == "" {
		country = s.pickWeighted(countries, []float64{0.55, 0.25, 0.20})
	}

	category := s.pickWeighted(categories, []float64{0.45, 0.30, 0.25})

	reason := p.reason
	if reason == "" {
		if country == "BR" && s.rng.Float64() < 0.45 {
			reason = domain.ReasonFraud
		} else {
			reason = s.pickWeighted(
				[]string{domain.ReasonFraud, domain.ReasonNotReceived, domain.ReasonNotAsDescribed, domain.ReasonDuplicate, domain.ReasonOther},
				[]float64{0.40, 0.25, 0.20, 0.10, 0.05},
			)
		}
	}
	// Electronics see elevated quality disputes.
	if category == domain.CategoryElectronics && p.reason == "" && s.rng.Float64() < 0.25 {
		reason = domain.ReasonNotAsDescribed
	}

	email := p.email
	if email == "" {
		email = s.email(s.pick(firstNames), s.pick(lastNames), s.pick(normalDomains))
	}

	bin := p.bin
	if bin == "" {
		bin = s.pick(cardBINs)
	}

	txnDate := baseDate.AddDate(0, 0, -(40 + s.rng.Intn(111)))
	if p.txnDate != nil {
		txnDate = *p.txnDate
	}

	lag := int(s.rng.NormFloat64()*20 + 47)
	if lag < 18 {
		lag = 18
	}
	if lag > 120 {
		lag = 120
	}
	cbDate := txnDate.AddDate(0, 0, lag)

	return &domain.Chargeback{
		ID:              fmt.Sprintf("cb_seed_%05d", s.nextCB),
		TransactionID:   fmt.Sprintf("txn_hist_%05d", s.nextCB),
		TransactionDate: txnDate.Format(dateLayout),
		ChargebackDate:  cbDate.Format(dateLayout),
		Amount:          s.amount(180, 80, 25, 600),
		Currency:        "USD",
		Country:         country,
		ProductCategory: category,
		ReasonCode:      reason,
		Email:           email,
		CardBIN:         bin,
	}
}

func (s *Seeder) email(first, last, domain string) string {
	return first + "." + last + "@" + domain
}

// amount draws from a clamped normal distribution, rounded to cents.
func (s *Seeder) amount(mean, std, low, high float64) float64 {
	amt := s.rng.NormFloat64()*std + mean
	if amt < low {
		amt = low
	}
	if amt > high {
		amt = high
	}
	return math.Round(amt*100) / 100
}

func (s *Seeder) pick(items []string) string {
	return items[s.rng.Intn(len(items))]
}

func (s *Seeder) pickWeighted(items []string, weights []float64) string {
	r := s.rng.Float64()
	var cum float64
	for i, w := range weights {
		cum += w
		if r < cum {
			return items[i]
		}
	}
	return items[len(items)-1]
}

// other picks a random item different from the given one.
func (s *Seeder) other(items []string, not string) string {
	for {
		if v := s.pick(items); v != not {
			return v
		}
	}
}

// timestampDaysBack spreads timestamps over a day range before the
// base date with random hour offsets.
func (s *Seeder) timestampDaysBack(minDays, maxDays int) time.Time {
	days := minDays
	if maxDays > minDays {
		days += s.rng.Intn(maxDays - minDays + 1)
	}
	hours := s.rng.Intn(24)
	return baseDate.AddDate(0, 0, -days).Add(-time.Duration(hours) * time.Hour)
}
