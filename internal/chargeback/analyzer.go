// Package chargeback implements the dispute ledger analysis: per-country,
// per-category, and per-reason breakdowns, purchase-to-dispute lag
// statistics, repeat offender detection, and the narrative summary.
package chargeback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/verdantgoods/riskd/internal/domain"
)

const dateLayout = "2006-01-02"

// Analyzer computes chargeback pattern reports over the ledger. It is
// read-only apart from Record and safe to share across requests.
type Analyzer struct {
	repo domain.Repository
}

func NewAnalyzer(repo domain.Repository) *Analyzer {
	return &Analyzer{repo: repo}
}

// Record stores one inbound chargeback, assigning an id when the caller
// did not supply one. Duplicate ids are no-ops.
func (a *Analyzer) Record(ctx context.Context, req *domain.ChargebackRequest) (*domain.Chargeback, error) {
	cb := req.ToChargeback()
	if cb.ID == "" {
		cb.ID = uuid.New().String()
	}

	if err := a.repo.InsertChargeback(ctx, cb); err != nil {
		return nil, fmt.Errorf("failed to record chargeback: %w", err)
	}

	slog.Info("chargeback recorded",
		"chargeback_id", cb.ID,
		"transaction_id", cb.TransactionID,
		"reason_code", cb.ReasonCode,
		"amount", cb.Amount,
	)

	return cb, nil
}

// Analyze builds the full report over the ledger subset matching the
// optional inclusive date bounds. An empty range is a valid report with
// zeroed statistics, not an error.
func (a *Analyzer) Analyze(ctx context.Context, startDate, endDate string) (*domain.AnalysisReport, error) {
	records, err := a.repo.ListChargebacks(ctx, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load chargebacks: %w", err)
	}

	total := len(records)
	report := &domain.AnalysisReport{
		TotalChargebacks:  total,
		AnalysisPeriod:    analysisPeriod(records, startDate, endDate),
		ByCountry:         countryBreakdown(records, total),
		ByProductCategory: categoryBreakdown(records, total),
		ByReasonCode:      reasonBreakdown(records, total),
		TimeToChargeback:  lagStats(records),
		RepeatOffenders:   repeatOffenders(records),
	}
	report.Summary = buildSummary(report)

	return report, nil
}

// analysisPeriod echoes the requested bounds, defaulting each missing
// bound to the extrema of the filtered data. Records arrive sorted by
// chargeback date ascending.
func analysisPeriod(records []*domain.Chargeback, startDate, endDate string) domain.AnalysisPeriod {
	period := domain.AnalysisPeriod{Start: startDate, End: endDate}
	if len(records) == 0 {
		return period
	}
	if period.Start == "" {
		period.Start = records[0].ChargebackDate
	}
	if period.End == "" {
		period.End = records[len(records)-1].ChargebackDate
	}
	return period
}

// group is one bucket of a keyed aggregation, in first-seen order until
// sorted.
type group struct {
	key    string
	count  int
	amount float64
}

// groupBy aggregates records by key and sorts the buckets by count
// descending. The sort is stable so equal counts keep ledger order.
func groupBy(records []*domain.Chargeback, keyFn func(*domain.Chargeback) string) []group {
	index := make(map[string]int)
	var groups []group

	for _, cb := range records {
		k := keyFn(cb)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, group{key: k})
		}
		groups[i].count++
		groups[i].amount += cb.Amount
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].count > groups[j].count
	})
	return groups
}

func countryBreakdown(records []*domain.Chargeback, total int) []domain.CountryBreakdown {
	out := make([]domain.CountryBreakdown, 0)
	for _, g := range groupBy(records, func(cb *domain.Chargeback) string { return cb.Country }) {
		out = append(out, domain.CountryBreakdown{
			Country:         g.key,
			ChargebackCount: g.count,
			Percentage:      percentage(g.count, total),
			TotalAmount:     round2(g.amount),
		})
	}
	return out
}

func categoryBreakdown(records []*domain.Chargeback, total int) []domain.CategoryBreakdown {
	out := make([]domain.CategoryBreakdown, 0)
	for _, g := range groupBy(records, func(cb *domain.Chargeback) string { return cb.ProductCategory }) {
		out = append(out, domain.CategoryBreakdown{
			Category:        g.key,
			ChargebackCount: g.count,
			Percentage:      percentage(g.count, total),
			TotalAmount:     round2(g.amount),
		})
	}
	return out
}

func reasonBreakdown(records []*domain.Chargeback, total int) []domain.ReasonBreakdown {
	out := make([]domain.ReasonBreakdown, 0)
	for _, g := range groupBy(records, func(cb *domain.Chargeback) string { return cb.ReasonCode }) {
		out = append(out, domain.ReasonBreakdown{
			ReasonCode: g.key,
			Count:      g.count,
			Percentage: percentage(g.count, total),
		})
	}
	return out
}

// lagStats computes the purchase-to-dispute lag distribution. Bucket
// bounds are inclusive at the top: 0-30, 31-60, 61-90, over 90.
func lagStats(records []*domain.Chargeback) domain.LagStats {
	if len(records) == 0 {
		return domain.LagStats{}
	}

	days := make([]int, 0, len(records))
	sum := 0
	var dist domain.LagDistribution

	for _, cb := range records {
		d := lagDays(cb.TransactionDate, cb.ChargebackDate)
		days = append(days, d)
		sum += d

		switch {
		case d <= 30:
			dist.Days0To30++
		case d <= 60:
			dist.Days31To60++
		case d <= 90:
			dist.Days61To90++
		default:
			dist.DaysOver90++
		}
	}

	sort.Ints(days)
	n := len(days)
	var median int
	if n%2 == 0 {
		median = (days[n/2-1] + days[n/2]) / 2
	} else {
		median = days[n/2]
	}

	return domain.LagStats{
		AverageDays:  math.Round(float64(sum)/float64(n)*10) / 10,
		MedianDays:   median,
		MinDays:      days[0],
		MaxDays:      days[n-1],
		Distribution: dist,
	}
}

// lagDays is the whole-day gap between purchase and dispute, never
// negative. Malformed dates count as zero lag; validation keeps them
// out of the ledger in the first place.
func lagDays(txnDate, cbDate string) int {
	t0, err0 := time.Parse(dateLayout, txnDate)
	t1, err1 := time.Parse(dateLayout, cbDate)
	if err0 != nil || err1 != nil {
		return 0
	}
	d := int(math.Round(t1.Sub(t0).Hours() / 24))
	if d < 0 {
		d = 0
	}
	return d
}

func repeatOffenders(records []*domain.Chargeback) domain.RepeatOffenders {
	return domain.RepeatOffenders{
		ByEmail:   offenders(records, func(cb *domain.Chargeback) string { return cb.Email }),
		ByCardBIN: offenders(records, func(cb *domain.Chargeback) string { return cb.CardBIN }),
	}
}

func offenders(records []*domain.Chargeback, keyFn func(*domain.Chargeback) string) []domain.Offender {
	out := make([]domain.Offender, 0)
	for _, g := range groupBy(records, keyFn) {
		if g.count < 2 {
			continue
		}
		out = append(out, domain.Offender{
			Identifier:      g.key,
			ChargebackCount: g.count,
			TotalAmount:     round2(g.amount),
		})
	}
	return out
}

// percentage is count/total as a percent rounded to one decimal, zero
// when the total is zero.
func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*1000) / 10
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
