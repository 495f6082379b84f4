package chargeback

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/verdantgoods/riskd/internal/domain"
)

// reasonClauses are the canned explanations attached to the leading
// reason code in the summary. Consumers parse these sentences, so the
// wording is part of the contract.
var reasonClauses = map[string]string{
	domain.ReasonFraud:          "suggesting stolen card usage",
	domain.ReasonNotReceived:    "indicating delivery issues",
	domain.ReasonNotAsDescribed: "suggesting product quality concerns",
	domain.ReasonDuplicate:      "indicating billing system issues",
	domain.ReasonOther:          "requiring further investigation",
}

// buildSummary renders the narrative sentences. Each embeds the figure
// it cites; downstream dashboards parse these.
func buildSummary(r *domain.AnalysisReport) []string {
	summary := make([]string, 0, 5)

	if len(r.ByCountry) > 0 {
		top := r.ByCountry[0]
		summary = append(summary, fmt.Sprintf(
			"%s accounts for %.1f%% of all chargebacks, significantly above its transaction share",
			top.Country, top.Percentage))
	}

	if len(r.ByProductCategory) > 0 {
		top := r.ByProductCategory[0]
		summary = append(summary, fmt.Sprintf(
			"%s have the highest chargeback rate at %.1f%% of all disputes",
			capitalize(top.Category), top.Percentage))
	}

	if len(r.ByReasonCode) > 0 {
		top := r.ByReasonCode[0]
		sentence := fmt.Sprintf("%s is the leading reason code at %.1f%%", top.ReasonCode, top.Percentage)
		if clause, ok := reasonClauses[top.ReasonCode]; ok {
			sentence += ", " + clause
		}
		summary = append(summary, sentence)
	}

	if r.TotalChargebacks > 0 {
		within60 := r.TimeToChargeback.Distribution.Days0To30 + r.TimeToChargeback.Distribution.Days31To60
		summary = append(summary, fmt.Sprintf(
			"Average time to chargeback is %.1f days, with %.1f%% filed within 60 days",
			r.TimeToChargeback.AverageDays, percentage(within60, r.TotalChargebacks)))
	}

	emails := countAtLeast(r.RepeatOffenders.ByEmail, 3)
	cards := countAtLeast(r.RepeatOffenders.ByCardBIN, 3)
	if emails > 0 || cards > 0 {
		summary = append(summary, fmt.Sprintf(
			"%d email addresses and %d card BINs are repeat offenders with 3+ chargebacks each",
			emails, cards))
	}

	return summary
}

func countAtLeast(offenders []domain.Offender, threshold int) int {
	n := 0
	for _, o := range offenders {
		if o.ChargebackCount >= threshold {
			n++
		}
	}
	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(lower)
	return string(unicode.ToUpper(r)) + lower[size:]
}
