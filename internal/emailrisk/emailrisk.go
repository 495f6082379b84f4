// Package emailrisk provides lightweight heuristics over customer email
// addresses: disposable-provider detection and local-part randomness.
// The underlying transaction data carries no identity signal beyond the
// address itself, so these heuristics trade precision for zero lookups.
package emailrisk

import (
	"strings"
)

// disposableDomains is the known burner-provider set. Curated from
// provider lists observed in chargeback postmortems; additions only,
// never removals, so historical scores stay reproducible.
var disposableDomains = map[string]struct{}{
	"temp-mail.org":          {},
	"guerrillamail.com":      {},
	"mailinator.com":         {},
	"throwaway.email":        {},
	"tempmail.com":           {},
	"fakeinbox.com":          {},
	"sharklasers.com":        {},
	"guerrillamailblock.com": {},
	"grr.la":                 {},
	"dispostable.com":        {},
	"yopmail.com":            {},
	"trashmail.com":          {},
	"trashmail.me":           {},
	"trashmail.net":          {},
	"maildrop.cc":            {},
	"getairmail.com":         {},
	"getnada.com":            {},
	"tempr.email":            {},
	"discard.email":          {},
	"tmpmail.org":            {},
	"tmpmail.net":            {},
	"emailondeck.com":        {},
	"33mail.com":             {},
	"guerrillamail.info":     {},
	"guerrillamail.net":      {},
	"guerrillamail.de":       {},
	"tempail.com":            {},
	"burnermail.io":          {},
	"inboxbear.com":          {},
	"mailnesia.com":          {},
}

// IsDisposable reports whether the address uses a known burner domain.
// Malformed addresses (zero or multiple "@") are not disposable.
func IsDisposable(email string) bool {
	parts := strings.Split(strings.ToLower(email), "@")
	if len(parts) != 2 {
		return false
	}
	_, ok := disposableDomains[parts[1]]
	return ok
}

// LocalPart returns the part of the address before the first "@".
func LocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// UniqueCharRatio is the share of distinct characters in s. Long local
// parts with a high ratio look machine-generated.
func UniqueCharRatio(s string) float64 {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0.0
	}
	seen := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		seen[r] = struct{}{}
	}
	return float64(len(seen)) / float64(len(runes))
}
