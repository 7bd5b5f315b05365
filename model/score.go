/*
Copyright 2024 Svelto Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MinCandidateScore is the floor below which a scored pairing is
	// discarded instead of being surfaced as a candidate.
	MinCandidateScore = 60

	amountPenalty = 15
	namePenalty   = 10
)

// AmountTolerance is the rounding slack allowed before an amount
// difference is penalized or blocks settlement.
var AmountTolerance = decimal.NewFromFloat(0.01)

// MatchScore is the outcome of scoring one transaction against one
// receivable. Reasons explain each penalty applied.
type MatchScore struct {
	Score   int
	Reasons []string
}

// ScoreCandidate rates how well a receivable fits a transaction. The score
// starts at 100 and penalties are subtracted per divergence band. Pure and
// deterministic, no I/O.
func ScoreCandidate(txn *Transaction, rcv *Receivable) MatchScore {
	score := 100.0
	var reasons []string

	diff := txn.AmountGross.Sub(rcv.Amount).Abs()
	if diff.GreaterThan(AmountTolerance) {
		score -= amountPenalty
		reasons = append(reasons, fmt.Sprintf("amount differs %s", diff.StringFixed(2)))
	}

	days := daysApart(txn.DateEvent, rcv.EmissionDate)
	if days > 0 {
		if days <= 3 {
			score -= float64(days) * 1.5
		} else {
			score -= float64(days) * 5
		}
		reasons = append(reasons, fmt.Sprintf("%dd difference", days))
	}

	if txn.PayerName != "" && rcv.CustomerName != "" {
		if !namesMatch(txn.PayerName, rcv.CustomerName) {
			score -= namePenalty
			reasons = append(reasons, "name divergent")
		}
	}

	if score < 0 {
		score = 0
	}
	return MatchScore{Score: int(math.Round(score)), Reasons: reasons}
}

// Accepted reports whether the score clears the candidate floor.
func (m MatchScore) Accepted() bool {
	return m.Score >= MinCandidateScore
}

// daysApart counts whole 24-hour periods, not calendar days, so a
// late-night payment scored against the next morning's emission still
// counts as same-day.
func daysApart(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}

// namesMatch tokenizes both names and looks for overlap. Two shared tokens
// always match; a single shared token only matches when one of the names
// has a single token, so "Maria" still matches "Maria Silva Ltda".
func namesMatch(a, b string) bool {
	ta := nameTokens(a)
	tb := nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return true
	}
	common := 0
	seen := make(map[string]bool, len(ta))
	for _, t := range ta {
		seen[t] = true
	}
	for _, t := range tb {
		if seen[t] {
			common++
			delete(seen, t)
		}
	}
	if common >= 2 {
		return true
	}
	return common == 1 && (len(ta) == 1 || len(tb) == 1)
}

func nameTokens(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
