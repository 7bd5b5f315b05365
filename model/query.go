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
	"time"

	"github.com/shopspring/decimal"
)

// ReceivableQuery describes a windowed search over open receivables.
// Cancelled receivables are always excluded from results.
type ReceivableQuery struct {
	IntegrationID string

	// BankAccountID scopes the search to titles of one ERP bank account
	// when set, so multi-account tenants never cross-match.
	BankAccountID string

	// Amount window. When Tolerance is zero the amount must match exactly.
	Amount    decimal.Decimal
	Tolerance decimal.Decimal

	// Emission date window, inclusive.
	EmissionFrom time.Time
	EmissionTo   time.Time

	// NameLike filters on the customer name when non-empty.
	NameLike string

	// OnlyOpen restricts the search to EM ABERTO receivables.
	OnlyOpen bool

	Limit int
}

// Dashboard aggregates the conciliation workload for a tenant.
type Dashboard struct {
	TotalCount       int64           `json:"total_count"`
	PendingCount     int64           `json:"pending_count"`
	MatchedCount     int64           `json:"matched_count"`
	AmbiguousCount   int64           `json:"ambiguous_count"`
	ConciliatedCount int64           `json:"conciliated_count"`
	IgnoredCount     int64           `json:"ignored_count"`
	GrossTotal       decimal.Decimal `json:"gross_total"`
	NetTotal         decimal.Decimal `json:"net_total"`
}
