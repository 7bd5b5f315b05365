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

// Candidate is a scored pairing between a gateway transaction and an ERP
// receivable. Candidates are persisted when a matching run ends ambiguous
// so operators can resolve the dispute later.
type Candidate struct {
	CandidateID   string `json:"candidate_id"`
	TenantID      string `json:"tenant_id"`
	TransactionID string `json:"transaction_id"`
	ReceivableID  string `json:"receivable_id"`

	Score   int      `json:"score"`
	Reasons []string `json:"reasons,omitempty"`

	// Denormalized from the receivable at scoring time so the dispute UI
	// does not need a join against a row that may have been resynced.
	ErpID        string          `json:"erp_id"`
	CustomerName string          `json:"customer_name,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	EmissionDate time.Time       `json:"emission_date"`

	CreatedAt time.Time `json:"created_at"`
}
