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

// Receivable statuses as derived from the ERP ledger entry.
const (
	ReceivableOpen      = "EM ABERTO"
	ReceivableReceived  = "RECEBIDO"
	ReceivableCancelled = "CANCELADO"
	ReceivablePaidOut   = "LIQUIDADO"
)

// Receivable mirrors an accounts-receivable entry pulled from the ERP.
type Receivable struct {
	ReceivableID  string `json:"receivable_id"`
	TenantID      string `json:"tenant_id"`
	IntegrationID string `json:"integration_id"`
	ErpID         string `json:"erp_id"`

	CustomerCode string `json:"customer_code,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
	CustomerDoc  string `json:"customer_doc,omitempty"`

	DocumentNumber string          `json:"document_number,omitempty"`
	Nsu            string          `json:"nsu,omitempty"`
	ExternalRef    string          `json:"external_ref,omitempty"`
	CategoryCode   string          `json:"category_code,omitempty"`
	BankAccountID  string          `json:"bank_account_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`

	EmissionDate time.Time  `json:"emission_date"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	PaymentDate  *time.Time `json:"payment_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Open reports whether the receivable is still waiting for settlement.
func (r *Receivable) Open() bool {
	return r.Status == ReceivableOpen
}

// DeriveReceivableStatus maps the raw ERP entry flags onto the local
// receivable status. Cancellation wins over settlement.
func DeriveReceivableStatus(cancelled bool, settled bool) string {
	if cancelled {
		return ReceivableCancelled
	}
	if settled {
		return ReceivableReceived
	}
	return ReceivableOpen
}

// ErpCustomer is the customer registry entry used to enrich receivables
// that arrive without an inline customer name.
type ErpCustomer struct {
	CustomerID    string    `json:"customer_id"`
	TenantID      string    `json:"tenant_id"`
	IntegrationID string    `json:"integration_id"`
	ErpCode       string    `json:"erp_code"`
	Name          string    `json:"name"`
	TradeName     string    `json:"trade_name,omitempty"`
	Document      string    `json:"document,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
