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

// Status is the internal conciliation lifecycle status of a gateway
// transaction.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusMatched     Status = "MATCHED"
	StatusAmbiguous   Status = "AMBIGUOUS"
	StatusConciliated Status = "CONCILIATED"
	StatusRefunded    Status = "REFUNDED"
	StatusChargeback  Status = "CHARGEBACK"
	StatusIgnored     Status = "IGNORED"
	StatusPaidOut     Status = "PAID_OUT"
)

// FinancialStatus tracks what happened to the money behind a transaction,
// independently of the conciliation lifecycle.
type FinancialStatus string

const (
	FinancialOpen     FinancialStatus = "OPEN"
	FinancialSettled  FinancialStatus = "SETTLED"
	FinancialBlocked  FinancialStatus = "BLOCKED"
	FinancialReversed FinancialStatus = "REVERSED"
)

// Transaction mirrors a payment captured at the gateway, enriched with the
// local conciliation state. Rows are created by gateway ingestion and
// mutated by the matching, dispute and settlement paths.
type Transaction struct {
	TransactionID string `json:"transaction_id"`
	TenantID      string `json:"tenant_id"`
	IntegrationID string `json:"integration_id"`
	GatewayID     string `json:"gateway_id"`

	ExternalReference string `json:"external_reference,omitempty"`
	OperationType     string `json:"operation_type,omitempty"`
	Description       string `json:"description,omitempty"`

	AmountGross          decimal.Decimal `json:"amount_gross"`
	AmountNet            decimal.Decimal `json:"amount_net"`
	AmountPaidByCustomer decimal.Decimal `json:"amount_paid_by_customer"`
	FeeMdr               decimal.Decimal `json:"fee_mdr"`
	FeeFinancing         decimal.Decimal `json:"fee_financing"`
	FeeShipping          decimal.Decimal `json:"fee_shipping"`
	FeeTaxes             decimal.Decimal `json:"fee_taxes"`
	FeeCoupon            decimal.Decimal `json:"fee_coupon"`
	FeeTotal             decimal.Decimal `json:"fee_total"`

	Status          Status          `json:"status"`
	FinancialStatus FinancialStatus `json:"financial_status"`

	GatewayStatus      string     `json:"gateway_status"`
	GatewayDetail      string     `json:"gateway_detail,omitempty"`
	MoneyReleaseStatus string     `json:"money_release_status,omitempty"`
	MoneyReleaseDate   *time.Time `json:"money_release_date,omitempty"`
	MoneyVoidDate      *time.Time `json:"money_void_date,omitempty"`

	ErpID            string `json:"erp_id,omitempty"`
	ErpStatus        string `json:"erp_status,omitempty"`
	MatchDescription string `json:"match_description,omitempty"`

	PayerName     string `json:"payer_name,omitempty"`
	PayerDocument string `json:"payer_document,omitempty"`
	PayerEmail    string `json:"payer_email,omitempty"`

	PaymentMethod string    `json:"payment_method,omitempty"`
	Installments  int       `json:"installments,omitempty"`
	DateEvent     time.Time `json:"date_event"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Linked reports whether the transaction carries an ERP receivable link.
func (t *Transaction) Linked() bool {
	return t.ErpID != ""
}

// SettlementProtected reports whether the transaction reached a state that
// must never be unwound because money was already booked in the ERP.
func (t *Transaction) SettlementProtected() bool {
	return t.Status == StatusConciliated || t.Status == StatusPaidOut
}

// Terminal reports whether the conciliation lifecycle is over for this
// transaction.
func (t *Transaction) Terminal() bool {
	switch t.Status {
	case StatusConciliated, StatusPaidOut, StatusRefunded, StatusChargeback, StatusIgnored:
		return true
	}
	return false
}
