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

// Package mercadopago is the payment gateway client. It pages through the
// payment search API and maps the raw payloads defensively into internal
// transactions, so business rules never touch upstream shapes.
package mercadopago

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/balazzarini/svelto-app/internal/request"
	"github.com/balazzarini/svelto-app/model"
)

const (
	defaultBaseURL = "https://api.mercadopago.com"
	pageSize       = 50

	// maxOffset stops runaway pagination loops.
	maxOffset = 10000
)

// Client talks to the Mercado Pago REST API with a decrypted access token.
type Client struct {
	BaseURL     string
	accessToken string
}

func NewClient(accessToken string) *Client {
	return &Client{BaseURL: defaultBaseURL, accessToken: accessToken}
}

// payment is the raw search result shape. Every field the mapper reads is
// optional upstream.
type payment struct {
	ID                 int64   `json:"id"`
	Status             string  `json:"status"`
	StatusDetail       string  `json:"status_detail"`
	OperationType      string  `json:"operation_type"`
	ExternalReference  string  `json:"external_reference"`
	Description        string  `json:"description"`
	PaymentMethodID    string  `json:"payment_method_id"`
	Installments       int     `json:"installments"`
	DateCreated        string  `json:"date_created"`
	MoneyReleaseDate   string  `json:"money_release_date"`
	MoneyReleaseStatus string  `json:"money_release_status"`
	TransactionAmount  float64 `json:"transaction_amount"`
	TaxesAmount        float64 `json:"taxes_amount"`

	TransactionDetails struct {
		NetReceivedAmount float64 `json:"net_received_amount"`
		TotalPaidAmount   float64 `json:"total_paid_amount"`
	} `json:"transaction_details"`

	FeeDetails []struct {
		Type   string  `json:"type"`
		Amount float64 `json:"amount"`
	} `json:"fee_details"`

	Payer struct {
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		Email          string `json:"email"`
		Identification struct {
			Type   string `json:"type"`
			Number string `json:"number"`
		} `json:"identification"`
	} `json:"payer"`

	AdditionalInfo struct {
		Payer struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"payer"`
	} `json:"additional_info"`
}

type searchResponse struct {
	Results []payment `json:"results"`
	Paging  struct {
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	} `json:"paging"`
}

// SearchPayments pages through the payment search window. Incremental
// syncs filter on last-updated, initial loads on creation date. Pages are
// fetched sequentially with retry on transient failures.
func (c *Client) SearchPayments(ctx context.Context, from, to time.Time, useLastUpdated bool) ([]*model.Transaction, error) {
	rangeCriteria := "date_created"
	if useLastUpdated {
		rangeCriteria = "date_last_updated"
	}

	var out []*model.Transaction
	offset := 0
	for {
		page, err := c.fetchPage(ctx, rangeCriteria, from, to, offset)
		if err != nil {
			return nil, err
		}

		for i := range page.Results {
			out = append(out, mapPayment(&page.Results[i]))
		}

		if len(page.Results) < pageSize || offset+pageSize >= page.Paging.Total {
			break
		}
		offset += pageSize
		if offset > maxOffset {
			logrus.Warnf("payment search hit the %d record safety cap, stopping pagination", maxOffset)
			break
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, rangeCriteria string, from, to time.Time, offset int) (*searchResponse, error) {
	params := url.Values{}
	params.Set("sort", rangeCriteria)
	params.Set("criteria", "asc")
	params.Set("range", rangeCriteria)
	params.Set("begin_date", from.UTC().Format(time.RFC3339))
	params.Set("end_date", to.UTC().Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("offset", strconv.Itoa(offset))

	endpoint := fmt.Sprintf("%s/v1/payments/search?%s", c.BaseURL, params.Encode())

	var page *searchResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		var body searchResponse
		resp, err := request.Call(req, &body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return backoff.Permanent(errors.Errorf("payment search rejected with status %d, check the access token", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return errors.Errorf("payment search failed with status %d", resp.StatusCode)
		}
		page = &body
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrap(err, "failed to fetch payment page")
	}
	return page, nil
}

// mapPayment explodes the fee breakdown and resolves the payer name with
// fallbacks, then builds the internal transaction.
func mapPayment(p *payment) *model.Transaction {
	var mdr, financing, shipping, coupon float64
	for _, fee := range p.FeeDetails {
		switch fee.Type {
		case "financing_fee":
			financing += fee.Amount
		case "shipping_fee":
			shipping += fee.Amount
		case "coupon_fee":
			coupon += fee.Amount
		default:
			// mercadopago_fee, application_fee and anything unexpected
			// land on MDR so the net amount still reconciles.
			mdr += fee.Amount
		}
	}

	feeMdr := decimal.NewFromFloat(mdr)
	feeFinancing := decimal.NewFromFloat(financing)
	feeShipping := decimal.NewFromFloat(shipping)
	feeTaxes := decimal.NewFromFloat(p.TaxesAmount)
	feeCoupon := decimal.NewFromFloat(coupon)

	gross := decimal.NewFromFloat(p.TransactionAmount)
	paidByCustomer := decimal.NewFromFloat(p.TransactionDetails.TotalPaidAmount)
	if paidByCustomer.IsZero() {
		paidByCustomer = gross
	}

	txn := &model.Transaction{
		GatewayID:            strconv.FormatInt(p.ID, 10),
		ExternalReference:    p.ExternalReference,
		OperationType:        p.OperationType,
		Description:          p.Description,
		AmountGross:          gross,
		AmountNet:            decimal.NewFromFloat(p.TransactionDetails.NetReceivedAmount),
		AmountPaidByCustomer: paidByCustomer,
		FeeMdr:               feeMdr,
		FeeFinancing:         feeFinancing,
		FeeShipping:          feeShipping,
		FeeTaxes:             feeTaxes,
		FeeCoupon:            feeCoupon,
		FeeTotal:             feeMdr.Add(feeFinancing).Add(feeShipping).Add(feeTaxes),
		Status:               model.StatusPending,
		FinancialStatus:      model.FinancialOpen,
		GatewayStatus:        p.Status,
		GatewayDetail:        p.StatusDetail,
		MoneyReleaseStatus:   p.MoneyReleaseStatus,
		PayerName:            payerName(p),
		PayerDocument:        p.Payer.Identification.Number,
		PayerEmail:           p.Payer.Email,
		PaymentMethod:        paymentMethod(p),
		Installments:         installments(p),
	}

	if t, err := time.Parse(time.RFC3339, p.DateCreated); err == nil {
		txn.DateEvent = t
	} else {
		txn.DateEvent = time.Now().UTC()
	}
	if p.MoneyReleaseDate != "" {
		if t, err := time.Parse(time.RFC3339, p.MoneyReleaseDate); err == nil {
			txn.MoneyReleaseDate = &t
		}
	}
	return txn
}

// payerName prefers the checkout form name, then the account name, then
// the e-mail as a last resort.
func payerName(p *payment) string {
	if p.AdditionalInfo.Payer.FirstName != "" {
		return strings.TrimSpace(p.AdditionalInfo.Payer.FirstName + " " + p.AdditionalInfo.Payer.LastName)
	}
	if p.Payer.FirstName != "" {
		return strings.TrimSpace(p.Payer.FirstName + " " + p.Payer.LastName)
	}
	return p.Payer.Email
}

func paymentMethod(p *payment) string {
	if p.PaymentMethodID == "" {
		return "unknown"
	}
	return p.PaymentMethodID
}

func installments(p *payment) int {
	if p.Installments <= 0 {
		return 1
	}
	return p.Installments
}
