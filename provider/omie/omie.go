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

// Package omie is the ERP client. Every call goes through the same
// envelope: a POST with {call, app_key, app_secret, param}, where business
// errors come back as 200 responses carrying a faultstring.
package omie

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/balazzarini/svelto-app/internal/request"
	"github.com/balazzarini/svelto-app/model"
)

const (
	defaultBaseURL = "https://app.omie.com.br/api/v1"

	receivablePageSize = 50
	customerPageSize   = 500

	dateLayout = "02/01/2006"
)

// Client talks to the Omie API with decrypted credentials in the
// "APP_KEY:APP_SECRET" format.
type Client struct {
	BaseURL   string
	appKey    string
	appSecret string
}

func NewClient(credentials string) (*Client, error) {
	parts := strings.SplitN(credentials, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, errors.New("invalid erp credentials, expected APP_KEY:APP_SECRET")
	}
	return &Client{BaseURL: defaultBaseURL, appKey: parts[0], appSecret: parts[1]}, nil
}

type envelope struct {
	Call      string        `json:"call"`
	AppKey    string        `json:"app_key"`
	AppSecret string        `json:"app_secret"`
	Param     []interface{} `json:"param"`
}

// FaultError is a business-level rejection returned inside a 200 response.
type FaultError struct {
	Fault string
}

func (e *FaultError) Error() string {
	return "erp fault: " + e.Fault
}

// IsAlreadySettled reports whether an ERP error signals that the title was
// settled by a prior attempt. These are reclassified as success by the
// settlement reconciler.
func IsAlreadySettled(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{"baixado", "liquidado", "encerrada", "client-103"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// executeCall posts one envelope and surfaces faultstring responses as
// FaultError.
func (c *Client) executeCall(ctx context.Context, endpoint, call string, params interface{}, out interface{}) error {
	payload := envelope{
		Call:      call,
		AppKey:    c.appKey,
		AppSecret: c.appSecret,
		Param:     []interface{}{params},
	}

	body, err := request.ToJsonReq(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+endpoint, body)
	if err != nil {
		return err
	}

	resp, raw, err := request.CallRaw(req)
	if err != nil {
		return errors.Wrapf(err, "erp call %s failed", call)
	}

	var fault struct {
		FaultString string `json:"faultstring"`
	}
	if err := json.Unmarshal(raw, &fault); err == nil && fault.FaultString != "" {
		logrus.Errorf("erp fault on %s: %s", call, fault.FaultString)
		return &FaultError{Fault: fault.FaultString}
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("erp call %s failed with status %d", call, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrapf(err, "erp call %s returned an unreadable body", call)
		}
	}
	return nil
}

// receivableEntry is the raw title shape from ListarContasReceber.
type receivableEntry struct {
	CodigoLancamento  int64   `json:"codigo_lancamento_omie"`
	CodigoCliente     int64   `json:"codigo_cliente_fornecedor"`
	NumeroDocFiscal   string  `json:"numero_documento_fiscal"`
	Nsu               string  `json:"nsu"`
	NumeroPedido      string  `json:"numero_pedido"`
	CodigoCategoria   string  `json:"codigo_categoria"`
	IdContaCorrente   int64   `json:"id_conta_corrente"`
	ValorDocumento    float64 `json:"valor_documento"`
	ValorRecebido     float64 `json:"valor_recebido"`
	ValorSaldo        float64 `json:"valor_saldo_ado"`
	Cancelado         string  `json:"cancelado"`
	DataEmissao       string  `json:"data_emissao"`
	DataVencimento    string  `json:"data_vencimento"`
	NomeCliente       string  `json:"nome_cliente"`
	DocumentoCliente  string  `json:"cnpj_cpf"`
}

type listReceivablesResponse struct {
	Pagina        int               `json:"pagina"`
	TotalDePaginas int              `json:"total_de_paginas"`
	Titulos       []receivableEntry `json:"conta_receber_cadastro"`
}

// ListReceivables pulls every accounts-receivable page in the window and
// maps the titles into internal receivables.
func (c *Client) ListReceivables(ctx context.Context, from, to time.Time) ([]*model.Receivable, error) {
	var out []*model.Receivable

	page := 1
	for {
		params := map[string]interface{}{
			"pagina":                page,
			"registros_por_pagina":  receivablePageSize,
			"apenas_importado_api":  "N",
			"filtrar_por_data_de":   from.Format(dateLayout),
			"filtrar_por_data_ate":  to.Format(dateLayout),
			"filtrar_por_registro_de": from.Format(dateLayout),
		}

		var body listReceivablesResponse
		if err := c.executeCall(ctx, "financas/contareceber/", "ListarContasReceber", params, &body); err != nil {
			return nil, err
		}

		for i := range body.Titulos {
			out = append(out, mapReceivable(&body.Titulos[i]))
		}

		if page >= body.TotalDePaginas || len(body.Titulos) == 0 {
			break
		}
		page++
	}
	return out, nil
}

func mapReceivable(t *receivableEntry) *model.Receivable {
	valorDoc := decimal.NewFromFloat(t.ValorDocumento)
	valorPago := decimal.NewFromFloat(t.ValorRecebido)

	settled := t.ValorSaldo == 0 || (valorPago.GreaterThanOrEqual(valorDoc) && valorDoc.GreaterThan(decimal.Zero))
	status := model.DeriveReceivableStatus(t.Cancelado == "S", settled)

	rcv := &model.Receivable{
		ErpID:          strconv.FormatInt(t.CodigoLancamento, 10),
		CustomerName:   t.NomeCliente,
		CustomerDoc:    t.DocumentoCliente,
		DocumentNumber: t.NumeroDocFiscal,
		Nsu:            t.Nsu,
		ExternalRef:    t.NumeroPedido,
		CategoryCode:   t.CodigoCategoria,
		Amount:         valorDoc,
		Status:         status,
	}
	if t.CodigoCliente != 0 {
		rcv.CustomerCode = strconv.FormatInt(t.CodigoCliente, 10)
	}
	if t.IdContaCorrente != 0 {
		rcv.BankAccountID = strconv.FormatInt(t.IdContaCorrente, 10)
	}
	if d, err := time.Parse(dateLayout, t.DataEmissao); err == nil {
		rcv.EmissionDate = d
	} else {
		rcv.EmissionDate = time.Now().UTC()
	}
	if d, err := time.Parse(dateLayout, t.DataVencimento); err == nil {
		rcv.DueDate = &d
	}
	return rcv
}

type customerEntry struct {
	CodigoCliente int64  `json:"codigo_cliente_omie"`
	RazaoSocial   string `json:"razao_social"`
	NomeFantasia  string `json:"nome_fantasia"`
	CnpjCpf       string `json:"cnpj_cpf"`
}

type listCustomersResponse struct {
	Pagina         int             `json:"pagina"`
	TotalDePaginas int             `json:"total_de_paginas"`
	Clientes       []customerEntry `json:"clientes_cadastro"`
}

// ListCustomers pulls the customer registry, page by page.
func (c *Client) ListCustomers(ctx context.Context) ([]*model.ErpCustomer, error) {
	var out []*model.ErpCustomer

	page := 1
	for {
		params := map[string]interface{}{
			"pagina":               page,
			"registros_por_pagina": customerPageSize,
			"apenas_importado_api": "N",
		}

		var body listCustomersResponse
		if err := c.executeCall(ctx, "geral/clientes/", "ListarClientes", params, &body); err != nil {
			return nil, err
		}

		for _, cli := range body.Clientes {
			out = append(out, &model.ErpCustomer{
				ErpCode:   strconv.FormatInt(cli.CodigoCliente, 10),
				Name:      cli.RazaoSocial,
				TradeName: cli.NomeFantasia,
				Document:  cli.CnpjCpf,
			})
		}

		if page >= body.TotalDePaginas || len(body.Clientes) == 0 {
			break
		}
		page++
	}
	return out, nil
}

// ReceivePaymentParams books the settlement of one title.
type ReceivePaymentParams struct {
	ErpID         string
	BankAccountID string
	Amount        decimal.Decimal
	Discount      decimal.Decimal
	Date          time.Time
	Note          string
	Reconcile     bool
}

// ReceivePayment posts the receivable settlement in the ERP.
func (c *Client) ReceivePayment(ctx context.Context, p ReceivePaymentParams) error {
	erpID, err := strconv.ParseInt(p.ErpID, 10, 64)
	if err != nil {
		return errors.Wrap(err, "receivable erp id is not numeric")
	}
	bankID, err := strconv.ParseInt(p.BankAccountID, 10, 64)
	if err != nil {
		return errors.Wrap(err, "bank account id is not numeric")
	}

	reconcile := "N"
	if p.Reconcile {
		reconcile = "S"
	}
	amount, _ := p.Amount.Float64()
	discount, _ := p.Discount.Float64()

	params := map[string]interface{}{
		"codigo_lancamento":     erpID,
		"codigo_conta_corrente": bankID,
		"valor":                 amount,
		"desconto":              discount,
		"data":                  p.Date.Format(dateLayout),
		"observacao":            p.Note,
		"conciliar_documento":   reconcile,
	}
	return c.executeCall(ctx, "financas/contareceber/", "LancarRecebimento", params, nil)
}

// LedgerEntryParams posts or amends a bank-account ledger entry. Customer
// linkage is deliberately omitted so fee entries never show up on customer
// statements.
type LedgerEntryParams struct {
	IdempotencyKey string
	BankAccountID  string
	Date           time.Time
	Amount         decimal.Decimal
	CategoryCode   string
	Debit          bool
	Note           string
	DocNumber      string
}

func (c *Client) ledgerEntryPayload(p LedgerEntryParams) (map[string]interface{}, error) {
	bankID, err := strconv.ParseInt(p.BankAccountID, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "bank account id is not numeric")
	}

	entryType := "CRED"
	if p.Debit {
		entryType = "DEB"
	}
	amount, _ := p.Amount.Float64()

	detalhes := map[string]interface{}{
		"cCodCateg": p.CategoryCode,
		"cTipo":     entryType,
		"cObs":      p.Note,
	}
	if p.DocNumber != "" {
		detalhes["cNumDoc"] = p.DocNumber
	}

	return map[string]interface{}{
		"cCodIntLanc": p.IdempotencyKey,
		"cabecalho": map[string]interface{}{
			"nCodCC":     bankID,
			"dDtLanc":    p.Date.Format(dateLayout),
			"nValorLanc": amount,
		},
		"detalhes": detalhes,
	}, nil
}

// PostLedgerEntry creates the fee debit in the bank account.
func (c *Client) PostLedgerEntry(ctx context.Context, p LedgerEntryParams) error {
	payload, err := c.ledgerEntryPayload(p)
	if err != nil {
		return err
	}
	return c.executeCall(ctx, "financas/contacorrentelancamentos/", "IncluirLancCC", payload, nil)
}

// AmendLedgerEntry re-submits the same entry to force its reconciliation
// state. Callers treat failures as non-fatal since funds already moved.
func (c *Client) AmendLedgerEntry(ctx context.Context, p LedgerEntryParams) error {
	payload, err := c.ledgerEntryPayload(p)
	if err != nil {
		return err
	}
	return c.executeCall(ctx, "financas/contacorrentelancamentos/", "AlterarLancCC", payload, nil)
}
