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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCreateIntegration(t *testing.T) {
	valid := &CreateIntegration{
		Provider:    "mercadopago",
		Name:        "Loja Principal",
		Credentials: "APP_USR-token",
	}
	assert.NoError(t, valid.ValidateCreateIntegration())

	missingCredentials := &CreateIntegration{Provider: "omie", Name: "ERP"}
	assert.Error(t, missingCredentials.ValidateCreateIntegration())

	unknownProvider := &CreateIntegration{Provider: "stripe", Name: "X", Credentials: "y"}
	assert.Error(t, unknownProvider.ValidateCreateIntegration())
}

func TestValidateResolveCandidate(t *testing.T) {
	assert.Error(t, (&ResolveCandidate{}).ValidateResolveCandidate())
	assert.NoError(t, (&ResolveCandidate{ReceivableID: "rcv_1"}).ValidateResolveCandidate())
}

func TestValidateBatchTransactions(t *testing.T) {
	assert.Error(t, (&BatchTransactions{}).ValidateBatchTransactions())
	assert.NoError(t, (&BatchTransactions{TransactionIDs: []string{"txn_1"}}).ValidateBatchTransactions())
}
