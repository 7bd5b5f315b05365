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

package request

import (
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq(t *testing.T) {
	buf, err := ToJsonReq(map[string]string{"call": "ListarContasReceber"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"call":"ListarContasReceber"}`, buf.String())
}

func TestCallDecodesResponse(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://example.test/v1",
		httpmock.NewStringResponder(200, `{"ok":true}`))

	req, err := http.NewRequest("POST", "https://example.test/v1", nil)
	require.NoError(t, err)

	var out struct {
		OK bool `json:"ok"`
	}
	resp, err := Call(req, &out)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, out.OK)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestCallRawReturnsBody(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://example.test/v1",
		httpmock.NewStringResponder(500, `{"faultstring":"ERROR: conta corrente encerrada"}`))

	req, err := http.NewRequest("POST", "https://example.test/v1", nil)
	require.NoError(t, err)

	resp, body, err := CallRaw(req)
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, string(body), "faultstring")
}
