package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tidechain/core"
	"tidechain/crypto"
	"tidechain/native/bridge"
	"tidechain/native/vault"
	"tidechain/observability/logging"
	"tidechain/storage"
)

const testToken = "test-secret"

func testAddr(seed byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = seed
	raw[19] = seed
	return crypto.NewAddress(crypto.TidePrefix, raw)
}

var operator = testAddr(0xEE)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	feeAddr := crypto.NewAddress(crypto.FeePrefix, append(make([]byte, 19), 0xBB))
	node, err := core.NewNode(storage.NewMemDB(), core.Config{
		Operator:    operator,
		VaultModule: crypto.NewAddress(crypto.FeePrefix, append(make([]byte, 19), 0xAA)),
		VaultParams: vault.Params{
			BaseRateBps:          1_000,
			TierDecrementBps:     100,
			MinimumRateBps:       100,
			TierSize:             big.NewInt(1_000_000_000),
			AccrualPeriodSeconds: 86_400,
			FeeRecipient:         feeAddr,
		},
		BridgeKey:          key,
		BridgeFeeRecipient: feeAddr,
		Fabric:             bridge.NewQueueFabric(big.NewInt(0)),
		Clock:              func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	server := NewServer(node, testToken, logging.Setup("rpc-test", "test"))
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, token, method string, params ...interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal param: %v", err)
		}
		rawParams = append(rawParams, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, rpcResp
}

func resultInto(t *testing.T, rpcResp RPCResponse, out interface{}) {
	t.Helper()
	encoded, err := json.Marshal(rpcResp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

func TestInvalidJSONReturnsParseError(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client().Post(ts.URL, "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeParseError {
		t.Fatalf("error = %+v, want code %d", rpcResp.Error, codeParseError)
	}
}

func TestUnknownMethod(t *testing.T) {
	ts := newTestServer(t)
	resp, rpcResp := call(t, ts, "", "tide_noSuchMethod")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want code %d", rpcResp.Error, codeMethodNotFound)
	}
}

func TestMutationsRequireBearerToken(t *testing.T) {
	ts := newTestServer(t)
	for _, method := range []string{"vault_deposit", "bridge_send", "admin_setPaused"} {
		resp, rpcResp := call(t, ts, "", method)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want %d", method, resp.StatusCode, http.StatusUnauthorized)
		}
		if rpcResp.Error == nil || rpcResp.Error.Code != codeUnauthorized {
			t.Fatalf("%s: error = %+v, want code %d", method, rpcResp.Error, codeUnauthorized)
		}
	}

	resp, rpcResp := call(t, ts, "wrong-token", "vault_accrue")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeUnauthorized {
		t.Fatalf("bad token: error = %+v, want code %d", rpcResp.Error, codeUnauthorized)
	}
}

func TestGetBalanceDefaultsToZero(t *testing.T) {
	ts := newTestServer(t)
	_, rpcResp := call(t, ts, "", "tide_getBalance", testAddr(1).String())
	if rpcResp.Error != nil {
		t.Fatalf("error: %+v", rpcResp.Error)
	}
	var result balanceResult
	resultInto(t, rpcResp, &result)
	if result.Balance != "0" {
		t.Fatalf("balance = %q, want 0", result.Balance)
	}
}

func TestDepositFlowOverRPC(t *testing.T) {
	ts := newTestServer(t)
	alice := testAddr(1)

	_, rpcResp := call(t, ts, testToken, "admin_creditBalance", map[string]interface{}{
		"caller": operator.String(),
		"to":     alice.String(),
		"amount": "1000",
	})
	if rpcResp.Error != nil {
		t.Fatalf("credit: %+v", rpcResp.Error)
	}

	_, rpcResp = call(t, ts, testToken, "vault_deposit", map[string]interface{}{
		"depositor": alice.String(),
		"amount":    "400",
	})
	if rpcResp.Error != nil {
		t.Fatalf("deposit: %+v", rpcResp.Error)
	}

	_, rpcResp = call(t, ts, "", "tide_getBalance", alice.String())
	if rpcResp.Error != nil {
		t.Fatalf("balance: %+v", rpcResp.Error)
	}
	var balance balanceResult
	resultInto(t, rpcResp, &balance)
	if balance.Balance != "400" {
		t.Fatalf("token balance = %q, want 400", balance.Balance)
	}

	_, rpcResp = call(t, ts, "", "tide_getLockedRate", alice.String())
	if rpcResp.Error != nil {
		t.Fatalf("locked rate: %+v", rpcResp.Error)
	}
	var rate lockedRateResult
	resultInto(t, rpcResp, &rate)
	if !rate.Set || rate.RateBps != 1_000 {
		t.Fatalf("locked rate = %+v, want (1000, set)", rate)
	}

	_, rpcResp = call(t, ts, "", "vault_getState")
	if rpcResp.Error != nil {
		t.Fatalf("vault state: %+v", rpcResp.Error)
	}
	var state vaultStateResult
	resultInto(t, rpcResp, &state)
	if state.TotalReserve != "400" {
		t.Fatalf("reserve = %q, want 400", state.TotalReserve)
	}
}

// Omitting minOut must accept whatever the reserve can pay, including a
// proportional shortfall after an emergency withdraw.
func TestRedeemWithoutMinOutAcceptsShortfall(t *testing.T) {
	ts := newTestServer(t)
	alice := testAddr(1)
	recovery := testAddr(8)

	_, rpcResp := call(t, ts, testToken, "admin_creditBalance", map[string]interface{}{
		"caller": operator.String(),
		"to":     alice.String(),
		"amount": "1000",
	})
	if rpcResp.Error != nil {
		t.Fatalf("credit: %+v", rpcResp.Error)
	}
	_, rpcResp = call(t, ts, testToken, "vault_deposit", map[string]interface{}{
		"depositor": alice.String(),
		"amount":    "1000",
	})
	if rpcResp.Error != nil {
		t.Fatalf("deposit: %+v", rpcResp.Error)
	}
	_, rpcResp = call(t, ts, testToken, "admin_emergencyWithdraw", map[string]interface{}{
		"caller": operator.String(),
		"to":     recovery.String(),
		"amount": "500",
	})
	if rpcResp.Error != nil {
		t.Fatalf("emergency withdraw: %+v", rpcResp.Error)
	}

	_, rpcResp = call(t, ts, testToken, "vault_redeem", map[string]interface{}{
		"holder": alice.String(),
		"amount": "100",
	})
	if rpcResp.Error != nil {
		t.Fatalf("redeem: %+v", rpcResp.Error)
	}
	var result vaultRedeemResult
	resultInto(t, rpcResp, &result)
	if result.Payout != "50" {
		t.Fatalf("payout = %q, want proportional 50", result.Payout)
	}
}

func TestAdminRejectsNonOperatorCaller(t *testing.T) {
	ts := newTestServer(t)
	stranger := testAddr(9)
	resp, rpcResp := call(t, ts, testToken, "admin_creditBalance", map[string]interface{}{
		"caller": stranger.String(),
		"to":     stranger.String(),
		"amount": "1",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeUnauthorized {
		t.Fatalf("error = %+v, want code %d", rpcResp.Error, codeUnauthorized)
	}
}

func TestPauseReflectedInQueries(t *testing.T) {
	ts := newTestServer(t)

	_, rpcResp := call(t, ts, testToken, "admin_setPaused", map[string]interface{}{
		"caller": operator.String(),
		"module": "vault",
		"paused": true,
	})
	if rpcResp.Error != nil {
		t.Fatalf("pause: %+v", rpcResp.Error)
	}

	_, rpcResp = call(t, ts, "", "admin_getPaused")
	if rpcResp.Error != nil {
		t.Fatalf("get paused: %+v", rpcResp.Error)
	}
	var paused pausedResult
	resultInto(t, rpcResp, &paused)
	if len(paused.Paused) != 1 || paused.Paused[0] != "vault" {
		t.Fatalf("paused = %v, want [vault]", paused.Paused)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	ts := newTestServer(t)
	huge := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tide_getSupply","id":1,"pad":%q}`, bytes.Repeat([]byte("a"), maxRequestBytes))
	resp, err := ts.Client().Post(ts.URL, "application/json", bytes.NewReader([]byte(huge)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusRequestEntityTooLarge)
	}
}
