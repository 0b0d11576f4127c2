package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"votex/crypto"
	"votex/exchange"
	"votex/ledger"
	"votex/storage"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testAuthToken = "test-rpc-token"

type rpcHarness struct {
	server   *Server
	engine   *exchange.Engine
	util     *ledger.Token
	gov      *ledger.GovernanceToken
	domain   exchange.Domain
	operator [20]byte
	manager  [20]byte
	now      int64
}

func newRPCHarness(t *testing.T) *rpcHarness {
	t.Helper()
	store := storage.NewMemory()
	util := ledger.NewToken(store, "UTX")
	gov := ledger.NewGovernanceToken(store, "VPX")
	roles := ledger.NewRoles(store)

	var module [20]byte
	module[19] = 0xee
	domain := exchange.Domain{Name: "Votex Exchange", Version: "1", ChainID: 77001, Module: module}

	h := &rpcHarness{
		util:     util,
		gov:      gov,
		domain:   domain,
		operator: [20]byte{19: 0x0a},
		manager:  [20]byte{19: 0x0b},
		now:      1700000000,
	}

	engine := exchange.NewEngine()
	engine.SetLedgers(util, gov)
	engine.SetRoles(roles)
	engine.SetReplayGuard(exchange.NewReplayGuard(store))
	engine.SetCapPolicy(exchange.NewCapPolicy(store))
	engine.SetVerifier(exchange.NewRecoveryVerifier())
	engine.SetDomain(domain)
	engine.SetNowFunc(func() int64 { return h.now })
	h.engine = engine

	if err := roles.Grant(ledger.RoleExchanger, h.operator); err != nil {
		t.Fatalf("grant exchanger: %v", err)
	}
	if err := roles.Grant(ledger.RoleManager, h.manager); err != nil {
		t.Fatalf("grant manager: %v", err)
	}
	funding := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))
	if err := util.Mint(h.operator, funding); err != nil {
		t.Fatalf("fund operator: %v", err)
	}
	if err := util.Approve(h.operator, module, funding); err != nil {
		t.Fatalf("approve module: %v", err)
	}

	h.server = NewServer(engine, util, h.operator, h.manager, testAuthToken)
	return h
}

func (h *rpcHarness) call(t *testing.T, method string, authed bool, params ...interface{}) (*httptest.ResponseRecorder, RPCResponse) {
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
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAuthToken)
	}
	rec := httptest.NewRecorder()
	h.server.handle(rec, req)

	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.VotexPrefix, addr[:]).String()
}

func (h *rpcHarness) signedParams(t *testing.T, key *crypto.PrivateKey, amount *big.Int, nonceByte byte) SubmitIntentParams {
	t.Helper()
	var nonce [32]byte
	nonce[31] = nonceByte
	intent := &exchange.Intent{
		Requester: key.PubKey().RawAddress(),
		Amount:    amount,
		Nonce:     nonce,
		Expiry:    h.now + 3600,
	}
	digest, err := intent.Digest(h.domain)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	signature, err := ethcrypto.Sign(digest[:], key.PrivateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return SubmitIntentParams{
		Requester: bech(intent.Requester),
		Amount:    amount.String(),
		Nonce:     "0x" + hex.EncodeToString(nonce[:]),
		Expiry:    intent.Expiry,
		Signature: "0x" + hex.EncodeToString(signature),
	}
}

func tokenUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestExchangeSubmitSettlesIntent(t *testing.T) {
	h := newRPCHarness(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	params := h.signedParams(t, key, tokenUnits(25), 1)

	rec, resp := h.call(t, "exchange_submit", true, params)
	if rec.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("submit failed: status=%d error=%+v", rec.Code, resp.Error)
	}
	encoded, _ := json.Marshal(resp.Result)
	var result SubmitResult
	if err := json.Unmarshal(encoded, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.GrantedPower != tokenUnits(1).String() {
		t.Fatalf("granted %s want %s", result.GrantedPower, tokenUnits(1))
	}
	if result.BurnedAmount != tokenUnits(25).String() || result.Partial {
		t.Fatalf("unexpected result %+v", result)
	}

	power, err := h.gov.BalanceOf(key.PubKey().RawAddress())
	if err != nil || power.Cmp(tokenUnits(1)) != 0 {
		t.Fatalf("voting power %s err=%v", power, err)
	}

	// Replaying the same intent maps to the nonce conflict code.
	rec, resp = h.call(t, "exchange_submit", true, params)
	if rec.Code != http.StatusConflict || resp.Error == nil || resp.Error.Code != codeNonceUsed {
		t.Fatalf("replay: status=%d error=%+v", rec.Code, resp.Error)
	}
}

func TestExchangeSubmitRequiresAuth(t *testing.T) {
	h := newRPCHarness(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	params := h.signedParams(t, key, tokenUnits(25), 1)

	rec, resp := h.call(t, "exchange_submit", false, params)
	if rec.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unauthenticated submit: status=%d error=%+v", rec.Code, resp.Error)
	}

	req := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"jsonrpc":"2.0","method":"exchange_submit","params":[],"id":1}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec2 := httptest.NewRecorder()
	h.server.handle(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token accepted: status=%d body=%s", rec2.Code, rec2.Body.String())
	}
}

func TestExchangeSubmitRejectsBadSignature(t *testing.T) {
	h := newRPCHarness(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forger, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	params := h.signedParams(t, forger, tokenUnits(25), 1)
	params.Requester = bech(key.PubKey().RawAddress())

	rec, resp := h.call(t, "exchange_submit", true, params)
	if rec.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeBadSignature {
		t.Fatalf("forged submit: status=%d error=%+v", rec.Code, resp.Error)
	}
}

func TestExchangeQuoteAndReadEndpoints(t *testing.T) {
	h := newRPCHarness(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	requester := bech(key.PubKey().RawAddress())

	_, resp := h.call(t, "exchange_quote", false, QuoteParams{Requester: requester, Amount: tokenUnits(25).String()})
	if resp.Error != nil {
		t.Fatalf("quote error: %+v", resp.Error)
	}
	encoded, _ := json.Marshal(resp.Result)
	var quote SubmitResult
	if err := json.Unmarshal(encoded, &quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.GrantedPower != tokenUnits(1).String() {
		t.Fatalf("quote granted %s", quote.GrantedPower)
	}

	_, resp = h.call(t, "exchange_getCap", false)
	if resp.Error != nil {
		t.Fatalf("getCap error: %+v", resp.Error)
	}

	_, resp = h.call(t, "exchange_params", false)
	if resp.Error != nil {
		t.Fatalf("params error: %+v", resp.Error)
	}
	encoded, _ = json.Marshal(resp.Result)
	var exchangeParams ParamsResult
	if err := json.Unmarshal(encoded, &exchangeParams); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if exchangeParams.ChainID != 77001 || exchangeParams.DomainName != "Votex Exchange" {
		t.Fatalf("unexpected params %+v", exchangeParams)
	}

	_, resp = h.call(t, "exchange_holder", false, requester)
	if resp.Error != nil {
		t.Fatalf("holder error: %+v", resp.Error)
	}

	_, resp = h.call(t, "util_balance", false, bech(h.operator))
	if resp.Error != nil {
		t.Fatalf("balance error: %+v", resp.Error)
	}
	encoded, _ = json.Marshal(resp.Result)
	var balance BalanceResult
	if err := json.Unmarshal(encoded, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != tokenUnits(1_000_000).String() {
		t.Fatalf("operator balance %s", balance.Balance)
	}

	_, resp = h.call(t, "exchange_nonceUsed", false, map[string]string{
		"requester": requester,
		"nonce":     "0x" + strings.Repeat("00", 32),
	})
	if resp.Error != nil {
		t.Fatalf("nonceUsed error: %+v", resp.Error)
	}
}

func TestExchangeSetCap(t *testing.T) {
	h := newRPCHarness(t)

	rec, resp := h.call(t, "exchange_setCap", false, SetCapParams{Cap: tokenUnits(2000).String()})
	if rec.Code != http.StatusUnauthorized || resp.Error == nil {
		t.Fatalf("unauthenticated setCap: status=%d error=%+v", rec.Code, resp.Error)
	}

	_, resp = h.call(t, "exchange_setCap", true, SetCapParams{Cap: tokenUnits(2000).String()})
	if resp.Error != nil {
		t.Fatalf("setCap error: %+v", resp.Error)
	}
	cap, err := h.engine.Cap()
	if err != nil || cap.Cmp(tokenUnits(2000)) != 0 {
		t.Fatalf("cap %s err=%v", cap, err)
	}

	// Lowering the cap is rejected with an invalid-params code.
	rec, resp = h.call(t, "exchange_setCap", true, SetCapParams{Cap: tokenUnits(1000).String()})
	if rec.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("lowered cap: status=%d error=%+v", rec.Code, resp.Error)
	}
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	h := newRPCHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not-json"))
	rec := httptest.NewRecorder()
	h.server.handle(rec, req)
	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}

	_, resp = h.call(t, "unknown_method", false)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"1.0","method":"exchange_getCap","id":1}`))
	rec = httptest.NewRecorder()
	h.server.handle(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid-request, got %+v", resp.Error)
	}
}
