package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"votex/crypto"
	"votex/exchange"
	"votex/ledger"
	"votex/observability"
)

// SubmitIntentParams is the wire form of a signed exchange intent. Amounts
// are decimal strings in base units; the nonce and signature are hex encoded.
type SubmitIntentParams struct {
	Requester string `json:"requester"`
	Amount    string `json:"amount"`
	Nonce     string `json:"nonce"`
	Expiry    int64  `json:"expiry"`
	Signature string `json:"signature"`
}

type SubmitResult struct {
	Requester       string `json:"requester"`
	RequestedAmount string `json:"requestedAmount"`
	BurnedAmount    string `json:"burnedAmount"`
	GrantedPower    string `json:"grantedPower"`
	Partial         bool   `json:"partial"`
}

type QuoteParams struct {
	Requester string `json:"requester"`
	Amount    string `json:"amount"`
}

type HolderResult struct {
	Address       string `json:"address"`
	VotingPower   string `json:"votingPower"`
	BurnedUtility string `json:"burnedUtility"`
	Headroom      string `json:"headroom"`
}

type ParamsResult struct {
	DomainName      string `json:"domainName"`
	DomainVersion   string `json:"domainVersion"`
	ChainID         uint64 `json:"chainId"`
	ModuleAddress   string `json:"moduleAddress"`
	MinimumExchange string `json:"minimumExchange"`
	VotingPowerCap  string `json:"votingPowerCap"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type SetCapParams struct {
	Cap string `json:"cap"`
}

func (s *Server) handleExchangeSubmit(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected intent parameter", nil)
		return
	}
	var params SubmitIntentParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid intent payload", err.Error())
		return
	}
	intent, err := decodeIntent(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	receipt, err := s.engine.Exchange(s.operator, intent)
	if err != nil {
		observability.ExchangeMetrics().RecordRejection()
		writeExchangeError(w, req.ID, err)
		return
	}
	observability.ExchangeMetrics().RecordExchange(receipt.BurnedAmount, receipt.GrantedPower, receipt.Partial)
	writeResult(w, req.ID, submitResult(receipt))
}

func (s *Server) handleExchangeQuote(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected quote parameter", nil)
		return
	}
	var params QuoteParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid quote payload", err.Error())
		return
	}
	requester, err := decodeBech32(params.Requester)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := decodeAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	receipt, err := s.engine.Quote(requester, amount)
	if err != nil {
		writeExchangeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, submitResult(receipt))
}

func (s *Server) handleExchangeSetCap(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected cap parameter", nil)
		return
	}
	var params SetCapParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid cap payload", err.Error())
		return
	}
	newCap, err := decodeAmount(params.Cap)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	if err := s.engine.SetVotingPowerCap(s.manager, newCap); err != nil {
		writeExchangeError(w, req.ID, err)
		return
	}
	observability.ExchangeMetrics().SetCap(newCap)
	writeResult(w, req.ID, map[string]string{"cap": newCap.String()})
}

func (s *Server) handleExchangeGetCap(w http.ResponseWriter, req *RPCRequest) {
	cap, err := s.engine.Cap()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "cap lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{"cap": cap.String()})
}

func (s *Server) handleExchangeNonceUsed(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected requester and nonce", nil)
		return
	}
	var params struct {
		Requester string `json:"requester"`
		Nonce     string `json:"nonce"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	requester, err := decodeBech32(params.Requester)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	nonce, err := decodeNonce(params.Nonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	used, err := s.engine.NonceConsumed(requester, nonce)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "nonce lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]bool{"used": used})
}

func (s *Server) handleExchangeHolder(w http.ResponseWriter, req *RPCRequest) {
	requester, err := singleAddressParam(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	holder, err := s.engine.Holder(requester)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "holder lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, &HolderResult{
		Address:       crypto.NewAddress(crypto.VotexPrefix, requester[:]).String(),
		VotingPower:   holder.VotingPower.String(),
		BurnedUtility: holder.BurnedUtility.String(),
		Headroom:      holder.Headroom.String(),
	})
}

func (s *Server) handleExchangeParams(w http.ResponseWriter, req *RPCRequest) {
	cap, err := s.engine.Cap()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "cap lookup failed", err.Error())
		return
	}
	domain := s.engine.Domain()
	writeResult(w, req.ID, &ParamsResult{
		DomainName:      domain.Name,
		DomainVersion:   domain.Version,
		ChainID:         domain.ChainID,
		ModuleAddress:   crypto.NewAddress(crypto.VotexPrefix, domain.Module[:]).String(),
		MinimumExchange: exchange.MinimumExchangeAmount().String(),
		VotingPowerCap:  cap.String(),
	})
}

func (s *Server) handleUtilBalance(w http.ResponseWriter, req *RPCRequest) {
	addr, err := singleAddressParam(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.util.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "balance lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, &BalanceResult{
		Address: crypto.NewAddress(crypto.VotexPrefix, addr[:]).String(),
		Balance: balance.String(),
	})
}

// writeExchangeError maps engine sentinels onto JSON-RPC error codes.
func writeExchangeError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, exchange.ErrNonceUsed):
		writeError(w, http.StatusConflict, id, codeNonceUsed, err.Error(), nil)
	case errors.Is(err, exchange.ErrIntentExpired):
		writeError(w, http.StatusBadRequest, id, codeIntentExpired, err.Error(), nil)
	case errors.Is(err, exchange.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, id, codeBadSignature, "intent signature rejected", nil)
	case errors.Is(err, exchange.ErrCapReached):
		var capErr *exchange.CapReachedError
		if errors.As(err, &capErr) {
			writeError(w, http.StatusConflict, id, codeCapReached, err.Error(), map[string]string{
				"currentPower": capErr.CurrentPower.String(),
				"cap":          capErr.Cap.String(),
			})
			return
		}
		writeError(w, http.StatusConflict, id, codeCapReached, err.Error(), nil)
	case errors.Is(err, exchange.ErrCapNotRaised), errors.Is(err, exchange.ErrCapInvalid),
		errors.Is(err, exchange.ErrAmountTooSmall), errors.Is(err, exchange.ErrZeroAddress):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, exchange.ErrNotExchanger), errors.Is(err, exchange.ErrNotManager):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrInsufficientAllowance):
		writeError(w, http.StatusConflict, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "exchange failed", err.Error())
	}
}

func submitResult(receipt *exchange.Receipt) *SubmitResult {
	return &SubmitResult{
		Requester:       crypto.NewAddress(crypto.VotexPrefix, receipt.Requester[:]).String(),
		RequestedAmount: receipt.RequestedAmount.String(),
		BurnedAmount:    receipt.BurnedAmount.String(),
		GrantedPower:    receipt.GrantedPower.String(),
		Partial:         receipt.Partial,
	}
}

func decodeIntent(params SubmitIntentParams) (*exchange.Intent, error) {
	requester, err := decodeBech32(params.Requester)
	if err != nil {
		return nil, err
	}
	amount, err := decodeAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeNonce(params.Nonce)
	if err != nil {
		return nil, err
	}
	signature, err := decodeHexField("signature", params.Signature)
	if err != nil {
		return nil, err
	}
	return &exchange.Intent{
		Requester: requester,
		Amount:    amount,
		Nonce:     nonce,
		Expiry:    params.Expiry,
		Signature: signature,
	}, nil
}

func singleAddressParam(req *RPCRequest) ([20]byte, error) {
	if len(req.Params) != 1 {
		return [20]byte{}, errors.New("expected address parameter")
	}
	var addr string
	if err := json.Unmarshal(req.Params[0], &addr); err != nil {
		var wrapper struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(req.Params[0], &wrapper); err != nil || wrapper.Address == "" {
			return [20]byte{}, errors.New("invalid address parameter")
		}
		addr = wrapper.Address
	}
	return decodeBech32(addr)
}

func decodeBech32(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func decodeAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New("amount must be a non-negative decimal string")
	}
	return amount, nil
}

func decodeNonce(value string) ([32]byte, error) {
	raw, err := decodeHexField("nonce", value)
	if err != nil {
		return [32]byte{}, err
	}
	if len(raw) != 32 {
		return [32]byte{}, errors.New("nonce must be 32 bytes")
	}
	var nonce [32]byte
	copy(nonce[:], raw)
	return nonce, nil
}

func decodeHexField(name, value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, errors.New(name + " required")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, errors.New("invalid " + name + " encoding")
	}
	return raw, nil
}
