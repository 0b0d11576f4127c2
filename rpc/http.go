package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"votex/exchange"
	"votex/observability"
)

const (
	jsonRPCVersion      = "2.0"
	maxRequestBytes     = 1 << 20 // 1 MiB
	rateLimitWindow     = time.Minute
	maxSubmitsPerWindow = 20
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNonceUsed      = -32010
	codeRateLimited    = -32020
	codeCapReached     = -32030
	codeIntentExpired  = -32040
	codeBadSignature   = -32050
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the exchange engine over a single JSON-RPC 2.0 endpoint.
// Privileged methods settle through the configured operator account and
// require the bearer token.
type Server struct {
	engine   *exchange.Engine
	util     BalanceReader
	operator [20]byte
	manager  [20]byte

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
	nowFn        func() time.Time
}

// BalanceReader exposes the utility ledger balances served by util_balance.
type BalanceReader interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
}

func NewServer(engine *exchange.Engine, util BalanceReader, operator, manager [20]byte, authToken string) *Server {
	return &Server{
		engine:       engine,
		util:         util,
		operator:     operator,
		manager:      manager,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    strings.TrimSpace(authToken),
		nowFn:        time.Now,
	}
}

// Handler returns the RPC endpoint for mounting on an existing mux. The host
// owns the http.Server, its timeouts, and shutdown.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if recorder, ok := w.(*statusRecorder); ok {
		recorder.errorCode = code
	}
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := s.nowFn()
	recorder := &statusRecorder{ResponseWriter: w}

	switch req.Method {
	case "exchange_submit":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			break
		}
		if !s.allowSource(clientSource(r), start) {
			writeError(recorder, http.StatusTooManyRequests, req.ID, codeRateLimited, "submission rate limit exceeded", nil)
			break
		}
		s.handleExchangeSubmit(recorder, req)
	case "exchange_setCap":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			break
		}
		s.handleExchangeSetCap(recorder, req)
	case "exchange_quote":
		s.handleExchangeQuote(recorder, req)
	case "exchange_getCap":
		s.handleExchangeGetCap(recorder, req)
	case "exchange_nonceUsed":
		s.handleExchangeNonceUsed(recorder, req)
	case "exchange_holder":
		s.handleExchangeHolder(recorder, req)
	case "exchange_params":
		s.handleExchangeParams(recorder, req)
	case "util_balance":
		s.handleUtilBalance(recorder, req)
	default:
		writeError(recorder, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}

	observability.RPCMetrics().Observe(req.Method, recorder.errorCode, s.nowFn().Sub(start))
}

// statusRecorder snoops the JSON-RPC error code written by handlers so the
// request metric can record the outcome.
type statusRecorder struct {
	http.ResponseWriter
	errorCode int
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxSubmitsPerWindow {
		return false
	}
	limiter.count++
	return true
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
