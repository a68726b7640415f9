package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"workescrow/core/eventlog"
	"workescrow/core/events"
	"workescrow/native/common"
	"workescrow/native/escrow"
	"workescrow/native/params"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32002
	codeDuplicate      = -32010
	codeRateLimited    = -32020
	codeQuotaExceeded  = -32021
)

// Ledger is the balance surface the RPC server needs.
type Ledger interface {
	Balance(addr [20]byte) (uint64, error)
	Mint(addr [20]byte, amount uint64) (uint64, error)
}

// Journal lists previously committed events.
type Journal interface {
	List(ctx context.Context, f eventlog.Filter) ([]eventlog.Record, error)
}

// Config tunes request admission.
type Config struct {
	AllowedSkew       time.Duration
	RequestsPerMinute float64
	Burst             int
	AdminSecret       string
	MintQuota         common.Quota
}

// Deps are the collaborators a Server dispatches to. Journal, Bus and Params
// are optional; the routes that need them answer with an error when unset.
type Deps struct {
	Engine  *escrow.Engine
	Ledger  Ledger
	Journal Journal
	Bus     *events.Bus
	Params  *params.Store
	Logger  *slog.Logger
}

type Server struct {
	engine  *escrow.Engine
	ledger  Ledger
	journal Journal
	bus     *events.Bus
	params  *params.Store
	logger  *slog.Logger
	cfg     Config
	limiter *clientLimiter
	nowFn   func() time.Time
	routes  map[string]handlerFunc

	mu        sync.Mutex
	seen      map[string]time.Time
	mintUsage map[string]common.MintUsage
}

func NewServer(deps Deps, cfg Config) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("rpc: escrow engine required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("rpc: ledger required")
	}
	if cfg.AllowedSkew <= 0 {
		cfg.AllowedSkew = 2 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    deps.Engine,
		ledger:    deps.Ledger,
		journal:   deps.Journal,
		bus:       deps.Bus,
		params:    deps.Params,
		logger:    logger,
		cfg:       cfg,
		nowFn:     time.Now,
		seen:      make(map[string]time.Time),
		mintUsage: make(map[string]common.MintUsage),
	}
	s.limiter = newClientLimiter(cfg.RequestsPerMinute, cfg.Burst, func() time.Time { return s.nowFn() })
	s.routes = s.methods()
	return s, nil
}

// Handler returns the HTTP surface of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(observeRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/escrow", s.handleEscrowWS)
	r.With(s.rateLimit).Post("/", s.handle)

	return otelhttp.NewHandler(r, "escrowd.rpc")
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
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

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"escrow_create":   s.handleEscrowCreate,
		"escrow_fund":     s.transitionHandler(escrow.OpFund),
		"escrow_submit":   s.handleEscrowSubmit,
		"escrow_approve":  s.transitionHandler(escrow.OpApprove),
		"escrow_release":  s.transitionHandler(escrow.OpRelease),
		"escrow_dispute":  s.transitionHandler(escrow.OpDispute),
		"escrow_refund":   s.transitionHandler(escrow.OpRefund),
		"escrow_get":      s.handleEscrowGet,
		"escrow_list":     s.handleEscrowList,
		"escrow_events":   s.handleEscrowEvents,
		"ledger_balance":  s.handleLedgerBalance,
		"ledger_mint":     s.handleLedgerMint,
		"admin_setPauses": s.handleAdminSetPauses,
		"admin_pauses":    s.handleAdminPauses,
	}
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
		writeError(w, status, nil, codeInvalidRequest, message, nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to parse request", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	method := strings.TrimSpace(req.Method)
	handler, ok := s.routes[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", method), nil)
		return
	}
	req.Method = method
	handler(w, r, req)
}

func (s *Server) now() time.Time {
	return s.nowFn()
}
