package rpc

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"workescrow/config"
	"workescrow/core/events"
	"workescrow/crypto"
	"workescrow/native/common"
	"workescrow/observability/logging"
)

// LedgerModule is the pause key guarding ledger_mint.
const LedgerModule = "ledger"

type ledgerBalanceParams struct {
	Address string `json:"address"`
}

type ledgerMintParams struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

type pausesJSON struct {
	Escrow bool `json:"escrow"`
	Ledger bool `json:"ledger"`
}

func (s *Server) handleLedgerBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ledgerBalanceParams
	if failure := decodeParam(req, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(params.Address))
	if err != nil {
		invalidParams("invalid address: " + err.Error()).write(w, req.ID)
		return
	}
	// Custody slots are readable so operators can audit them.
	balance, err := s.ledger.Balance(addr.Array())
	if err != nil {
		failureFor(err).write(w, req.ID)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: addr.String(), Balance: strconv.FormatUint(balance, 10)})
}

func (s *Server) handleLedgerMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	subject, failure := s.requireScope(r, ScopeLedgerMint)
	if failure != nil {
		failure.write(w, req.ID)
		return
	}
	if err := common.Guard(s.pauseView(), LedgerModule); err != nil {
		failureFor(err).write(w, req.ID)
		return
	}
	var params ledgerMintParams
	if failure := decodeParam(req, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	recipient, err := parseAccount("address", params.Address)
	if err != nil {
		invalidParams(err.Error()).write(w, req.ID)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		invalidParams(err.Error()).write(w, req.ID)
		return
	}
	if err := s.chargeMintQuota(subject, amount); err != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, codeQuotaExceeded, err.Error(), subject)
		return
	}
	balance, err := s.ledger.Mint(recipient, amount)
	if err != nil {
		failureFor(err).write(w, req.ID)
		return
	}
	s.logger.LogAttrs(r.Context(), slog.LevelInfo, "ledger minted",
		slog.String("requestId", RequestIDFrom(r.Context())),
		logging.MaskField("recipient", crypto.AccountAddress(recipient).String()),
		slog.Uint64("amount", amount),
		slog.String("subject", subject),
	)
	if s.bus != nil {
		s.bus.Emit(events.LedgerMinted{
			Recipient: recipient,
			Amount:    amount,
			Balance:   balance,
			Reference: strings.TrimSpace(params.Reference),
		})
	}
	writeResult(w, req.ID, BalanceResult{
		Address: crypto.AccountAddress(recipient).String(),
		Balance: strconv.FormatUint(balance, 10),
	})
}

// chargeMintQuota books amount against the subject's epoch allowance.
func (s *Server) chargeMintQuota(subject string, amount uint64) error {
	quota := s.cfg.MintQuota
	if !quota.Enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := quota.Charge(s.now().Unix(), s.mintUsage[subject], amount)
	if err != nil {
		return err
	}
	s.mintUsage[subject] = next
	return nil
}

func (s *Server) pauseView() common.PauseView {
	if s.params == nil {
		return nil
	}
	return s.params
}

func (s *Server) handleAdminSetPauses(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	subject, failure := s.requireScope(r, ScopeAdminPauses)
	if failure != nil {
		failure.write(w, req.ID)
		return
	}
	if s.params == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "parameter store not configured", nil)
		return
	}
	var params pausesJSON
	if failure := decodeParam(req, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	if err := s.params.SetPauses(config.Pauses{Escrow: params.Escrow, Ledger: params.Ledger}); err != nil {
		s.logger.Error("persist pauses failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "Internal", nil)
		return
	}
	s.logger.Warn("module pauses updated",
		slog.String("subject", subject),
		slog.Bool("escrow", params.Escrow),
		slog.Bool("ledger", params.Ledger),
	)
	s.handleAdminPausesResult(w, req)
}

func (s *Server) handleAdminPauses(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if _, failure := s.requireScope(r, ScopeAdminPauses); failure != nil {
		failure.write(w, req.ID)
		return
	}
	if s.params == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "parameter store not configured", nil)
		return
	}
	s.handleAdminPausesResult(w, req)
}

func (s *Server) handleAdminPausesResult(w http.ResponseWriter, req *RPCRequest) {
	effective, err := s.params.Effective()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "Internal", err.Error())
		return
	}
	writeResult(w, req.ID, pausesJSON{Escrow: effective.Escrow, Ledger: effective.Ledger})
}
