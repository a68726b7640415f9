package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"workescrow/core/eventlog"
	"workescrow/crypto"
	"workescrow/native/escrow"
	"workescrow/observability/logging"
)

func decodePayload(raw json.RawMessage, out interface{}) *rpcFailure {
	if err := json.Unmarshal(raw, out); err != nil {
		return invalidParams("invalid payload: " + err.Error())
	}
	return nil
}

func decodeParam(req *RPCRequest, out interface{}) *rpcFailure {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams("invalid parameter object: " + err.Error())
	}
	return nil
}

func (s *Server) writeEscrow(w http.ResponseWriter, id interface{}, esc *escrow.Escrow) {
	out, err := formatEscrow(esc)
	if err != nil {
		failureFor(err).write(w, id)
		return
	}
	writeResult(w, id, out)
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte, err error) {
	failure := failureFor(err)
	level := slog.LevelInfo
	if failure.code == codeServerError {
		level = slog.LevelError
	}
	s.logger.LogAttrs(r.Context(), level, "escrow rpc rejected",
		slog.String("method", req.Method),
		slog.String("requestId", RequestIDFrom(r.Context())),
		logging.MaskField("caller", crypto.AccountAddress(caller).String()),
		slog.String("reason", failure.message),
		slog.String("error", err.Error()),
	)
	failure.write(w, req.ID)
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, payload, failure := s.authenticate(req)
	if failure != nil {
		failure.write(w, req.ID)
		return
	}
	var params escrowCreateParams
	if failure := decodePayload(payload, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	key, err := parseKey(params.Payer, params.Payee)
	if err != nil {
		invalidParams(err.Error()).write(w, req.ID)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		invalidParams(err.Error()).write(w, req.ID)
		return
	}
	esc, err := s.engine.Create(r.Context(), caller, key, amount, params.timeoutDays())
	if err != nil {
		s.writeEngineError(w, r, req, caller, err)
		return
	}
	s.writeEscrow(w, req.ID, esc)
}

func (s *Server) handleEscrowSubmit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, payload, failure := s.authenticate(req)
	if failure != nil {
		failure.write(w, req.ID)
		return
	}
	var params escrowSubmitParams
	if failure := decodePayload(payload, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	key, err := parseKey(params.Payer, params.Payee)
	if err != nil {
		invalidParams(err.Error()).write(w, req.ID)
		return
	}
	esc, err := s.engine.Submit(r.Context(), caller, key, params.WorkReference)
	if err != nil {
		s.writeEngineError(w, r, req, caller, err)
		return
	}
	s.writeEscrow(w, req.ID, esc)
}

// transitionHandler serves the operations whose payload is only the record
// key.
func (s *Server) transitionHandler(op escrow.Operation) handlerFunc {
	var call func(context.Context, [20]byte, escrow.Key) (*escrow.Escrow, error)
	switch op {
	case escrow.OpFund:
		call = s.engine.Fund
	case escrow.OpApprove:
		call = s.engine.Approve
	case escrow.OpRelease:
		call = s.engine.Release
	case escrow.OpDispute:
		call = s.engine.Dispute
	case escrow.OpRefund:
		call = s.engine.Refund
	default:
		panic("rpc: no key-only handler for " + op.String())
	}
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		caller, payload, failure := s.authenticate(req)
		if failure != nil {
			failure.write(w, req.ID)
			return
		}
		var params escrowKeyParams
		if failure := decodePayload(payload, &params); failure != nil {
			failure.write(w, req.ID)
			return
		}
		key, err := parseKey(params.Payer, params.Payee)
		if err != nil {
			invalidParams(err.Error()).write(w, req.ID)
			return
		}
		esc, err := call(r.Context(), caller, key)
		if err != nil {
			s.writeEngineError(w, r, req, caller, err)
			return
		}
		s.writeEscrow(w, req.ID, esc)
	}
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowKeyParams
	if failure := decodeParam(req, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	key, err := parseKey(params.Payer, params.Payee)
	if err != nil {
		invalidParams(err.Error()).write(w, req.ID)
		return
	}
	esc, err := s.engine.Get(key)
	if err != nil {
		failureFor(err).write(w, req.ID)
		return
	}
	s.writeEscrow(w, req.ID, esc)
}

func (s *Server) handleEscrowList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowListParams
	if failure := decodeParam(req, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	party, err := parseAccount("party", params.Party)
	if err != nil {
		invalidParams(err.Error()).write(w, req.ID)
		return
	}
	records, err := s.engine.ListByParty(party)
	if err != nil {
		failureFor(err).write(w, req.ID)
		return
	}
	out := make([]EscrowJSON, 0, len(records))
	for _, esc := range records {
		formatted, err := formatEscrow(esc)
		if err != nil {
			failureFor(err).write(w, req.ID)
			return
		}
		out = append(out, formatted)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleEscrowEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event journal not configured", nil)
		return
	}
	var params escrowEventsParams
	if failure := decodeParam(req, &params); failure != nil {
		failure.write(w, req.ID)
		return
	}
	filter := eventlog.Filter{After: params.After, Limit: params.Limit}
	if params.Payer != "" {
		payer, err := parseAccount("payer", params.Payer)
		if err != nil {
			invalidParams(err.Error()).write(w, req.ID)
			return
		}
		filter.Payer = &payer
	}
	if params.Payee != "" {
		payee, err := parseAccount("payee", params.Payee)
		if err != nil {
			invalidParams(err.Error()).write(w, req.ID)
			return
		}
		filter.Payee = &payee
	}
	records, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("event journal query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "Internal", nil)
		return
	}
	out := make([]EventJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, formatRecord(rec))
	}
	writeResult(w, req.ID, out)
}
