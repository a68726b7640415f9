package rpc

import (
	"net/http"

	"workescrow/native/escrow"
)

// Error codes for escrow and ledger failures, one per error kind.
const (
	codeInvalidStatus         = -32030
	codeEscrowUnauthorized    = -32031
	codeInsufficientFunds     = -32032
	codeInvalidAmount         = -32033
	codeInvalidTimeout        = -32034
	codeInvalidWorkLink       = -32035
	codeWorkLinkTooLong       = -32036
	codeEscrowAlreadyComplete = -32037
	codeEscrowExists          = -32038
	codeEscrowNotFound        = -32039
	codeBalanceOverflow       = -32040
	codeModulePaused          = -32041
)

var kindCodes = map[string]struct {
	code   int
	status int
}{
	"InvalidStatus":         {codeInvalidStatus, http.StatusConflict},
	"Unauthorized":          {codeEscrowUnauthorized, http.StatusForbidden},
	"InsufficientFunds":     {codeInsufficientFunds, http.StatusBadRequest},
	"InvalidAmount":         {codeInvalidAmount, http.StatusBadRequest},
	"InvalidTimeout":        {codeInvalidTimeout, http.StatusBadRequest},
	"InvalidWorkLink":       {codeInvalidWorkLink, http.StatusBadRequest},
	"WorkLinkTooLong":       {codeWorkLinkTooLong, http.StatusBadRequest},
	"EscrowAlreadyComplete": {codeEscrowAlreadyComplete, http.StatusConflict},
	"EscrowExists":          {codeEscrowExists, http.StatusConflict},
	"EscrowNotFound":        {codeEscrowNotFound, http.StatusNotFound},
	"BalanceOverflow":       {codeBalanceOverflow, http.StatusBadRequest},
	"ModulePaused":          {codeModulePaused, http.StatusServiceUnavailable},
}

type rpcFailure struct {
	status  int
	code    int
	message string
	data    interface{}
}

func invalidParams(message string) *rpcFailure {
	return &rpcFailure{status: http.StatusBadRequest, code: codeInvalidParams, message: message}
}

// failureFor maps a domain error onto its wire form. The message is the
// error kind so clients can branch on it.
func failureFor(err error) *rpcFailure {
	kind := escrow.ErrorKind(err)
	mapped, ok := kindCodes[kind]
	if !ok {
		return &rpcFailure{status: http.StatusInternalServerError, code: codeServerError, message: "Internal"}
	}
	return &rpcFailure{status: mapped.status, code: mapped.code, message: kind, data: err.Error()}
}

func (f *rpcFailure) write(w http.ResponseWriter, id interface{}) {
	writeError(w, f.status, id, f.code, f.message, f.data)
}
