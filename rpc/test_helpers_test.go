package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workescrow/config"
	"workescrow/core/eventlog"
	"workescrow/core/events"
	"workescrow/core/state"
	"workescrow/crypto"
	"workescrow/native/escrow"
	"workescrow/native/params"
	"workescrow/storage"
)

const testAdminSecret = "rpc-test-secret"

type rpcEnv struct {
	t       *testing.T
	server  *Server
	http    *httptest.Server
	state   *state.Manager
	bus     *events.Bus
	journal *eventlog.Journal
	params  *params.Store
	payer   *crypto.PrivateKey
	payee   *crypto.PrivateKey
}

type rpcReply struct {
	status int
	header http.Header
	result json.RawMessage
	err    *RPCError
}

func newRPCEnv(t *testing.T, mutate func(*Config)) *rpcEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	journal, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	bus := events.NewBus(journal)
	store := params.NewStore(manager, config.Pauses{})
	engine := escrow.NewEngine(manager)
	engine.SetEmitter(bus)
	engine.SetPauses(store)

	cfg := Config{
		AllowedSkew:       time.Minute,
		RequestsPerMinute: 60_000,
		Burst:             1_000,
		AdminSecret:       testAdminSecret,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(Deps{
		Engine:  engine,
		Ledger:  manager,
		Journal: journal,
		Bus:     bus,
		Params:  store,
	}, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	payer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	payee, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	return &rpcEnv{
		t:       t,
		server:  srv,
		http:    ts,
		state:   manager,
		bus:     bus,
		journal: journal,
		params:  store,
		payer:   payer,
		payee:   payee,
	}
}

func addressOf(key *crypto.PrivateKey) string {
	return key.PubKey().Address().String()
}

func (e *rpcEnv) keyPayload(extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"payer": addressOf(e.payer),
		"payee": addressOf(e.payee),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func (e *rpcEnv) post(body []byte, headers map[string]string) rpcReply {
	e.t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.http.URL+"/", bytes.NewReader(body))
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(e.t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	return rpcReply{status: resp.StatusCode, header: resp.Header, result: decoded.Result, err: decoded.Error}
}

func (e *rpcEnv) call(method string, param interface{}, headers map[string]string) rpcReply {
	e.t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  []interface{}{param},
	})
	require.NoError(e.t, err)
	return e.post(body, headers)
}

func (e *rpcEnv) signed(key *crypto.PrivateKey, method string, payload interface{}) rpcReply {
	e.t.Helper()
	env, err := SignRequest(key, method, time.Now().Unix(), payload)
	require.NoError(e.t, err)
	return e.call(method, env, nil)
}

func (e *rpcEnv) adminHeader(scopes ...string) map[string]string {
	e.t.Helper()
	token, err := IssueAdminToken(testAdminSecret, "ops", time.Minute, scopes...)
	require.NoError(e.t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (e *rpcEnv) mint(key *crypto.PrivateKey, amount uint64) {
	e.t.Helper()
	reply := e.call("ledger_mint", map[string]string{
		"address": addressOf(key),
		"amount":  strconv.FormatUint(amount, 10),
	}, e.adminHeader(ScopeLedgerMint))
	require.Nil(e.t, reply.err)
}

func (e *rpcEnv) balance(address string) uint64 {
	e.t.Helper()
	reply := e.call("ledger_balance", map[string]string{"address": address}, nil)
	require.Nil(e.t, reply.err)
	var out BalanceResult
	require.NoError(e.t, json.Unmarshal(reply.result, &out))
	bal, err := strconv.ParseUint(out.Balance, 10, 64)
	require.NoError(e.t, err)
	return bal
}

func decodeEscrow(t *testing.T, reply rpcReply) EscrowJSON {
	t.Helper()
	require.Nil(t, reply.err)
	var out EscrowJSON
	require.NoError(t, json.Unmarshal(reply.result, &out))
	return out
}
