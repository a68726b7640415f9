package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workescrow/config"
	"workescrow/core/state"
	"workescrow/crypto"
	"workescrow/native/escrow"
	"workescrow/native/params"
	"workescrow/rpc"
	"workescrow/storage"
)

type recordedCall struct {
	method  string
	param   interface{}
	headers map[string]string
}

func stubRPC(t *testing.T, result string) *[]recordedCall {
	t.Helper()
	calls := &[]recordedCall{}
	original := escrowRPCCall
	escrowRPCCall = func(method string, param interface{}, headers map[string]string) (json.RawMessage, *rpcError, error) {
		*calls = append(*calls, recordedCall{method: method, param: param, headers: headers})
		return json.RawMessage(result), nil, nil
	}
	t.Cleanup(func() { escrowRPCCall = original })
	return calls
}

func stubKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	original := loadSigningKey
	loadSigningKey = func(path string) (*crypto.PrivateKey, error) {
		require.Equal(t, "signer.json", path)
		return key, nil
	}
	t.Cleanup(func() { loadSigningKey = original })
	return key
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestArgumentValidation(t *testing.T) {
	stubRPC(t, `{}`)
	payee := crypto.AccountAddress([20]byte{9}).String()

	cases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"usage", nil, "Usage: escrowctl"},
		{"unknown", []string{"teleport"}, "Unknown command: teleport"},
		{"create_missing_payee", []string{"create", "--key", "signer.json", "--amount", "5", "--timeout-days", "3"}, "--payee is required"},
		{"create_zero_amount", []string{"create", "--key", "signer.json", "--payee", payee, "--amount", "0", "--timeout-days", "3"}, "--amount must be a positive integer"},
		{"create_bad_days", []string{"create", "--key", "signer.json", "--payee", payee, "--amount", "5", "--timeout-days", "300"}, "--timeout-days"},
		{"submit_missing_work", []string{"submit", "--key", "signer.json", "--payer", payee}, "--work is required"},
		{"get_missing_payee", []string{"get", "--payer", payee}, "--payer and --payee are required"},
		{"list_missing_party", []string{"list"}, "--party is required"},
		{"events_negative", []string{"events", "--limit", "-1"}, "must not be negative"},
		{"positional", []string{"balance", "--address", payee, "extra"}, "unexpected positional arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := runCLI(tc.args...)
			require.Equal(t, 1, code)
			require.Contains(t, stderr, tc.wantErr)
		})
	}
}

func TestTransitionSignsEnvelopeForKey(t *testing.T) {
	calls := stubRPC(t, `{"status":"funded"}`)
	key := stubKey(t)
	payee := crypto.AccountAddress([20]byte{7}).String()

	fixed := time.Unix(1_700_000_000, 0)
	originalNow := escrowNow
	escrowNow = func() time.Time { return fixed }
	defer func() { escrowNow = originalNow }()

	code, stdout, stderr := runCLI("fund", "--key", "signer.json", "--payee", payee)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, `"status": "funded"`)
	require.Len(t, *calls, 1)

	call := (*calls)[0]
	require.Equal(t, "escrow_fund", call.method)
	envelope, ok := call.param.(*rpc.SignedRequest)
	require.True(t, ok)
	require.Equal(t, fixed.Unix(), envelope.Timestamp)
	require.Equal(t, key.PubKey().Address().String(), envelope.Caller)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	require.Equal(t, key.PubKey().Address().String(), payload["payer"])
	require.Equal(t, payee, payload["payee"])

	sig, err := hex.DecodeString(strings.TrimPrefix(envelope.Signature, "0x"))
	require.NoError(t, err)
	signer, err := crypto.RecoverSigner(rpc.SigningDigest("escrow_fund", envelope.Timestamp, envelope.Payload), sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Array(), signer)
}

func TestMintRequiresAdminSecret(t *testing.T) {
	calls := stubRPC(t, `{"balance":"5"}`)
	addr := crypto.AccountAddress([20]byte{3}).String()

	t.Setenv(adminSecretEnv, "")
	code, _, stderr := runCLI("mint", "--address", addr, "--amount", "5")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, adminSecretEnv)

	t.Setenv(adminSecretEnv, "ops-secret")
	code, _, stderr = runCLI("mint", "--address", addr, "--amount", "5", "--reference", "seed")
	require.Equal(t, 0, code, stderr)
	require.Len(t, *calls, 1)
	require.Equal(t, "ledger_mint", (*calls)[0].method)
	require.True(t, strings.HasPrefix((*calls)[0].headers["Authorization"], "Bearer "))
	require.Equal(t, map[string]string{"address": addr, "amount": "5", "reference": "seed"}, (*calls)[0].param)
}

func TestKeygenThenAddress(t *testing.T) {
	t.Setenv(keystorePassEnv, "correct horse")
	path := filepath.Join(t.TempDir(), "key.json")

	code, stdout, stderr := runCLI("keygen", "--out", path, "--light-kdf")
	require.Equal(t, 0, code, stderr)
	generated := strings.TrimSpace(stdout)

	code, stdout, stderr = runCLI("address", "--key", path)
	require.Equal(t, 0, code, stderr)
	require.Equal(t, generated, strings.TrimSpace(stdout))

	code, _, stderr = runCLI("keygen", "--out", path, "--light-kdf")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "already exists")
}

func TestRPCErrorsAreReported(t *testing.T) {
	original := escrowRPCCall
	escrowRPCCall = func(string, interface{}, map[string]string) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32037, Message: "EscrowNotFound"}, nil
	}
	defer func() { escrowRPCCall = original }()

	code, _, stderr := runCLI("get", "--payer", crypto.AccountAddress([20]byte{1}).String(), "--payee", crypto.AccountAddress([20]byte{2}).String())
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "EscrowNotFound")
}

func TestLifecycleAgainstServer(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	store := params.NewStore(manager, config.Pauses{})
	engine := escrow.NewEngine(manager)
	engine.SetPauses(store)
	srv, err := rpc.NewServer(rpc.Deps{Engine: engine, Ledger: manager, Params: store}, rpc.Config{
		AllowedSkew:       time.Minute,
		RequestsPerMinute: 6_000,
		Burst:             100,
		AdminSecret:       "ops-secret",
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	originalEndpoint := rpcEndpoint
	rpcEndpoint = ts.URL
	defer func() { rpcEndpoint = originalEndpoint }()
	t.Setenv(adminSecretEnv, "ops-secret")

	payer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	payee, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	keys := map[string]*crypto.PrivateKey{"payer.json": payer, "payee.json": payee}
	originalLoad := loadSigningKey
	loadSigningKey = func(path string) (*crypto.PrivateKey, error) { return keys[path], nil }
	defer func() { loadSigningKey = originalLoad }()

	payerAddr := payer.PubKey().Address().String()
	payeeAddr := payee.PubKey().Address().String()

	steps := [][]string{
		{"mint", "--address", payerAddr, "--amount", "100"},
		{"create", "--key", "payer.json", "--payee", payeeAddr, "--amount", "40", "--timeout-days", "5"},
		{"fund", "--key", "payer.json", "--payee", payeeAddr},
		{"submit", "--key", "payee.json", "--payer", payerAddr, "--work", "https://example.com/delivery"},
		{"approve", "--key", "payer.json", "--payee", payeeAddr},
		{"release", "--key", "payee.json", "--payer", payerAddr},
	}
	for _, step := range steps {
		code, _, stderr := runCLI(step...)
		require.Equal(t, 0, code, "%v: %s", step, stderr)
	}

	code, stdout, stderr := runCLI("balance", "--address", payeeAddr)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, `"balance": "40"`)

	code, stdout, stderr = runCLI("get", "--payer", payerAddr, "--payee", payeeAddr)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, `"status": "complete"`)

	code, _, stderr = runCLI("refund", "--key", "payer.json", "--payee", payeeAddr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "InvalidStatus")
}

func TestGlobalRPCFlag(t *testing.T) {
	original := rpcEndpoint
	defer func() { rpcEndpoint = original }()

	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:1", "balance"})
	require.NoError(t, err)
	require.Equal(t, []string{"balance"}, rest)
	require.Equal(t, "http://node:1", rpcEndpoint)

	rest, err = applyGlobalFlags([]string{"--rpc=http://node:2", "get"})
	require.NoError(t, err)
	require.Equal(t, []string{"get"}, rest)
	require.Equal(t, "http://node:2", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}
