package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"workescrow/cmd/internal/passphrase"
	"workescrow/crypto"
)

const (
	rpcEndpointEnv  = "ESCROWCTL_RPC"
	keystorePassEnv = "ESCROWCTL_PASS"
	adminSecretEnv  = "ESCROWCTL_ADMIN_SECRET"
	defaultEndpoint = "http://127.0.0.1:8547"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	rpcEndpoint    = defaultRPCEndpoint()
	rpcHTTPClient  = &http.Client{Timeout: 15 * time.Second}
	escrowNow      = time.Now
	escrowRPCCall  = callRPC
	loadSigningKey = loadKeystore
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "create", "fund", "submit", "approve", "release", "dispute", "refund", "get", "list", "events":
		return runEscrowCommand(args, stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "mint":
		return runMint(args[1:], stdout, stderr)
	case "pause":
		return runPause(args[1:], stdout, stderr)
	case "pauses":
		return runPauses(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcEndpointEnv)); v != "" {
		return v
	}
	return defaultEndpoint
}

// applyGlobalFlags consumes a leading --rpc flag.
func applyGlobalFlags(args []string) ([]string, error) {
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc":
			if len(args) < 2 {
				return nil, fmt.Errorf("--rpc requires a value")
			}
			rpcEndpoint = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcEndpoint = strings.TrimPrefix(args[0], "--rpc=")
			args = args[1:]
		default:
			return args, nil
		}
	}
	return args, nil
}

func callRPC(method string, param interface{}, headers map[string]string) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{param},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := rpcHTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func loadKeystore(path string) (*crypto.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--key is required")
	}
	pass, err := passphrase.NewSource(keystorePassEnv, "keystore").Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func usage() string {
	return strings.Join([]string{
		"Usage: escrowctl [--rpc URL] <command> [flags]",
		"",
		"Keys:",
		"  keygen   --out FILE [--light-kdf]",
		"  address  --key FILE",
		"",
		"Escrow (signed with --key; an omitted --payer or --payee defaults to the key's address):",
		"  create   --key FILE --payee ADDR --amount N --timeout-days D",
		"  fund     --key FILE --payee ADDR",
		"  submit   --key FILE --payer ADDR --work URL",
		"  approve  --key FILE --payee ADDR",
		"  release  --key FILE --payer ADDR",
		"  dispute  --key FILE --payee ADDR",
		"  refund   --key FILE --payee ADDR",
		"  get      --payer ADDR --payee ADDR",
		"  list     --party ADDR",
		"  events   [--payer ADDR] [--payee ADDR] [--after SEQ] [--limit N]",
		"",
		"Ledger and admin:",
		"  balance  --address ADDR",
		"  mint     --address ADDR --amount N [--reference TEXT]   (secret from " + adminSecretEnv + ")",
		"  pause    [--escrow] [--ledger]",
		"  pauses",
		"",
		"Environment: " + rpcEndpointEnv + ", " + keystorePassEnv + ", " + adminSecretEnv,
	}, "\n")
}
