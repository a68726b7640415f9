package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"workescrow/cmd/internal/passphrase"
	"workescrow/crypto"
	"workescrow/rpc"
)

const adminTokenTTL = 2 * time.Minute

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out string
	var light bool
	fs.StringVar(&out, "out", "", "keystore file to write")
	fs.BoolVar(&light, "light-kdf", false, "use cheap scrypt parameters (testing only)")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if strings.TrimSpace(out) == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists", out))
	}
	pass, err := passphrase.NewSource(keystorePassEnv, "keystore").Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := crypto.StandardScrypt
	if light {
		params = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystoreWithParams(out, key, pass, params); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	var keyFile string
	fs.StringVar(&keyFile, "key", "", "keystore file")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	key, err := loadSigningKey(keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var address string
	fs.StringVar(&address, "address", "", "account or custody bech32 address")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if strings.TrimSpace(address) == "" {
		return printError(stderr, "--address is required")
	}
	return plainCall("ledger_balance", map[string]string{"address": strings.TrimSpace(address)}, nil, stdout, stderr)
}

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	var address, amountStr, reference string
	fs.StringVar(&address, "address", "", "recipient bech32 address")
	fs.StringVar(&amountStr, "amount", "", "amount in base units")
	fs.StringVar(&reference, "reference", "", "optional operator note")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if strings.TrimSpace(address) == "" {
		return printError(stderr, "--address is required")
	}
	amount, err := parsePositiveAmount(amountStr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	headers, err := adminHeaders(rpc.ScopeLedgerMint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]string{
		"address": strings.TrimSpace(address),
		"amount":  strconv.FormatUint(amount, 10),
	}
	if ref := strings.TrimSpace(reference); ref != "" {
		params["reference"] = ref
	}
	return plainCall("ledger_mint", params, headers, stdout, stderr)
}

func runPause(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pause", stderr)
	var escrowPaused, ledgerPaused bool
	fs.BoolVar(&escrowPaused, "escrow", false, "pause escrow mutations")
	fs.BoolVar(&ledgerPaused, "ledger", false, "pause ledger minting")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	headers, err := adminHeaders(rpc.ScopeAdminPauses)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return plainCall("admin_setPauses", map[string]bool{
		"escrow": escrowPaused,
		"ledger": ledgerPaused,
	}, headers, stdout, stderr)
}

func runPauses(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pauses", stderr)
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	headers, err := adminHeaders(rpc.ScopeAdminPauses)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return plainCall("admin_pauses", map[string]bool{}, headers, stdout, stderr)
}

func adminHeaders(scope string) (map[string]string, error) {
	secret := strings.TrimSpace(os.Getenv(adminSecretEnv))
	if secret == "" {
		return nil, fmt.Errorf("%s must hold the admin secret", adminSecretEnv)
	}
	token, err := rpc.IssueAdminToken(secret, "escrowctl", adminTokenTTL, scope)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}
