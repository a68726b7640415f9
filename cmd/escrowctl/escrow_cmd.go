package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"workescrow/crypto"
	"workescrow/rpc"
)

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "create":
		return runEscrowCreate(args[1:], stdout, stderr)
	case "submit":
		return runEscrowSubmit(args[1:], stdout, stderr)
	case "fund", "approve", "release", "dispute", "refund":
		return runEscrowTransition("escrow_"+args[0], args[1:], stdout, stderr)
	case "get":
		return runEscrowGet(args[1:], stdout, stderr)
	case "list":
		return runEscrowList(args[1:], stdout, stderr)
	case "events":
		return runEscrowEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow command: %s\n", args[0])
		return 1
	}
}

func runEscrowCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create", stderr)
	var (
		keyFile   string
		payee     string
		amountStr string
		daysStr   string
	)
	fs.StringVar(&keyFile, "key", "", "payer keystore file")
	fs.StringVar(&payee, "payee", "", "payee bech32 address")
	fs.StringVar(&amountStr, "amount", "", "escrow amount in base units")
	fs.StringVar(&daysStr, "timeout-days", "", "refund timeout in days (1-90)")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if strings.TrimSpace(payee) == "" {
		return printError(stderr, "--payee is required")
	}
	amount, err := parsePositiveAmount(amountStr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	days, err := strconv.ParseUint(strings.TrimSpace(daysStr), 10, 8)
	if err != nil {
		return printError(stderr, "--timeout-days must be an integer between 1 and 90")
	}
	key, err := loadSigningKey(keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	payer := key.PubKey().Address().String()
	return signedCall(key, "escrow_create", map[string]interface{}{
		"payer":       payer,
		"payee":       strings.TrimSpace(payee),
		"amount":      strconv.FormatUint(amount, 10),
		"timeoutDays": uint8(days),
	}, stdout, stderr)
}

func runEscrowSubmit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("submit", stderr)
	var keyFile, payer, payee, work string
	fs.StringVar(&keyFile, "key", "", "payee keystore file")
	fs.StringVar(&payer, "payer", "", "payer bech32 address")
	fs.StringVar(&payee, "payee", "", "payee bech32 address (defaults to the key)")
	fs.StringVar(&work, "work", "", "http(s) link to the delivered work")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if strings.TrimSpace(work) == "" {
		return printError(stderr, "--work is required")
	}
	key, err := loadSigningKey(keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	params, err := pairFor(key, payer, payee)
	if err != nil {
		return printError(stderr, err.Error())
	}
	params["workReference"] = work
	return signedCall(key, "escrow_submit", params, stdout, stderr)
}

func runEscrowTransition(method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(strings.TrimPrefix(method, "escrow_"), stderr)
	var keyFile, payer, payee string
	fs.StringVar(&keyFile, "key", "", "signing keystore file")
	fs.StringVar(&payer, "payer", "", "payer bech32 address (defaults to the key)")
	fs.StringVar(&payee, "payee", "", "payee bech32 address (defaults to the key)")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	key, err := loadSigningKey(keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	params, err := pairFor(key, payer, payee)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return signedCall(key, method, params, stdout, stderr)
}

func runEscrowGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get", stderr)
	var payer, payee string
	fs.StringVar(&payer, "payer", "", "payer bech32 address")
	fs.StringVar(&payee, "payee", "", "payee bech32 address")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if strings.TrimSpace(payer) == "" || strings.TrimSpace(payee) == "" {
		return printError(stderr, "--payer and --payee are required")
	}
	return plainCall("escrow_get", map[string]string{
		"payer": strings.TrimSpace(payer),
		"payee": strings.TrimSpace(payee),
	}, nil, stdout, stderr)
}

func runEscrowList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	var party string
	fs.StringVar(&party, "party", "", "payer or payee bech32 address")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if strings.TrimSpace(party) == "" {
		return printError(stderr, "--party is required")
	}
	return plainCall("escrow_list", map[string]string{"party": strings.TrimSpace(party)}, nil, stdout, stderr)
}

func runEscrowEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	var payer, payee string
	var after int64
	var limit int
	fs.StringVar(&payer, "payer", "", "only events for this payer")
	fs.StringVar(&payee, "payee", "", "only events for this payee")
	fs.Int64Var(&after, "after", 0, "only events with a larger sequence")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if code := parseFlags(fs, args, stderr); code != 0 {
		return code
	}
	if after < 0 || limit < 0 {
		return printError(stderr, "--after and --limit must not be negative")
	}
	params := map[string]interface{}{}
	if v := strings.TrimSpace(payer); v != "" {
		params["payer"] = v
	}
	if v := strings.TrimSpace(payee); v != "" {
		params["payee"] = v
	}
	if after > 0 {
		params["after"] = after
	}
	if limit > 0 {
		params["limit"] = limit
	}
	return plainCall("escrow_events", params, nil, stdout, stderr)
}

// pairFor fills whichever side of the key the caller left out with the
// signing key's own address.
func pairFor(key *crypto.PrivateKey, payer, payee string) (map[string]interface{}, error) {
	self := key.PubKey().Address().String()
	payer = strings.TrimSpace(payer)
	payee = strings.TrimSpace(payee)
	switch {
	case payer == "" && payee == "":
		return nil, fmt.Errorf("--payer or --payee is required")
	case payer == "":
		payer = self
	case payee == "":
		payee = self
	}
	return map[string]interface{}{"payer": payer, "payee": payee}, nil
}

func signedCall(key *crypto.PrivateKey, method string, payload interface{}, stdout, stderr io.Writer) int {
	envelope, err := rpc.SignRequest(key, method, escrowNow().Unix(), payload)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return plainCall(method, envelope, nil, stdout, stderr)
}

func plainCall(method string, param interface{}, headers map[string]string, stdout, stderr io.Writer) int {
	result, rpcErr, err := escrowRPCCall(method, param, headers)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) int {
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	return 0
}

func parsePositiveAmount(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("--amount is required")
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil || amount == 0 {
		return 0, fmt.Errorf("--amount must be a positive integer")
	}
	return amount, nil
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if len(err.Data) > 0 {
		fmt.Fprintf(w, "RPC error %d: %s (%s)\n", err.Code, err.Message, strings.TrimSpace(string(err.Data)))
	} else {
		fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	}
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	fmt.Fprintln(w, string(out))
}
