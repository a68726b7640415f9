package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"workescrow/crypto"
)

// SignedRequest is the envelope every mutating call carries as its single
// parameter. Signature is a recoverable secp256k1 signature over
// SigningDigest(method, Timestamp, Payload).
type SignedRequest struct {
	Caller    string          `json:"caller"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// SigningDigest binds a payload to the method it was produced for and the
// moment it was signed.
func SigningDigest(method string, timestamp int64, payload []byte) []byte {
	return crypto.Keccak256(
		[]byte(method),
		[]byte("\n"),
		[]byte(strconv.FormatInt(timestamp, 10)),
		[]byte("\n"),
		payload,
	)
}

// SignRequest marshals payload and signs it for method.
func SignRequest(key *crypto.PrivateKey, method string, timestamp int64, payload interface{}) (*SignedRequest, error) {
	if key == nil {
		return nil, errors.New("rpc: signing key required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode payload: %w", err)
	}
	sig, err := key.Sign(SigningDigest(method, timestamp, raw))
	if err != nil {
		return nil, err
	}
	return &SignedRequest{
		Caller:    key.PubKey().Address().String(),
		Timestamp: timestamp,
		Payload:   raw,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// authenticate decodes the envelope in req, checks its signature, timestamp
// and freshness, and returns the caller with the raw payload.
func (s *Server) authenticate(req *RPCRequest) ([20]byte, json.RawMessage, *rpcFailure) {
	var none [20]byte
	if len(req.Params) != 1 {
		return none, nil, invalidParams("exactly one signed request expected")
	}
	var env SignedRequest
	if err := json.Unmarshal(req.Params[0], &env); err != nil {
		return none, nil, invalidParams("invalid signed request: " + err.Error())
	}
	caller, err := crypto.ParseAccount(strings.TrimSpace(env.Caller))
	if err != nil {
		return none, nil, invalidParams("invalid caller: " + err.Error())
	}
	if len(env.Payload) == 0 {
		return none, nil, invalidParams("payload required")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil {
		return none, nil, invalidParams("invalid signature encoding")
	}

	now := s.now()
	signedAt := time.Unix(env.Timestamp, 0)
	if skew := now.Sub(signedAt); skew > s.cfg.AllowedSkew || -skew > s.cfg.AllowedSkew {
		return none, nil, &rpcFailure{status: http.StatusUnauthorized, code: codeUnauthorized, message: "timestamp outside allowed skew", data: env.Timestamp}
	}

	digest := SigningDigest(req.Method, env.Timestamp, env.Payload)
	signer, err := crypto.RecoverSigner(digest, sig)
	if err != nil {
		return none, nil, &rpcFailure{status: http.StatusUnauthorized, code: codeUnauthorized, message: "invalid signature"}
	}
	if signer != caller {
		return none, nil, &rpcFailure{status: http.StatusUnauthorized, code: codeUnauthorized, message: "signature does not match caller"}
	}
	if !s.rememberDigest(hex.EncodeToString(caller[:])+":"+hex.EncodeToString(digest), now) {
		return none, nil, &rpcFailure{status: http.StatusConflict, code: codeDuplicate, message: "request already processed"}
	}
	return caller, env.Payload, nil
}

// rememberDigest records a caller's request digest and reports whether it was
// new. Entries are kept for twice the allowed skew, after which the timestamp
// check rejects the request anyway.
func (s *Server) rememberDigest(digest string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ttl := 2 * s.cfg.AllowedSkew
	for d, seenAt := range s.seen {
		if now.Sub(seenAt) > ttl {
			delete(s.seen, d)
		}
	}
	if _, exists := s.seen[digest]; exists {
		return false
	}
	s.seen[digest] = now
	return true
}
