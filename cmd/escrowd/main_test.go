package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workescrow/config"
	"workescrow/crypto"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ListenAddress: "127.0.0.1:0",
		DataDir:       filepath.Join(dir, "data"),
		DBBackend:     backend,
		EventLogPath:  filepath.Join(dir, "events.db"),
		RPC: config.RPC{
			AllowedSkewSeconds: 60,
			RequestsPerMinute:  600,
			Burst:              60,
			AdminSecret:        "daemon-test",
		},
	}
}

func TestOpenDatabaseBackends(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendLevelDB, config.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			db, err := openDatabase(testConfig(t, backend))
			require.NoError(t, err)
			require.NoError(t, db.Put([]byte("k"), []byte("v")))
			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), got)
			db.Close()
		})
	}

	_, err := openDatabase(testConfig(t, "rocks"))
	require.Error(t, err)
}

func TestNewServiceCreditsAllocationsOnce(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	cfg := testConfig(t, config.BackendLevelDB)
	cfg.Allocations = []config.Allocation{{Address: key.PubKey().Address().String(), Amount: 500}}

	svc, err := newService(cfg, quietLogger())
	require.NoError(t, err)
	addr := key.PubKey().Address().Array()
	bal, err := svc.state.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(500), bal)
	svc.Close()

	// Reopening the same data directory must not mint again.
	svc, err = newService(cfg, quietLogger())
	require.NoError(t, err)
	defer svc.Close()
	bal, err = svc.state.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(500), bal)
}

func TestNewServiceRejectsBadAllocation(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Allocations = []config.Allocation{{Address: "not-an-address", Amount: 1}}
	_, err := newService(cfg, quietLogger())
	require.Error(t, err)
}

func TestRunServesUntilCancelled(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := testConfig(t, config.BackendMemory)
	cfg.ListenAddress = fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, "test", quietLogger()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/healthz", cfg.ListenAddress))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestWaitForRPCStartupReportsServerError(t *testing.T) {
	errCh := make(chan error, 1)
	boom := errors.New("bind: address already in use")
	errCh <- boom
	close(errCh)

	// Port 1 is never served in the test environment.
	err := waitForRPCStartup("127.0.0.1:1", errCh, time.Second)
	require.ErrorIs(t, err, boom)
}

func TestDialAddressFor(t *testing.T) {
	cases := map[string]string{
		":8547":          "127.0.0.1:8547",
		"0.0.0.0:9000":   "127.0.0.1:9000",
		"10.0.0.5:8547":  "10.0.0.5:8547",
		"not-a-hostport": "not-a-hostport",
	}
	for in, want := range cases {
		if got := dialAddressFor(in); got != want {
			t.Fatalf("dialAddressFor(%q) = %q, want %q", in, got, want)
		}
	}
}
