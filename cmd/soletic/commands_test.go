package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	soletic "github.com/monjuik/go-soletic"
)

const fixtureTimestamp int64 = 1688482876

var (
	fixtureProgram     = solana.PublicKeyFromBytes(bytes.Repeat([]byte{1}, solana.PublicKeyLength))
	fixtureProgramData = solana.PublicKeyFromBytes(bytes.Repeat([]byte{2}, solana.PublicKeyLength))
	fixtureBuffer      = solana.PublicKeyFromBytes(bytes.Repeat([]byte{3}, solana.PublicKeyLength))
)

type stubClient struct {
	mu    sync.Mutex
	calls int
}

func (s *stubClient) GetAccountInfo(_ context.Context, pubkey solana.PublicKey) (*soletic.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	switch {
	case pubkey.Equals(fixtureProgram):
		return &soletic.AccountInfo{
			Owner:      soletic.BPFLoaderUpgradeableID,
			Executable: true,
			Data:       append([]byte{2, 0, 0, 0}, fixtureProgramData.Bytes()...),
		}, nil
	case pubkey.Equals(fixtureBuffer):
		return &soletic.AccountInfo{Owner: soletic.BPFLoaderUpgradeableID, Executable: true, Data: []byte{1, 0, 0, 0}}, nil
	default:
		return nil, nil
	}
}

func (s *stubClient) GetSignaturesForAddress(_ context.Context, pubkey solana.PublicKey, _ int, _ string) ([]soletic.SignatureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if !pubkey.Equals(fixtureProgramData) {
		return nil, nil
	}
	newer, oldest := fixtureTimestamp+600, fixtureTimestamp
	return []soletic.SignatureRecord{
		{Signature: "upgrade", Slot: 200, BlockTime: &newer},
		{Signature: "deploy", Slot: 100, BlockTime: &oldest},
	}, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testApp struct {
	*app
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	env      map[string]string
	client   *stubClient
	networks []soletic.Network
	dir      string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)

	ta := &testApp{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		env:    map[string]string{soletic.HeliusAPIKeyEnv: "test-key"},
		client: &stubClient{},
		dir:    dir,
	}
	ta.app = &app{
		stdin:        strings.NewReader(""),
		stdout:       ta.stdout,
		stderr:       ta.stderr,
		getenv:       func(key string) string { return ta.env[key] },
		settingsPath: func() (string, error) { return filepath.Join(dir, ".soletic_config.json"), nil },
		cachePath:    func() (string, error) { return filepath.Join(dir, ".soletic_cache", "soletic_cache.json"), nil },
		clients: func(apiKey string, _ soletic.Logger) soletic.ClientFactory {
			if apiKey != "test-key" {
				t.Fatalf("unexpected api key %q", apiKey)
			}
			return func(network soletic.Network) soletic.RPCClient {
				ta.networks = append(ta.networks, network)
				return ta.client
			}
		},
	}
	return ta
}

func (ta *testApp) run(t *testing.T, args ...string) int {
	t.Helper()
	ta.stdout.Reset()
	ta.stderr.Reset()
	return ta.app.run(context.Background(), args)
}

func (ta *testApp) settings(t *testing.T) soletic.Settings {
	t.Helper()
	path, _ := ta.settingsPath()
	settings, err := soletic.LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	return settings
}

func TestGetDeploymentTime(t *testing.T) {
	ta := newTestApp(t)

	if code := ta.run(t, "get-deployment-time", fixtureProgram.String()); code != exitSuccess {
		t.Fatalf("unexpected exit code %d: %s", code, ta.stderr)
	}
	if got := strings.TrimSpace(ta.stdout.String()); got != "1688482876" {
		t.Fatalf("unexpected output %q", got)
	}
	if len(ta.networks) != 1 || ta.networks[0] != soletic.Mainnet {
		t.Fatalf("expected mainnet lookup, got %v", ta.networks)
	}

	cachePath, _ := ta.cachePath()
	data, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("expected cache file: %v", err)
	}
	var entries map[string]int64
	if err := json.Unmarshal(data, &entries); err != nil || entries[fixtureProgram.String()+"_mainnet"] != fixtureTimestamp {
		t.Fatalf("unexpected cache contents %s (%v)", data, err)
	}

	calls := ta.client.callCount()
	if code := ta.run(t, "get-deployment-time", fixtureProgram.String()); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	if ta.client.callCount() != calls {
		t.Fatalf("expected cached lookup, got %d more rpc calls", ta.client.callCount()-calls)
	}
	if got := strings.TrimSpace(ta.stdout.String()); got != "1688482876" {
		t.Fatalf("unexpected cached output %q", got)
	}

	if code := ta.run(t, "get-deployment-time", fixtureProgram.String(), "--ignore-cache", "--race"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	if ta.client.callCount() == calls {
		t.Fatal("expected --ignore-cache to reach the rpc client")
	}
}

func TestGetDeploymentTimeFlagsAfterAddress(t *testing.T) {
	ta := newTestApp(t)

	code := ta.run(t, "get-deployment-time", fixtureProgram.String(), "-n", "devnet", "-f", "datetime")
	if code != exitSuccess {
		t.Fatalf("unexpected exit code %d: %s", code, ta.stderr)
	}
	want := time.Unix(fixtureTimestamp, 0).Local().Format("2006-01-02 15:04:05")
	if got := strings.TrimSpace(ta.stdout.String()); got != want {
		t.Fatalf("unexpected output %q want %q", got, want)
	}
	if len(ta.networks) != 1 || ta.networks[0] != soletic.Devnet {
		t.Fatalf("expected devnet lookup, got %v", ta.networks)
	}
}

func TestGetDeploymentTimePrintsFailures(t *testing.T) {
	ta := newTestApp(t)

	tests := []struct {
		name    string
		address string
		want    string
	}{
		{name: "buffer", address: fixtureBuffer.String(), want: "415 | Buffer and Uninitialized program states are not supported by this API"},
		{name: "invalid", address: "abc", want: "400 | Program address: abc, is invalid because:"},
		{name: "missing", address: fixtureProgramData.String(), want: "400 | '" + fixtureProgramData.String() + "' does not exist. Please provide a valid program address."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := ta.run(t, "get-deployment-time", tt.address, "-f", "datetime"); code != exitSuccess {
				t.Fatalf("unexpected exit code %d", code)
			}
			if got := ta.stdout.String(); !strings.HasPrefix(got, tt.want) {
				t.Fatalf("unexpected output %q want prefix %q", got, tt.want)
			}
		})
	}
}

func TestGetDeploymentTimeRequiresAPIKey(t *testing.T) {
	ta := newTestApp(t)
	delete(ta.env, soletic.HeliusAPIKeyEnv)

	if code := ta.run(t, "get-deployment-time", fixtureProgram.String()); code != exitFailure {
		t.Fatalf("unexpected exit code %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "HELIUS_API_KEY not found in environment. Please define HELIUS_API_KEY in your .env file.") {
		t.Fatalf("unexpected stderr %q", ta.stderr)
	}
	if ta.client.callCount() != 0 {
		t.Fatal("expected no rpc calls without an api key")
	}
}

func TestGetDeploymentTimeUsageErrors(t *testing.T) {
	ta := newTestApp(t)

	for _, args := range [][]string{
		{"get-deployment-time"},
		{"get-deployment-time", "a", "b"},
		{"get-deployment-time", fixtureProgram.String(), "-f", "iso"},
		{"get-deployment-time", fixtureProgram.String(), "-n", "testnet"},
		{"get-deployment-time", fixtureProgram.String(), "--bogus"},
		{"frobnicate"},
		{},
	} {
		if code := ta.run(t, args...); code != exitUsage {
			t.Fatalf("%v: unexpected exit code %d", args, code)
		}
	}
}

func TestSetupAndUpdate(t *testing.T) {
	ta := newTestApp(t)
	ta.stdin = strings.NewReader("testnet\ndevnet\n")

	if code := ta.run(t, "setup"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d: %s", code, ta.stderr)
	}
	if !strings.Contains(ta.stdout.String(), "Setup complete.") {
		t.Fatalf("unexpected output %q", ta.stdout)
	}
	settings := ta.settings(t)
	if settings.Network != soletic.Devnet || !settings.CacheEnabled() || settings.Cache == nil {
		t.Fatalf("unexpected settings %+v", settings)
	}

	ta.stdin = strings.NewReader("n\n")
	if code := ta.run(t, "setup"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	if out := ta.stdout.String(); !strings.Contains(out, "Existing configuration found:") || !strings.Contains(out, "Using existing configuration.") {
		t.Fatalf("unexpected output %q", out)
	}

	if code := ta.run(t, "update"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	if !strings.Contains(ta.stdout.String(), "Nothing was updated; no parameters were passed.") {
		t.Fatalf("unexpected output %q", ta.stdout)
	}

	if code := ta.run(t, "update", "--cache=false", "-v"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d: %s", code, ta.stderr)
	}
	settings = ta.settings(t)
	if settings.Network != soletic.Devnet || settings.CacheEnabled() || !settings.Verbose {
		t.Fatalf("unexpected settings %+v", settings)
	}

	if code := ta.run(t, "get-deployment-time", fixtureProgram.String()); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	if ta.networks[len(ta.networks)-1] != soletic.Devnet {
		t.Fatalf("expected configured network, got %v", ta.networks)
	}
	if cachePath, _ := ta.cachePath(); fileExists(cachePath) {
		t.Fatal("expected disabled cache to leave no cache file")
	}
}

func TestSetupForceWithFlags(t *testing.T) {
	ta := newTestApp(t)
	if err := soletic.SaveSettings(filepath.Join(ta.dir, ".soletic_config.json"), soletic.Settings{Network: soletic.Devnet}); err != nil {
		t.Fatalf("SaveSettings returned error: %v", err)
	}

	if code := ta.run(t, "setup", "--force", "-n", "mainnet", "--log-file", "logs/custom.log"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d: %s", code, ta.stderr)
	}
	settings := ta.settings(t)
	if settings.Network != soletic.Mainnet || settings.LogFile != "logs/custom.log" {
		t.Fatalf("unexpected settings %+v", settings)
	}
	if !fileExists(filepath.Join(ta.dir, "logs")) {
		t.Fatal("expected log directory to be created")
	}
}

func TestConfigCommands(t *testing.T) {
	ta := newTestApp(t)
	disabled := false
	if err := soletic.SaveSettings(filepath.Join(ta.dir, ".soletic_config.json"), soletic.Settings{Network: soletic.Devnet, Cache: &disabled}); err != nil {
		t.Fatalf("SaveSettings returned error: %v", err)
	}

	if code := ta.run(t, "list-config"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	if out := ta.stdout.String(); !strings.Contains(out, "network: devnet") || !strings.Contains(out, "cache: false") {
		t.Fatalf("unexpected list-config output %q", out)
	}

	if code := ta.run(t, "del-config", "network"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d: %s", code, ta.stderr)
	}
	if settings := ta.settings(t); settings.Network != "" || settings.CacheEnabled() {
		t.Fatalf("unexpected settings %+v", settings)
	}

	if code := ta.run(t, "list-settings"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	out := ta.stdout.String()
	for _, want := range []string{"network: mainnet", "cache: false", "HELIUS_API_KEY: set", "cache_file: "} {
		if !strings.Contains(out, want) {
			t.Fatalf("list-settings missing %q:\n%s", want, out)
		}
	}

	if code := ta.run(t, "del-config", "api_key"); code != exitUsage {
		t.Fatalf("unexpected exit code %d", code)
	}
	if code := ta.run(t, "del-config"); code != exitUsage {
		t.Fatalf("unexpected exit code %d", code)
	}
}

func TestClearCache(t *testing.T) {
	ta := newTestApp(t)

	if code := ta.run(t, "get-deployment-time", fixtureProgram.String()); code != exitSuccess {
		t.Fatalf("unexpected exit code %d", code)
	}
	cachePath, _ := ta.cachePath()
	if !fileExists(cachePath) {
		t.Fatal("expected cache file after lookup")
	}

	if code := ta.run(t, "clear-cache"); code != exitSuccess {
		t.Fatalf("unexpected exit code %d: %s", code, ta.stderr)
	}
	if fileExists(cachePath) {
		t.Fatal("expected cache file to be removed")
	}
	if !strings.Contains(ta.stdout.String(), "Cache cleared") {
		t.Fatalf("unexpected output %q", ta.stdout)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServePrintsListenAddress(t *testing.T) {
	ta := newTestApp(t)
	stdout := &lockedBuffer{}
	stderr := &lockedBuffer{}
	ta.app.stdout = stdout
	ta.app.stderr = stderr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() {
		done <- ta.app.run(ctx, []string{"serve", "--addr", "127.0.0.1:0"})
	}()

	var baseURL string
	deadline := time.Now().Add(5 * time.Second)
	for baseURL == "" {
		if line, ok := strings.CutPrefix(strings.TrimSpace(stdout.String()), "Listening at "); ok {
			baseURL = line
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never announced its address; stderr: %s", stderr)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.HasPrefix(baseURL, "http://127.0.0.1:") {
		t.Fatalf("unexpected listen url %q", baseURL)
	}

	resp, err := http.Get(baseURL + "/deployment/" + fixtureProgram.String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "1688482876") {
		t.Fatalf("unexpected response %d: %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case code := <-done:
		if code != exitSuccess {
			t.Fatalf("unexpected exit code %d: %s", code, stderr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
	if strings.Contains(stderr.String(), "WARN") {
		t.Fatalf("startup should not log warnings: %s", stderr)
	}
}

func TestListenURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{addr: "[::]:8080", want: "http://localhost:8080"},
		{addr: "0.0.0.0:9000", want: "http://localhost:9000"},
		{addr: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
	}
	for _, tt := range tests {
		addr, err := net.ResolveTCPAddr("tcp", tt.addr)
		if err != nil {
			t.Fatalf("ResolveTCPAddr(%q): %v", tt.addr, err)
		}
		if got := listenURL(addr); got != tt.want {
			t.Fatalf("listenURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
