package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"marketintel/internal/config"
	"marketintel/pkg/intel"
)

func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func clearIntelEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvFinnhubAPIKey, config.EnvGeminiAPIKey, config.EnvFinnhubBaseURL, config.EnvGeminiBaseURL,
		config.EnvGeminiModel, config.EnvHost, config.EnvPort, config.EnvLogDir,
	} {
		t.Setenv(key, "")
	}
}

func TestMetricsCommandArgs(t *testing.T) {
	out, _, err := runCommand(t, "", "metrics", "100", "101", "102", "103", "104")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	var got intel.DerivedMetrics
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.TrendScore != 66 || got.VolatilityScore != 0 {
		t.Fatalf("unexpected metrics %+v", got)
	}
}

func TestMetricsCommandStdin(t *testing.T) {
	out, _, err := runCommand(t, "100 110\n100 110\n", "metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if !strings.Contains(out, `"volatilityScore": 100`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestMetricsCommandAcceptsNegativePrices(t *testing.T) {
	out, _, err := runCommand(t, "", "metrics", "-1", "2", "3")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	var got intel.DerivedMetrics
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got.Trend) != 3 || got.Trend[0] != 0 || got.Trend[2] != 100 {
		t.Fatalf("unexpected metrics %+v", got)
	}

	out, _, err = runCommand(t, "", "metrics", "--", "-5", "-4", "-3")
	if err != nil {
		t.Fatalf("metrics with separator: %v", err)
	}
	if !strings.Contains(out, `"trend"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestMetricsCommandHelp(t *testing.T) {
	out, _, err := runCommand(t, "", "metrics", "--help")
	if err != nil {
		t.Fatalf("metrics --help: %v", err)
	}
	if !strings.Contains(out, "negative prices") {
		t.Fatalf("expected help text, got %q", out)
	}
}

func TestMetricsCommandRejectsBadPrice(t *testing.T) {
	if _, _, err := runCommand(t, "", "metrics", "100", "abc"); err == nil {
		t.Fatalf("expected error for non-numeric price")
	}
}

func newFinnhubStub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "fh-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/quote":
			_, _ = io.WriteString(w, `{"c":104,"o":103,"h":105,"l":102,"pc":103}`)
		case "/stock/profile2":
			_, _ = io.WriteString(w, `{"name":"Microsoft Corp","finnhubIndustry":"Technology"}`)
		case "/stock/candle":
			_, _ = io.WriteString(w, `{"s":"ok","c":[100,101,102,103,104]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestContextCommandSingleNode(t *testing.T) {
	clearIntelEnv(t)
	server := newFinnhubStub(t)
	t.Setenv(config.EnvFinnhubAPIKey, "fh-key")
	t.Setenv(config.EnvFinnhubBaseURL, server.URL)

	out, _, err := runCommand(t, "", "context", "--mode", "pathfinder", "msft")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if !strings.HasPrefix(out, "NODE_REAL = ") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, `"name": "Microsoft Corp"`) || !strings.Contains(out, `"trendScore": 66`) {
		t.Fatalf("expected merged snapshot, got %q", out)
	}
}

func TestContextCommandMismatchedCount(t *testing.T) {
	clearIntelEnv(t)
	server := newFinnhubStub(t)
	t.Setenv(config.EnvFinnhubAPIKey, "fh-key")
	t.Setenv(config.EnvFinnhubBaseURL, server.URL)

	out, errOut, err := runCommand(t, "", "context", "--mode", "comparison", "MSFT")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if out != "" || !strings.Contains(errOut, "no context") {
		t.Fatalf("expected empty block notice, got out=%q err=%q", out, errOut)
	}
}

func TestContextCommandErrors(t *testing.T) {
	clearIntelEnv(t)
	if _, _, err := runCommand(t, "", "context", "--mode", "sentiment", "MSFT"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	_, _, err := runCommand(t, "", "context", "MSFT")
	if err == nil || !strings.Contains(err.Error(), "FINNHUB_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestBuildHandlerServesAPIAndDashboard(t *testing.T) {
	webDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(webDir, "index.html"), []byte("DASHBOARD"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := intel.NewService(intel.Options{Logger: logger})
	handler := buildHandler(svc, webDir, logger)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/architect", nil))
	if rr.Body.String() != "DASHBOARD" {
		t.Fatalf("expected dashboard index, got %q", rr.Body.String())
	}
}

func TestResolveWebDir(t *testing.T) {
	tmp := t.TempDir()
	distDir := filepath.Join(tmp, "dist")
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		t.Fatalf("mkdir dist: %v", err)
	}

	if got := resolveWebDir(distDir); got != distDir {
		t.Fatalf("expected input dir, got %q", got)
	}
	if got := resolveWebDir(filepath.Join(tmp, "missing")); got != "" {
		t.Fatalf("expected empty for missing, got %q", got)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()

	if got := resolveWebDir(""); got != "dist" {
		t.Fatalf("expected dist, got %q", got)
	}
}

func TestWatchParentExits(t *testing.T) {
	origGetppid := getppid
	origSleep := sleep
	origExit := exit
	defer func() {
		getppid = origGetppid
		sleep = origSleep
		exit = origExit
	}()

	getppid = func() int { return 1 }
	sleep = func(time.Duration) {}

	done := make(chan struct{})
	exit = func(code int) {
		close(done)
		runtime.Goexit()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	go watchParent(logger)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("watchParent did not exit")
	}
}

func TestServeLifecycle(t *testing.T) {
	clearIntelEnv(t)
	restore := slog.Default()
	t.Cleanup(func() { slog.SetDefault(restore) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := &config.Config{Host: "127.0.0.1", Port: port, LogDir: t.TempDir()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, "") }()

	healthy := false
	for i := 0; i < 50 && !healthy; i++ {
		resp, err := http.Get("http://" + cfg.Addr() + "/api/health")
		if err == nil {
			healthy = resp.StatusCode == http.StatusOK
			_ = resp.Body.Close()
		}
		if !healthy {
			time.Sleep(20 * time.Millisecond)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not shut down")
	}
	if !healthy {
		t.Fatalf("server never became healthy")
	}
}
