package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"marketintel/internal/api"
	"marketintel/internal/config"
	"marketintel/internal/logging"
	"marketintel/pkg/intel"
)

const envParentWatch = "MARKETINTEL_PARENT_WATCH"

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

type serveOptions struct {
	host   string
	port   int
	logDir string
	webDir string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the intelligence HTTP server",
		Long: `Start the HTTP server.

Endpoints:
  POST /api/intelligence  - grounded model call
  GET  /api/health        - health check

Keys are read from FINNHUB_API_KEY and GEMINI_API_KEY (environment or .env).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = opts.host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = opts.port
			}
			if cmd.Flags().Changed("log-dir") {
				cfg.LogDir = opts.logDir
			}
			return runServe(cmd.Context(), cfg, opts.webDir)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "127.0.0.1", "Host to bind the server to")
	cmd.Flags().IntVar(&opts.port, "port", 8000, "Port to run the server on")
	cmd.Flags().StringVar(&opts.logDir, "log-dir", "", "Directory for daily log files (optional)")
	cmd.Flags().StringVar(&opts.webDir, "web-dir", "", "Directory with the built dashboard (optional)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, webDir string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closer, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: slog.LevelInfo})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	svc := intel.NewService(cfg.IntelOptions(logger))
	if err := svc.CheckCredentials(); err != nil {
		logger.Warn("upstream credentials incomplete; intelligence requests will fail", "err", err)
	}

	if os.Getenv(envParentWatch) == "1" {
		go watchParent(logger)
	}

	handler := buildHandler(svc, resolveWebDir(webDir), logger)
	server := newHTTPServer(cfg.Addr(), handler)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "model", cfg.Gemini.Model)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
		return err
	}
	return nil
}

func buildHandler(svc *intel.Service, webDir string, logger *slog.Logger) http.Handler {
	handler := api.NewRouter(svc)
	if webDir != "" {
		logger.Info("serving dashboard", "web_dir", webDir)
		handler = api.WithDashboard(handler, webDir)
	}
	return middleware.Compress(5)(handler)
}

// newHTTPServer bounds slow clients. WriteTimeout must cover five generation
// attempts plus backoff.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      6 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}

// watchParent exits once the launching process is gone, for desktop shells
// that spawn the server as a child.
func watchParent(logger *slog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info("parent process exited; shutting down")
			exit(0)
		}
	}
}

func resolveWebDir(input string) string {
	if input != "" {
		if dirExists(input) {
			return input
		}
		return ""
	}

	candidates := []string{"dist", "../dist"}
	for _, candidate := range candidates {
		if dirExists(candidate) {
			return candidate
		}
	}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		for _, candidate := range candidates {
			path := filepath.Join(base, candidate)
			if dirExists(path) {
				return path
			}
		}
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
