package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/quickdeliver/qdsupport/internal/api"
	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/composer"
	"github.com/quickdeliver/qdsupport/internal/config"
	"github.com/quickdeliver/qdsupport/internal/conversation"
	"github.com/quickdeliver/qdsupport/internal/logging"
	"github.com/quickdeliver/qdsupport/internal/pipeline"
	"github.com/quickdeliver/qdsupport/internal/profile"
	"github.com/quickdeliver/qdsupport/internal/proxy"
	"github.com/quickdeliver/qdsupport/internal/recommend"
	"github.com/quickdeliver/qdsupport/internal/storage"
	"github.com/quickdeliver/qdsupport/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the qdsupport server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running qdsupport server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show qdsupport system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve recommendation and account tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "qdsupport.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// app holds the long-lived components shared by the HTTP and MCP servers.
type app struct {
	store   *storage.Store
	engine  *recommend.Engine
	closers []func()

	// externalHistory is set when order history comes from PostgreSQL.
	externalHistory bool
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp opens storage, seeds the catalog and builds the first
// recommendation snapshot. A failed first build is logged; reads then serve
// the static catalog fallback until a rebuild succeeds.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{store: store}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	})

	seeded, err := store.SeedCatalog(catalog.DefaultRestaurants())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("seeding catalog: %w", err)
	}
	if seeded > 0 {
		slog.Info("seeded restaurant catalog", "restaurants", seeded)
	}

	var history recommend.HistorySource = store
	if cfg.Storage.OrdersDSN != "" {
		pg, err := storage.OpenPGHistory(ctx, cfg.Storage.OrdersDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to orders database: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		history = pg
		a.externalHistory = true
		slog.Info("order history served from PostgreSQL")
	}

	rc := recommend.DefaultConfig()
	rc.CollaborativeWeight = cfg.Recommend.CollaborativeWeight
	rc.ContentWeight = cfg.Recommend.ContentWeight
	rc.Neighbors = cfg.Recommend.Neighbors
	rc.DefaultLimit = cfg.Recommend.DefaultLimit

	engine, err := recommend.New(rc, history, store,
		recommend.WithFallbackCatalog(catalog.New(catalog.DefaultRestaurants())),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	if snap, err := engine.Rebuild(ctx); err != nil {
		slog.Warn("initial model build failed, serving fallback catalog", "error", err)
	} else {
		slog.Info("recommendation model ready", "generation", snap.Generation, "users", snap.Users())
	}
	return a, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "qdsupport version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	if cfg.Proxy.OpenRouterAPIKey == "" {
		printWarning("%s", config.MissingAPIKeyHint())
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	baseURL := serverURL(cfg.Server.Host, cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(baseURL + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("qdsupport is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("qdsupport is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	snapshotCatalog := func() *catalog.Catalog {
		if s := a.engine.Snapshot(); s != nil {
			return s.Catalog()
		}
		return nil
	}
	profiles := profile.NewManager(a.store, snapshotCatalog)

	proxyClient := proxy.NewClientWithSettings(cfg.Proxy.OpenRouterAPIKey, cfg.Proxy.BaseURL, proxy.DefaultBreakerSettings())
	comp := composer.New(cfg.Proxy.DefaultModel, cfg.Chat.MaxContextTokens)
	assistant := pipeline.NewAssistant(
		proxyClient,
		a.store,
		profiles,
		a.engine,
		comp,
		config.Duration("proxy.timeout", cfg.Proxy.Timeout, 30*time.Second),
	)

	sessions := conversation.NewSessions(nil)
	idle := config.Duration("chat.session_idle_timeout", cfg.Chat.SessionIdleTimeout, 30*time.Minute)
	go sessions.RunEviction(ctx, time.Minute, idle)

	handler := api.NewHandler(api.Deps{
		Store:         a.store,
		Engine:        a.engine,
		Profiles:      profiles,
		Sessions:      sessions,
		Assistant:     assistant,
		Models:        proxyClient,
		Token:         apiToken,
		ChatRateLimit: cfg.Chat.RateLimit,

		OrdersReadOnly: a.externalHistory,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start model rebuild worker.
	w := worker.NewWorker(a.store, a.engine, config.Duration("worker.poll_interval", cfg.Worker.PollInterval, 500*time.Millisecond))
	go w.Run(ctx)

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "qdsupport listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves the MCP tools on stdin/stdout. stdout carries the protocol,
// so logs always go to stderr as JSON.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{Level: cfg.Log.Level, Format: "json", Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Orders written by the HTTP server trigger rebuild jobs; pick them up here too.
	w := worker.NewWorker(a.store, a.engine, config.Duration("worker.poll_interval", cfg.Worker.PollInterval, 500*time.Millisecond))
	go w.Run(ctx)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  a.store,
		Engine: a.engine,
		Rules:  conversation.DefaultRules(),
	})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("qdsupport is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop qdsupport (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to qdsupport (PID %d)", pid)
	return nil
}

// healthStatus is the body of GET /health.
type healthStatus struct {
	Status     string `json:"status"`
	Generation uint64 `json:"generation"`
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	baseURL := serverURL(cfg.Server.Host, cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var hs healthStatus
		if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&hs) == nil {
			running = true
			printStatus("Server", "running on %s:%d", cfg.Server.Host, cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
		resp.Body.Close()
	}

	if cfg.Proxy.OpenRouterAPIKey == "" {
		printStatus("OpenRouter", "no API key (chat replies degraded)")
	} else {
		printStatus("OpenRouter", "configured (%s)", cfg.Proxy.DefaultModel)
	}
	if cfg.Storage.OrdersDSN != "" {
		printStatus("Order history", "PostgreSQL")
	} else {
		printStatus("Order history", "local SQLite")
	}

	if running {
		token, tokenErr := config.GetAPIToken(config.NewKeychain())
		if tokenErr == nil {
			c := &apiClient{baseURL: baseURL, token: token, httpClient: client}
			var ms modelStatus
			if r, err := c.get(ctx, "/model"); err == nil && decodeJSON(r, &ms) == nil {
				printModelStatus(ms)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
