// Command dungeon-hub runs the shared social hub server.
//
// Commands:
//  1. "serve" (default) – HTTP server exposing the WebSocket hub, the REST
//     diagnostics and an /mcp HTTP endpoint
//  2. "mcp" – MCP stdio server; reuses a running server at --api-url or
//     starts an internal read-only one
//  3. "token" – prints a signed development token for an account
//
// Every flag can also be set from the environment (see --help), and a .env
// file in the working directory is loaded first.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/dungeon-hub/api"
	"github.com/wricardo/dungeon-hub/auth"
	"github.com/wricardo/dungeon-hub/game/config"
	"github.com/wricardo/dungeon-hub/game/presence"
	"github.com/wricardo/dungeon-hub/game/room"
	"github.com/wricardo/dungeon-hub/game/service"
	"github.com/wricardo/dungeon-hub/transport/mcp"
	"github.com/wricardo/dungeon-hub/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Dungeon Hub Server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Flags on the root are inherited by every
// subcommand.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "dungeon-hub",
		Usage:   AppName,
		Version: Version,
		Flags:   serverFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server with WebSocket hub, REST API and MCP endpoint (default)",
				Action: runServe,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run the MCP stdio server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Value:   "http://localhost:8080",
						Usage:   "Running server to proxy to; an internal one is started if it does not answer",
						Sources: cli.EnvVars("HUB_API_URL"),
					},
				},
				Action: runMCP,
			},
			{
				Name:  "token",
				Usage: "Print a signed development token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "account",
						Usage:    "Account ID to put in the subject claim",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Value: 24 * time.Hour,
						Usage: "How long the token stays valid",
					},
				},
				Action: runToken,
			},
		},
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level: debug, info, warn or error",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format: text or json",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func serverFlags() []cli.Flag {
	return append(logFlags(),
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "HTTP server host",
			Sources: cli.EnvVars("HOST"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "HTTP server port",
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "config-dir",
			Value:   "configs",
			Usage:   "Directory containing room profiles",
			Sources: cli.EnvVars("CONFIG_DIR"),
		},
		&cli.StringFlag{
			Name:    "static-dir",
			Value:   "static",
			Usage:   "Directory served at / (skipped when missing)",
			Sources: cli.EnvVars("STATIC_DIR"),
		},
		&cli.StringFlag{
			Name:    "room",
			Value:   presence.DefaultRoom,
			Usage:   "Room every connection joins",
			Sources: cli.EnvVars("HUB_ROOM"),
		},
		&cli.DurationFlag{
			Name:    "join-timeout",
			Value:   presence.DefaultJoinTimeout,
			Usage:   "How long a join may wait for the presence loop",
			Sources: cli.EnvVars("HUB_JOIN_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "HS256 secret used to verify player tokens",
			Sources: cli.EnvVars("HUB_JWT_SECRET"),
		},
		&cli.StringFlag{
			Name:    "jwt-issuer",
			Usage:   "Required iss claim (optional)",
			Sources: cli.EnvVars("HUB_JWT_ISSUER"),
		},
		&cli.BoolFlag{
			Name:    "ngrok",
			Usage:   "Expose the server through an ngrok tunnel",
			Sources: cli.EnvVars("NGROK_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "ngrok-auth",
			Usage:   "Ngrok auth token",
			Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "ngrok-domain",
			Usage:   "Custom ngrok domain (optional)",
			Sources: cli.EnvVars("NGROK_DOMAIN"),
		},
	)
}

// serverConfig is everything the server commands read from flags
type serverConfig struct {
	Host        string
	Port        int
	ConfigDir   string
	StaticDir   string
	Room        string
	JoinTimeout time.Duration
	JWTSecret   string
	JWTIssuer   string

	NgrokEnabled bool
	NgrokAuth    string
	NgrokDomain  string
}

func serverConfigFromCommand(cmd *cli.Command) serverConfig {
	return serverConfig{
		Host:         cmd.String("host"),
		Port:         int(cmd.Int("port")),
		ConfigDir:    cmd.String("config-dir"),
		StaticDir:    cmd.String("static-dir"),
		Room:         cmd.String("room"),
		JoinTimeout:  cmd.Duration("join-timeout"),
		JWTSecret:    cmd.String("jwt-secret"),
		JWTIssuer:    cmd.String("jwt-issuer"),
		NgrokEnabled: cmd.Bool("ngrok"),
		NgrokAuth:    cmd.String("ngrok-auth"),
		NgrokDomain:  cmd.String("ngrok-domain"),
	}
}

func (c serverConfig) addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// setupLogger installs the default logger. Logs go to stderr so the mcp
// command keeps stdout for the protocol.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// application holds the wired components of one server
type application struct {
	registry   *room.Registry
	controller *presence.Controller
	hub        *websocket.Hub
	service    service.HubService
	api        *api.Server
	logger     *slog.Logger
}

// buildApplication wires registry, presence, transport and API. Without
// realtime the WebSocket hub is left out, which is what the internal server
// of the mcp command needs: it has no secret to verify players with.
func buildApplication(cfg serverConfig, logger *slog.Logger, realtime bool) (*application, error) {
	var configs service.ConfigManager
	registryOpts := []room.Option{}

	manager, err := config.NewManager(cfg.ConfigDir)
	if err != nil {
		logger.Warn("room profiles unavailable, using defaults", "dir", cfg.ConfigDir, "error", err)
	} else {
		configs = manager
		registryOpts = append(registryOpts, room.WithSettings(manager.Settings))
	}

	app := &application{
		registry: room.NewRegistry(registryOpts...),
		logger:   logger,
	}

	app.controller = presence.NewController(app.registry,
		presence.WithRoom(cfg.Room),
		presence.WithJoinTimeout(cfg.JoinTimeout),
		presence.WithLogger(logger),
	)

	serviceOpts := []service.Option{
		service.WithRooms(app.controller.Room()),
		service.WithSessions(app.controller),
	}

	var ws api.WebSocketHandler
	if realtime {
		var jwtOpts []auth.JWTOption
		if cfg.JWTIssuer != "" {
			jwtOpts = append(jwtOpts, auth.WithIssuer(cfg.JWTIssuer))
		}
		validator, err := auth.NewJWTValidator(cfg.JWTSecret, jwtOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create token validator (set --jwt-secret or HUB_JWT_SECRET): %w", err)
		}

		app.hub = websocket.NewHub(app.controller, validator, logger)
		ws = app.hub
		serviceOpts = append(serviceOpts, service.WithConnections(app.hub))
	}

	app.service = service.NewHubService(app.registry, configs, serviceOpts...)

	apiOpts := []api.Option{api.WithLogger(logger)}
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		apiOpts = append(apiOpts, api.WithStaticDir(cfg.StaticDir))
	}
	app.api = api.NewServer(app.service, ws, apiOpts...)

	return app, nil
}

// start runs the background loops until ctx is cancelled
func (a *application) start(ctx context.Context) {
	go a.controller.Run(ctx)
	if a.hub != nil {
		go a.hub.Run(ctx)
	}
}

// wait blocks until the background loops have exited
func (a *application) wait() {
	<-a.controller.Done()
	if a.hub != nil {
		<-a.hub.Done()
	}
}

// mcpHTTPHandler answers MCP JSON-RPC messages posted to /mcp
func mcpHTTPHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// runServe starts the HTTP server and, when enabled, an ngrok tunnel, then
// waits for SIGINT or SIGTERM.
func runServe(ctx context.Context, cmd *cli.Command) error {
	logger := setupLogger(os.Stderr, cmd.String("log-level"), cmd.String("log-format"))
	cfg := serverConfigFromCommand(cmd)

	app, err := buildApplication(cfg, logger, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.start(ctx)

	addr := cfg.addr()
	mcpClient := mcp.NewClient("http://" + addr)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", app.api)
	mainRouter.HandleFunc("/mcp", mcpHTTPHandler(mcpClient))

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     mainRouter,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("starting server", "app", AppName, "version", Version, "room", app.controller.Room())

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info("http server listening", "addr", addr,
			"api", "http://"+addr+"/api",
			"websocket", "ws://"+addr+"/ws?token=<jwt>",
			"mcp", "http://"+addr+"/mcp")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	if cfg.NgrokEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cfg, mainRouter, logger)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		stop()
	}

	// Closes hijacked WebSocket connections, which Shutdown does not track.
	app.wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	wg.Wait()
	logger.Info("server stopped")
	return runErr
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled
func runNgrok(ctx context.Context, cfg serverConfig, handler http.Handler, logger *slog.Logger) {
	if cfg.NgrokAuth == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return
	}

	logger.Info("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
		logger.Info("using custom ngrok domain", "domain", cfg.NgrokDomain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.NgrokAuth))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "error", err)
		return
	}

	ngrokServer := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		ngrokServer.Shutdown(shutdownCtx)
	}()

	ngrokURL := tun.URL()
	wsURL := "wss" + strings.TrimPrefix(ngrokURL, "https")
	logger.Info("ngrok tunnel established", "url", ngrokURL,
		"api", ngrokURL+"/api",
		"websocket", wsURL+"/ws?token=<jwt>",
		"mcp", ngrokURL+"/mcp")

	if err := ngrokServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("ngrok server error", "error", err)
	}
	logger.Info("ngrok tunnel closed")
}

// runMCP serves MCP over stdio. It reuses the server at --api-url when it
// answers, otherwise it starts an internal read-only server on a random
// loopback port.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	logger := setupLogger(os.Stderr, cmd.String("log-level"), cmd.String("log-format"))
	cfg := serverConfigFromCommand(cmd)

	baseURL := strings.TrimRight(cmd.String("api-url"), "/")
	if !probeAPI(baseURL) {
		logger.Info("no API server found, starting internal HTTP server", "probed", baseURL)

		internalURL, shutdown, err := startInternalServer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		baseURL = internalURL
	} else {
		logger.Info("using external API server", "url", baseURL)
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info("mcp stdio server ready", "api", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

func probeAPI(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startInternalServer serves the REST API on 127.0.0.1:0 and returns its
// base URL and a shutdown function.
func startInternalServer(ctx context.Context, cfg serverConfig, logger *slog.Logger) (string, func(), error) {
	app, err := buildApplication(cfg, logger, false)
	if err != nil {
		return "", nil, err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get available port: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	app.start(ctx)

	httpServer := &http.Server{Handler: app.api}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("internal http server error", "error", err)
		}
	}()

	shutdown := func() {
		cancel()
		app.wait()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		httpServer.Shutdown(shutdownCtx)
	}

	return "http://" + listener.Addr().String(), shutdown, nil
}

// runToken prints a token for local testing
func runToken(ctx context.Context, cmd *cli.Command) error {
	setupLogger(os.Stderr, cmd.String("log-level"), cmd.String("log-format"))

	var opts []auth.JWTOption
	if issuer := cmd.String("jwt-issuer"); issuer != "" {
		opts = append(opts, auth.WithIssuer(issuer))
	}
	validator, err := auth.NewJWTValidator(cmd.String("jwt-secret"), opts...)
	if err != nil {
		return err
	}

	token, err := validator.Issue(cmd.String("account"), cmd.Duration("ttl"))
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w, token)
	return nil
}
