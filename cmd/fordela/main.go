package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hylla/fordela/internal/adapters/recommend"
	serveradapter "github.com/hylla/fordela/internal/adapters/server"
	"github.com/hylla/fordela/internal/adapters/storage/postgres"
	"github.com/hylla/fordela/internal/adapters/storage/sqlite"
	"github.com/hylla/fordela/internal/app"
	"github.com/hylla/fordela/internal/config"
	"github.com/hylla/fordela/internal/platform"
	"github.com/hylla/fordela/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, engine *app.Service) error {
	return serveradapter.Run(ctx, cfg, engine)
}

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("fordela", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		appName    string
		logLevel   string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("FORDELA_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("FORDELA_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "fordela"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database (forces the sqlite driver)")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "fordela %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
		return nil
	case "", "board", "serve":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("FORDELA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("FORDELA_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	if err := config.EnsureConfigDir(configPath); err != nil {
		return fmt.Errorf("ensure config dir for %q: %w", configPath, err)
	}
	defaultCfg := config.Default(dbPath)
	cfg, err := config.Load(configPath, defaultCfg)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = dbPath
	}

	level, err := charmLog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", logLevel, err)
	}
	logger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})
	if command == "" || command == "board" {
		// Keep board rendering clean while the program owns the terminal.
		logger.SetOutput(io.Discard)
	}

	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir)
	logger.Info("configuration loaded", "config_path", configPath, "driver", cfg.Database.Driver)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	var gateway app.RecommendationGateway
	if baseURL := strings.TrimSpace(cfg.Gateway.BaseURL); baseURL != "" {
		gateway = recommend.New(baseURL,
			recommend.WithTimeout(time.Duration(cfg.Gateway.TimeoutMS)*time.Millisecond),
			recommend.WithLogger(logger),
		)
		logger.Info("recommendation gateway configured", "base_url", baseURL, "timeout_ms", cfg.Gateway.TimeoutMS)
	} else {
		logger.Info("recommendation gateway not configured, suggestions disabled")
	}

	svc := app.NewService(repo, gateway, uuid.NewString, time.Now)
	logger.Debug("lifecycle engine initialized")

	switch command {
	case "serve":
		logger.Info("command flow start", "command", "serve")
		if err := runServe(ctx, svc, cfg, fs.Args()[1:], appName); err != nil {
			logger.Error("command flow failed", "command", "serve", "err", err)
			return fmt.Errorf("run serve command: %w", err)
		}
		logger.Info("command flow complete", "command", "serve")
		return nil
	case "":
		return runBoard(svc, cfg, nil)
	case "board":
		return runBoard(svc, cfg, fs.Args()[1:])
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// openRepository opens the configured storage backend and returns it with
// its cleanup function.
func openRepository(ctx context.Context, cfg config.Config, logger *charmLog.Logger) (app.Repository, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		logger.Info("opening postgres repository")
		repo, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("postgres open failed", "err", err)
			return nil, nil, fmt.Errorf("open postgres repository: %w", err)
		}
		logger.Info("postgres repository ready", "migrations", "ensured")
		return repo, func() {
			if closeErr := repo.Close(); closeErr != nil {
				logger.Warn("postgres close failed", "err", closeErr)
			}
		}, nil
	default:
		logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
		repo, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
			return nil, nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")
		return repo, func() {
			if closeErr := repo.Close(); closeErr != nil {
				logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
			}
		}, nil
	}
}

// runBoard launches the interactive board.
func runBoard(svc *app.Service, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("fordela board", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var projectID string
	fs.StringVar(&projectID, "project", "", "project id to open (defaults to the first active project)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse board flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected board arguments: %v", fs.Args())
	}

	m := tui.NewModel(svc,
		tui.WithProjectID(projectID),
		tui.WithShowDescriptions(cfg.Board.ShowDescriptions),
	)
	if _, err := programFactory(m).Run(); err != nil {
		return fmt.Errorf("run board program: %w", err)
	}
	return nil
}

// runServe starts the HTTP API and MCP surfaces until interrupted.
func runServe(ctx context.Context, svc *app.Service, cfg config.Config, args []string, appName string) error {
	fs := flag.NewFlagSet("fordela serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	fs.StringVar(&httpBind, "http", cfg.Server.Bind, "HTTP listen address")
	fs.StringVar(&apiEndpoint, "api-endpoint", cfg.Server.APIEndpoint, "HTTP API base endpoint")
	fs.StringVar(&mcpEndpoint, "mcp-endpoint", cfg.Server.MCPEndpoint, "MCP streamable HTTP endpoint")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse serve flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected serve arguments: %v", fs.Args())
	}

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveCommandRunner(serveCtx, serveradapter.Config{
		HTTPBind:      httpBind,
		APIEndpoint:   apiEndpoint,
		MCPEndpoint:   mcpEndpoint,
		ServerName:    appName,
		ServerVersion: version,
	}, svc)
}

// firstArg handles first arg.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
