package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	charmLog "github.com/charmbracelet/log"

	"github.com/ycnlabs/prospect/internal/adapters/remote/dataverse"
	serveradapter "github.com/ycnlabs/prospect/internal/adapters/server"
	servercommon "github.com/ycnlabs/prospect/internal/adapters/server/common"
	"github.com/ycnlabs/prospect/internal/adapters/storage/sqlite"
	"github.com/ycnlabs/prospect/internal/app"
	"github.com/ycnlabs/prospect/internal/auth"
	"github.com/ycnlabs/prospect/internal/config"
	"github.com/ycnlabs/prospect/internal/domain"
	"github.com/ycnlabs/prospect/internal/platform"
	"github.com/ycnlabs/prospect/internal/tui"
)

var version = "dev"

// program abstracts the TUI program loop for test stubbing.
type program interface {
	Run() (tea.Model, error)
	Send(msg tea.Msg)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, svc servercommon.LeadService) error {
	return serveradapter.Run(ctx, cfg, svc)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
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

	fs := flag.NewFlagSet("prospect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		appName    string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("PROSPECT_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("PROSPECT_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "prospect"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to session database")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "prospect %s\n", version)
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
	case "", "login", "logout", "whoami", "leads", "serve":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("PROSPECT_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("PROSPECT_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	defaultCfg := config.Default(dbPath)
	cfg, err := config.Load(configPath, defaultCfg)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration (create %s with remote.base_url and auth.client_id): %w", configPath, err)
	}

	logger, err := newRuntimeLogger(stderr, appName, devMode, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "" {
		// Keep TUI rendering clean: runtime logs stay in the dev-file sink while the board is active.
		logger.SetConsoleEnabled(false)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil && logger.consoleEnabled {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	if err := platform.EnsureDataDir(filepath.Dir(cfg.Database.Path)); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("session store open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open session store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("session store close failed", "db_path", cfg.Database.Path, "err", closeErr)
		}
	}()

	provider := auth.NewProvider(auth.Config{
		Authority: cfg.Auth.Authority,
		TenantID:  cfg.Auth.TenantID,
		ClientID:  cfg.Auth.ClientID,
		Scopes:    cfg.ResourceScopes(),
	}, store, auth.WithLogger(logger.Component()))
	provider.Initialize(ctx)

	client, err := dataverse.NewClient(dataverse.Config{
		BaseURL:    cfg.Remote.BaseURL,
		APIVersion: cfg.Remote.APIVersion,
		EntitySet:  cfg.Remote.EntitySet,
	}, dataverse.WithLogger(logger.Component()))
	if err != nil {
		return fmt.Errorf("configure remote client: %w", err)
	}

	board := app.NewBoard()
	svc := app.NewService(board, client, provider, app.WithServiceLogger(logger.Component()))

	switch command {
	case "":
		logger.Info("command flow start", "command", "tui")
	case "login":
		if err := runLogin(ctx, provider, stdout); err != nil {
			logger.Error("command flow failed", "command", "login", "err", err)
			return err
		}
		return nil
	case "logout":
		if err := provider.SignOut(ctx); err != nil {
			logger.Error("command flow failed", "command", "logout", "err", err)
			return fmt.Errorf("sign out: %w", err)
		}
		_, _ = fmt.Fprintln(stdout, "signed out")
		return nil
	case "whoami":
		return runWhoami(provider, stdout)
	case "leads":
		if err := runLeads(ctx, svc, fs.Args()[1:], stdout); err != nil {
			logger.Error("command flow failed", "command", "leads", "err", err)
			return err
		}
		return nil
	case "serve":
		logger.Info("command flow start", "command", "serve")
		if err := runServe(ctx, svc, fs.Args()[1:], appName); err != nil {
			logger.Error("command flow failed", "command", "serve", "err", err)
			return fmt.Errorf("run serve command: %w", err)
		}
		logger.Info("command flow complete", "command", "serve")
		return nil
	}

	account, _ := provider.CurrentAccount()
	logger.Info("starting tui program loop", "signed_in", account.Username != "")

	m := tui.NewModel(svc, provider, tui.WithBoardFieldConfig(tui.BoardFieldConfig{
		ShowCounts:     cfg.Board.ShowCounts,
		ShowTimestamps: cfg.Board.ShowTimestamps,
	}))
	p := programFactory(m)
	// The device-code prompt and board repaints both flow through the
	// program's message loop once it exists.
	provider.UsePrompter(tui.ProgramPrompter{Send: p.Send})
	svc.SetOnChange(func() { p.Send(tui.BoardChanged{}) })

	if _, err := p.Run(); err != nil {
		logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	logger.Info("command flow complete", "command", "tui")
	return nil
}

// terminalPrompter prints device-code sign-in instructions to the terminal.
type terminalPrompter struct {
	out io.Writer
}

// PromptDeviceCode writes the verification instructions for one pending grant.
func (p terminalPrompter) PromptDeviceCode(_ context.Context, code auth.DeviceCode) error {
	if code.Message != "" {
		_, _ = fmt.Fprintln(p.out, code.Message)
		return nil
	}
	_, _ = fmt.Fprintf(p.out, "To sign in, open %s and enter the code %s\n", code.VerificationURI, code.UserCode)
	return nil
}

// runLogin runs the interactive device-code sign-in flow.
func runLogin(ctx context.Context, provider *auth.Provider, stdout io.Writer) error {
	provider.UsePrompter(terminalPrompter{out: stdout})
	account, err := provider.SignIn(ctx)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "signed in as %s\n", account.Username)
	return nil
}

// runWhoami prints the restored session identity.
func runWhoami(provider *auth.Provider, stdout io.Writer) error {
	account, ok := provider.CurrentAccount()
	if !ok {
		_, _ = fmt.Fprintln(stdout, "not signed in (run: prospect login)")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "user: %s\n", account.Username)
	if account.DisplayName != "" {
		_, _ = fmt.Fprintf(stdout, "name: %s\n", account.DisplayName)
	}
	if account.TenantID != "" {
		_, _ = fmt.Fprintf(stdout, "tenant: %s\n", account.TenantID)
	}
	return nil
}

// runLeads dispatches the leads subcommands.
func runLeads(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	sub := firstArg(args)
	switch sub {
	case "", "list":
		return runLeadsList(ctx, svc, rest(args), stdout)
	case "create":
		return runLeadsCreate(ctx, svc, rest(args), stdout)
	case "move":
		return runLeadsMove(ctx, svc, rest(args), stdout)
	case "rm":
		return runLeadsRemove(ctx, svc, rest(args), stdout)
	default:
		return fmt.Errorf("unknown leads subcommand: %s", sub)
	}
}

// runLeadsList fetches the board and prints it in board order.
func runLeadsList(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("prospect leads list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var asJSON bool
	fs.BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse leads list flags: %w", err)
	}

	leads, err := servercommon.ListLeads(ctx, svc)
	if err != nil {
		return fmt.Errorf("list leads: %w", err)
	}
	if asJSON {
		encoded, err := json.MarshalIndent(map[string]any{"leads": leads}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode leads json: %w", err)
		}
		encoded = append(encoded, '\n')
		_, _ = stdout.Write(encoded)
		return nil
	}
	if len(leads) == 0 {
		_, _ = fmt.Fprintln(stdout, "no open leads")
		return nil
	}
	for _, lead := range leads {
		_, _ = fmt.Fprintf(stdout, "%-38s  %-6s  %s\n", lead.ID, lead.Column, lead.Name)
	}
	return nil
}

// runLeadsCreate creates one lead in the requested column.
func runLeadsCreate(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("prospect leads create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		name   string
		column string
	)
	fs.StringVar(&name, "name", "", "prospect name")
	fs.StringVar(&column, "column", string(domain.ColumnCold), "board column (cold|warm|hot)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse leads create flags: %w", err)
	}
	rating, err := domain.Column(strings.TrimSpace(strings.ToLower(column))).Rating()
	if err != nil {
		return err
	}
	lead, err := svc.CreateLead(ctx, name, rating)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "created %s (%s) in %s\n", lead.Name, lead.ID, lead.Column())
	return nil
}

// runLeadsMove moves one lead to another column.
func runLeadsMove(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("prospect leads move", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var column string
	fs.StringVar(&column, "column", "", "target column (cold|warm|hot)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse leads move flags: %w", err)
	}
	id := firstArg(fs.Args())
	if id == "" {
		return fmt.Errorf("lead id is required")
	}
	// Populate the board so the optimistic coordinator has a lead to move.
	if err := svc.RefreshLeads(ctx); err != nil {
		return fmt.Errorf("refresh leads: %w", err)
	}
	if err := svc.MoveLead(ctx, id, domain.Column(strings.TrimSpace(strings.ToLower(column)))); err != nil {
		return fmt.Errorf("move lead: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "moved %s to %s\n", id, column)
	return nil
}

// runLeadsRemove deletes one lead.
func runLeadsRemove(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	id := firstArg(args)
	if id == "" {
		return fmt.Errorf("lead id is required")
	}
	if err := svc.RefreshLeads(ctx); err != nil {
		return fmt.Errorf("refresh leads: %w", err)
	}
	if err := svc.DeleteLead(ctx, id); err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "deleted %s\n", id)
	return nil
}

// runServe runs the serve subcommand flow.
func runServe(ctx context.Context, svc *app.Service, args []string, appName string) error {
	fs := flag.NewFlagSet("prospect serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	fs.StringVar(&httpBind, "http", "127.0.0.1:8080", "HTTP listen address")
	fs.StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	fs.StringVar(&mcpEndpoint, "mcp-endpoint", "/mcp", "MCP streamable HTTP endpoint")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse serve flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected serve arguments: %v", fs.Args())
	}

	return serveCommandRunner(ctx, serveradapter.Config{
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

// rest returns the arguments after the subcommand name.
func rest(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
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

// runtimeLogger fans log events to a styled console sink and an optional
// logfmt dev-file sink.
type runtimeLogger struct {
	sinks          []*charmLog.Logger
	consoleSink    *charmLog.Logger
	fileSink       *charmLog.Logger
	consoleEnabled bool
	closeFile      func() error
	devLog         string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})

	logger := &runtimeLogger{
		sinks:          []*charmLog.Logger{consoleLogger},
		consoleSink:    consoleLogger,
		consoleEnabled: true,
	}
	if !devMode || strings.TrimSpace(cfg.DevFile) == "" {
		return logger, nil
	}

	devLogPath, err := devLogFilePath(cfg.DevFile)
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// Keep file output parseable and unstyled while preserving styled console logs.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.fileSink = fileLogger
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// Component returns the sink injected into long-lived components. The file
// sink when present, so component logs survive console muting during TUI runs.
func (l *runtimeLogger) Component() *charmLog.Logger {
	if l.fileSink != nil {
		return l.fileSink
	}
	return l.consoleSink
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// SetConsoleEnabled toggles whether the console sink receives runtime events.
func (l *runtimeLogger) SetConsoleEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.consoleEnabled = enabled
}

// shouldLogToSink reports whether one sink should receive runtime output.
func (l *runtimeLogger) shouldLogToSink(sink *charmLog.Logger) bool {
	if l == nil || sink == nil {
		return false
	}
	if sink == l.consoleSink && !l.consoleEnabled {
		return false
	}
	return true
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Error(msg, keyvals...)
	}
}

// devLogFilePath resolves the configured dev log path, anchoring relative
// paths at the nearest workspace root for stable placement.
func devLogFilePath(configured string) (string, error) {
	path := strings.TrimSpace(configured)
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working dir: %w", err)
	}
	return filepath.Join(workspaceRootFrom(cwd), path), nil
}

// workspaceRootFrom resolves the nearest ancestor workspace marker.
func workspaceRootFrom(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" {
		return "."
	}
	dir := start
	for {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// hasWorkspaceMarker reports whether a directory looks like a project workspace root.
func hasWorkspaceMarker(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	return false
}
