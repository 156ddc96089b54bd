// Browser telemetry client: fingerprints the hosting browser, maintains a
// registered identity with the collection service and reads engagement counters.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telemetry-client/internal/browser"
	"telemetry-client/internal/collector"
	"telemetry-client/internal/config"
	"telemetry-client/internal/models"
	"telemetry-client/internal/probe"
	"telemetry-client/internal/storage"
	"telemetry-client/internal/telemetry"
)

// Version info
const (
	AppName    = "telemetry-client"
	AppVersion = "0.1.0"
)

// Command line flags
var (
	configPath = flag.String("config", "./config/config.yaml", "Path to config file")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	headless   = flag.Bool("headless", false, "Run in headless mode")
)

// App holds all application dependencies
type App struct {
	config  *config.Config
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	db      *storage.Database
	browser *browser.Browser
	runtime *browser.Runtime
	client  *telemetry.Client
}

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]
	if command == "help" {
		printUsage()
		return
	}

	app, err := NewApp()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer app.Cleanup()

	app.setupSignalHandler()

	var cmdErr error
	switch command {
	case "run":
		cmdErr = app.cmdRun()
	case "fingerprint":
		cmdErr = app.cmdFingerprint()
	case "status":
		cmdErr = app.cmdStatus()
	case "view":
		cmdErr = app.cmdRecord(rest, models.ActionTypeView)
	case "like":
		cmdErr = app.cmdRecord(rest, models.ActionTypeLike)
	case "counts":
		cmdErr = app.cmdCounts(rest)
	case "reset":
		cmdErr = app.cmdReset()
	case "serve":
		cmdErr = app.cmdServe()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		app.Cleanup()
		os.Exit(1)
	}

	if cmdErr != nil {
		app.logger.Error().Err(cmdErr).Msg("Command failed")
		app.Cleanup()
		os.Exit(1)
	}
}

// NewApp creates and initializes the application
func NewApp() (*App, error) {
	app := &App{}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.config = cfg

	// Override with command line flags
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *headless {
		cfg.Browser.Headless = true
	}

	app.setupLogging()
	app.logger.Debug().Str("version", AppVersion).Msg("Starting application")

	return app, nil
}

// initClient opens the client state database and the telemetry client
func (app *App) initClient() error {
	if app.client != nil {
		return nil
	}
	if err := app.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := storage.Open(app.config.Storage.DatabasePath, storage.ClientSchema)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db
	app.client = telemetry.NewClient(&app.config.Telemetry, storage.NewKVStore(db), app.logger)
	return nil
}

// initBrowser launches the browser and opens the probe page (lazy initialization)
func (app *App) initBrowser() error {
	if app.runtime != nil {
		return nil
	}

	b, err := browser.NewBrowser(&app.config.Browser, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	app.browser = b

	rt, err := b.Open(app.ctx, app.config.Browser.PageURL)
	if err != nil {
		return fmt.Errorf("failed to open probe page: %w", err)
	}
	app.runtime = rt
	return nil
}

func (app *App) newGenerator() *probe.Generator {
	verifier := probe.NewVerifier(app.config.Verifier.Attempts, app.config.Verifier.Delay(), app.logger)
	return probe.NewGenerator(probe.Default(app.runtime), verifier, app.logger)
}

// setupLogging configures the logger
func (app *App) setupLogging() {
	// Logs go to stderr, command output to stdout
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	level := zerolog.InfoLevel
	switch app.config.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	app.logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	log.Logger = app.logger
}

// setupSignalHandler cancels in-flight work on interrupt
func (app *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		app.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		app.cancel()
	}()
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	app.cancel()

	if app.runtime != nil {
		app.runtime.Close()
		app.runtime = nil
	}
	if app.browser != nil {
		app.browser.Close()
		app.browser = nil
	}
	if app.db != nil {
		app.db.Close()
		app.db = nil
	}
}

// cmdRun performs one full telemetry cycle against the configured page
func (app *App) cmdRun() error {
	if err := app.initClient(); err != nil {
		return err
	}
	if err := app.initBrowser(); err != nil {
		return err
	}

	runner := telemetry.NewRunner(app.client, app.newGenerator(), app.runtime, app.logger)
	report := runner.Run(app.ctx)

	fmt.Printf("State:       %s\n", report.State)
	fmt.Printf("Stopped at:  %s\n", report.Step)
	fmt.Printf("Registered:  %v\n", report.Registered)
	if report.Fingerprint != nil {
		fmt.Printf("Fingerprint: %s\n", report.Fingerprint.FinalHash)
		fmt.Printf("Unchanged:   %v\n", report.Unchanged)
	}
	if report.Err != nil {
		fmt.Printf("Error:       %v\n", report.Err)
	}
	return nil
}

// cmdFingerprint prints every probe result and the final hash
func (app *App) cmdFingerprint() error {
	if err := app.initBrowser(); err != nil {
		return err
	}

	fp := app.newGenerator().Generate(app.ctx)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBE\tSTATUS\tHASH")
	for _, name := range fp.Names() {
		res := fp.Components[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, res.Status, res.Hash)
	}
	tw.Flush()

	fmt.Printf("\nFinal hash: %s\n", fp.FinalHash)
	return nil
}

// cmdStatus prints the persisted identity and whether the service accepts it
func (app *App) cmdStatus() error {
	if err := app.initClient(); err != nil {
		return err
	}

	ident, err := app.client.Identity()
	if err != nil {
		return err
	}
	stored, err := app.client.StoredFingerprint()
	if err != nil {
		return err
	}

	fmt.Println("\n========== Status ==========")
	fmt.Printf("Service:     %s\n", app.config.Telemetry.BaseURL)
	if !ident.Valid() {
		fmt.Println("Identity:    none")
		fmt.Println("============================")
		return nil
	}
	fmt.Printf("Client ID:   %s\n", ident.ID)
	if stored == "" {
		stored = "none"
	}
	fmt.Printf("Fingerprint: %s\n", stored)

	ok, err := app.client.CheckStatus(app.ctx)
	if err != nil {
		fmt.Printf("Remote:      unreachable (%v)\n", err)
	} else {
		fmt.Printf("Remote:      registered=%v\n", ok)
	}
	fmt.Println("============================")
	return nil
}

// cmdRecord records a view or like for one URL
func (app *App) cmdRecord(args []string, action models.ActionType) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s %s <url>", AppName, action)
	}
	if err := app.initClient(); err != nil {
		return err
	}

	var (
		ok  bool
		err error
	)
	if action == models.ActionTypeLike {
		ok, err = app.client.RecordLike(app.ctx, args[0])
	} else {
		ok, err = app.client.RecordView(app.ctx, args[0])
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not recorded: %w (run '%s run' first)", telemetry.ErrNotRegistered, AppName)
	}

	fmt.Printf("Recorded %s for %s\n", action, telemetry.CanonicalURL(args[0]))
	return nil
}

// cmdCounts prints view and like counts for the given URLs
func (app *App) cmdCounts(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s counts <url>...", AppName)
	}
	if err := app.initClient(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "URL\tVIEWS\tLIKES")

	if len(args) == 1 {
		views, err := app.client.GetViewCount(app.ctx, args[0])
		if err != nil {
			return err
		}
		likes, err := app.client.GetLikeCount(app.ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\n", views.URL, views.Count, likes.Count)
		return nil
	}

	bulk, err := app.client.GetBulkCounts(app.ctx, args)
	if err != nil {
		return err
	}
	for _, rec := range bulk.Raw.Results {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", rec.URL, rec.ViewCount, rec.LikeCount)
	}
	return nil
}

// cmdReset forgets the persisted identity and fingerprint
func (app *App) cmdReset() error {
	if err := app.initClient(); err != nil {
		return err
	}
	if err := app.client.Reset(); err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}
	fmt.Println("Persisted telemetry state cleared")
	return nil
}

// cmdServe runs the reference collection service until interrupted
func (app *App) cmdServe() error {
	if err := app.config.ValidateForCollector(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := storage.Open(app.config.Collector.DatabasePath, storage.CollectorSchema)
	if err != nil {
		return fmt.Errorf("failed to open collector database: %w", err)
	}
	app.db = db

	svc := collector.NewService(db, &app.config.Collector, app.logger)
	return svc.Serve(app.ctx, app.config.Collector.ListenAddr)
}

// printUsage prints usage information
func printUsage() {
	fmt.Println(strings.TrimSpace(`
Usage: telemetry-client [options] <command> [args]

Commands:
  run             Fingerprint the page and check in with the collection service
  fingerprint     Print every probe result and the final hash
  status          Show the persisted identity and its remote status
  view <url>      Record a page view
  like <url>      Record a like
  counts <url>... Show view and like counts
  reset           Forget the persisted identity and fingerprint
  serve           Run the reference collection service
  help            Show this help message

Options:
  -config string    Path to config file (default "./config/config.yaml")
  -log-level string Log level: debug, info, warn, error
  -headless         Run browser in headless mode

Examples:
  telemetry-client serve
  telemetry-client -headless run
  telemetry-client counts https://example.org/a https://example.org/b
`))
}
