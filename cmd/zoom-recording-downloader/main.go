package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/curtbushko/zoom-recording-downloader/internal/config"
	"github.com/curtbushko/zoom-recording-downloader/internal/download"
	"github.com/curtbushko/zoom-recording-downloader/internal/filter"
	"github.com/curtbushko/zoom-recording-downloader/internal/ledger"
	"github.com/curtbushko/zoom-recording-downloader/internal/logging"
	"github.com/curtbushko/zoom-recording-downloader/internal/metrics"
	"github.com/curtbushko/zoom-recording-downloader/internal/naming"
	"github.com/curtbushko/zoom-recording-downloader/internal/processor"
	"github.com/curtbushko/zoom-recording-downloader/internal/progress"
	"github.com/curtbushko/zoom-recording-downloader/internal/strategy"
	"github.com/curtbushko/zoom-recording-downloader/internal/zoom"
)

var (
	// Version information - will be set during build
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	outputDir  string
	verbose    bool
	noProgress bool
	sizeMode   bool
)

// createRootCommand creates and configures the root command
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zoom-recording-downloader",
		Short: "Download Zoom cloud recordings and reconcile them with a metadata ledger",
		Long: `zoom-recording-downloader lists every user's Zoom cloud recordings and
downloads them into a folder layout built from templates.

With the ledger strategy, each meeting is matched against a CSV metadata
ledger: meetings without a row, marked Delete or Ignore, or already
downloaded are skipped, and a meeting is marked downloaded only once every
one of its files is complete on disk. Interrupted runs resume where they
stopped.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath())
			if err != nil {
				printConfigGuidance(cmd, err)
				return nil
			}
			applyFlags(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDownloads(ctx, cmd, cfg)
		},
	}

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createTokenCommand())
	rootCmd.AddCommand(createLedgerCommand())

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path (default: config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "base download directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bars")
	rootCmd.PersistentFlags().BoolVar(&sizeMode, "size", false, "sum the reported size of every eligible file instead of downloading")

	return rootCmd
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	return "config.yaml"
}

// applyFlags lets command-line flags override the loaded configuration
func applyFlags(cfg *config.Config) {
	if outputDir != "" {
		cfg.Download.OutputDir = outputDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if sizeMode {
		cfg.Download.Mode = config.ModeSize
	}
}

func printConfigGuidance(cmd *cobra.Command, err error) {
	cmd.Printf("Configuration Issue Detected\n\n")

	if errors.Is(err, os.ErrNotExist) {
		cmd.Printf("Configuration file '%s' not found.\n\n", configPath())
		cmd.Printf("To get started:\n")
		cmd.Printf("1. Run 'zoom-recording-downloader config' to see the configuration structure\n")
		cmd.Printf("2. Create config.yaml with your Zoom credentials\n")
		cmd.Printf("3. Run 'zoom-recording-downloader' to start downloading\n\n")
	} else {
		cmd.Printf("Configuration error: %v\n\n", err)
		cmd.Printf("Run 'zoom-recording-downloader config' to see the correct configuration structure.\n\n")
	}
	cmd.Printf("For general usage: zoom-recording-downloader --help\n")
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("zoom-recording-downloader version %s\n", version)
			cmd.Printf("Commit: %s\n", commit)
			cmd.Printf("Build date: %s\n", buildDate)
		},
	}
}

// createConfigCommand creates the config help subcommand
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration file structure and examples",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(configHelp)
		},
	}
}

var configHelp = `Configuration File Structure (config.yaml):

zoom:
  account_id: "your_zoom_account_id"       # Server-to-Server OAuth app account ID
  client_id: "your_zoom_client_id"
  client_secret: "your_zoom_client_secret"
  base_url: "https://api.zoom.us/v2"       # default
  token_url: "https://zoom.us/oauth/token" # default

recordings:
  start_date: "2024-01-01"                 # default: January 1st of this year
  end_date: "2024-06-30"                   # default: today
  window_days: 30                          # listing window size (default: 30)

filter:                                    # shell-style globs, case sensitive
  emails_to_include: ["*@example.com"]
  emails_to_exclude: []
  topics_to_include: []
  topics_to_exclude: ["*standup*"]

naming:
  strategy: "default"                      # default | ledger
  timezone: "UTC"                          # zone meeting times are rendered in
  strftime: "%Y.%m.%d - %I.%M %p UTC"
  folder: "{topic} - {meeting_time}"
  filename: "{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}"
  replace_old: " "                         # literal find/replace on names; empty leaves them unchanged
  replace_new: "-"

ledger:                                    # required by the ledger strategy
  path: "./ledger.csv"
  timezone: "America/Los_Angeles"          # zone of Start_Time (default: naming.timezone)
  watch: true                              # refuse to overwrite edits made during a run

download:
  output_dir: "./downloads"
  mode: "download"                         # download | size
  chunk_size: 32768
  timeout_seconds: 60
  retry_attempts: 3                        # API listing calls only

logging:
  level: "info"                            # debug, info, warn, error
  file: ""                                 # console only when empty
  console: true
  json_format: false

metrics:
  textfile: ""                             # Prometheus textfile path; empty disables

PLACEHOLDERS:
  {topic} {rec_type} {meeting_time} {year} {month} {day} {recording_id}
  {file_extension} {file_type} {meeting_id}
  Ledger strategy only: {author} {book_title} {chapters} {language} {group_id} {book_id}

ENVIRONMENT VARIABLES:
  ZOOM_ACCOUNT_ID, ZOOM_CLIENT_ID, ZOOM_CLIENT_SECRET, ZOOM_BASE_URL,
  DOWNLOAD_OUTPUT_DIR, LEDGER_PATH

LEDGER COLUMNS:
  ID, Start_Time, Author, Book_Title, Language, Book_ID, Chapters, Group_ID,
  Action, Downloaded, Folder_Name, File_Name
`

// createTokenCommand fetches an access token and prints what it grants
func createTokenCommand() *cobra.Command {
	var requiredScopes []string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch a Zoom access token and show its expiry, scopes and claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath())
			if err != nil {
				return err
			}

			token, err := zoom.NewTokenSource(cmd.Context(), cfg.Zoom, nil).Token()
			if err != nil {
				return fmt.Errorf("failed to get access token: %w", err)
			}
			printToken(cmd, token)
			return zoom.ValidateScopes(token, requiredScopes)
		},
	}
	tokenCmd.Flags().StringSliceVar(&requiredScopes, "require-scope", nil, "fail unless the token grants this scope (repeatable)")
	return tokenCmd
}

func printToken(cmd *cobra.Command, token *oauth2.Token) {
	cmd.Printf("Token type: %s\n", token.Type())
	cmd.Printf("Expires: %s (in %s)\n", token.Expiry.Format(time.RFC3339), time.Until(token.Expiry).Round(time.Second))
	if scopes := zoom.TokenScopes(token); len(scopes) > 0 {
		cmd.Printf("Scopes: %s\n", strings.Join(scopes, " "))
	}

	claims, err := zoom.TokenClaims(token.AccessToken)
	if err != nil {
		cmd.Printf("Claims: unavailable (%v)\n", err)
		return
	}
	names := make([]string, 0, len(claims))
	for name := range claims {
		names = append(names, name)
	}
	sort.Strings(names)
	cmd.Printf("Claims:\n")
	for _, name := range names {
		cmd.Printf("  %s: %v\n", name, claims[name])
	}
}

// createLedgerCommand groups offline ledger tools
func createLedgerCommand() *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the metadata ledger",
	}

	var timezone string
	checkCmd := &cobra.Command{
		Use:   "check [path]",
		Short: "Load and validate a ledger without contacting Zoom",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, zone := "", timezone
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" || zone == "" {
				if cfg, err := config.LoadConfig(configPath()); err == nil {
					if path == "" {
						path = cfg.Ledger.Path
					}
					if zone == "" {
						zone = cfg.Ledger.Timezone
					}
				}
			}
			if path == "" {
				return fmt.Errorf("no ledger path given and none configured")
			}

			store, err := ledger.Load(path, ledger.Options{Timezone: zone})
			if err != nil {
				return err
			}
			if err := store.Check(); err != nil {
				return err
			}
			cmd.Printf("Ledger %s is valid: %d rows, columns %s\n", path, store.Len(), strings.Join(store.Columns(), ", "))
			return nil
		},
	}
	checkCmd.Flags().StringVar(&timezone, "timezone", "", "zone Start_Time values are written in (default: ledger.timezone)")

	ledgerCmd.AddCommand(checkCmd)
	return ledgerCmd
}

// runDownloads wires the configured components together and runs one pass
func runDownloads(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if err := logging.InitializeLogging(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() {
		if logger := logging.GetDefaultLogger(); logger != nil {
			logger.Close()
		}
	}()
	logger := logging.GetDefaultLogger()

	ctx = logging.WithRunID(ctx, logging.NewRunID())

	strat, closeStrategy, err := buildStrategy(cfg)
	if err != nil {
		return err
	}
	defer closeStrategy()

	start, end, err := cfg.Recordings.Range(time.Now())
	if err != nil {
		return err
	}

	ts := zoom.NewTokenSource(ctx, cfg.Zoom, nil)
	api := zoom.NewClient(zoom.NewRetryHTTPClient(zoom.HTTPClientConfigFromDownloadConfig(cfg.Download), ts), cfg.Zoom.BaseURL)

	downloadClient := oauth2.NewClient(ctx, ts)
	downloadClient.Timeout = cfg.Download.TimeoutDuration()
	fetcher := download.NewFetcher(download.Config{
		OutputDir: cfg.Download.OutputDir,
		ChunkSize: cfg.Download.ChunkSize,
		UserAgent: "zoom-recording-downloader/" + version,
	}, downloadClient)

	isSize := cfg.Download.Mode == config.ModeSize
	reporter := progress.NewReporter(progress.ProgressConfig{
		ShowProgressBar: !noProgress && !isSize,
		Writer:          cmd.OutOrStdout(),
		SizeMode:        isSize,
	}, logger)

	logging.InfoWithContext(ctx, "Starting run: %s to %s, strategy %s, output %s",
		start.Format(config.DateLayout), end.Format(config.DateLayout), strat.Kind(), cfg.Download.OutputDir)

	p := processor.NewProcessor(api, strat, fetcher, reporter, processor.Config{
		Start:      start,
		End:        end,
		WindowDays: cfg.Recordings.WindowDays,
		SizeMode:   isSize,
	})
	summary, runErr := p.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		recorder := metrics.NewRecorder()
		recorder.Observe(summary, runErr)
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logging.ErrorWithContext(ctx, "%v", err)
		}
	}

	if errors.Is(runErr, context.Canceled) {
		cmd.Printf("Interrupted; progress so far has been saved\n")
		return nil
	}
	return runErr
}

// buildStrategy compiles the filters and templates and, for the ledger
// strategy, loads the ledger. The returned func releases the ledger watcher.
func buildStrategy(cfg *config.Config) (strategy.Strategy, func(), error) {
	noop := func() {}

	kind, err := strategy.ParseKind(cfg.Naming.Strategy)
	if err != nil {
		return nil, noop, err
	}
	withLedger := kind == strategy.KindLedger
	for _, template := range []string{cfg.Naming.Folder, cfg.Naming.Filename} {
		if err := naming.ValidateTemplate(template, withLedger); err != nil {
			return nil, noop, err
		}
	}

	filters, err := filter.NewSet(filter.Patterns{
		EmailsToInclude: cfg.Filter.EmailsToInclude,
		EmailsToExclude: cfg.Filter.EmailsToExclude,
		TopicsToInclude: cfg.Filter.TopicsToInclude,
		TopicsToExclude: cfg.Filter.TopicsToExclude,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("invalid filter pattern: %w", err)
	}

	location, err := time.LoadLocation(cfg.Naming.Timezone)
	if err != nil {
		return nil, noop, fmt.Errorf("naming.timezone: %w", err)
	}
	renderer, err := naming.NewRenderer(naming.Options{
		Location:       location,
		Strftime:       cfg.Naming.Strftime,
		FilenameFormat: cfg.Naming.Filename,
		FolderFormat:   cfg.Naming.Folder,
		ReplaceOld:     cfg.Naming.ReplaceOld,
		ReplaceNew:     cfg.Naming.ReplaceNew,
	})
	if err != nil {
		return nil, noop, err
	}

	if !withLedger {
		return strategy.NewDefault(filters, renderer), noop, nil
	}

	store, err := ledger.Load(cfg.Ledger.Path, ledger.Options{Timezone: cfg.Ledger.Timezone, Watch: cfg.Ledger.Watch})
	if err != nil {
		return nil, noop, err
	}
	return strategy.NewLedger(filters, renderer, store), func() { _ = store.Close() }, nil
}

func main() {
	rootCmd := createRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
