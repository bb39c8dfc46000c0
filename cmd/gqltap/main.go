package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/gqltap/internal/config"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "gqltap",
	Short: "Live GraphQL-aware network inspector",
	Long: `GQLTap receives finished-request events from a devtools extension or a HAR file,
classifies GraphQL traffic, tracks latency and renders a live table with running statistics.
`,
	SilenceUsage: true,
	RunE:         runServer,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file.har>",
	Short: "Replay a HAR file through the inspector",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   showVersion,
}

func init() {
	addFlags(rootCmd)
	bindFlags(rootCmd)

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(versionCmd)
}

func addFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.IntP("port", "p", 0, "Listen port")
	flags.StringP("log-level", "l", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
	flags.Bool("log-file-enable", false, "Enable file logging")
	flags.String("log-file-path", "", "Log file path")
	flags.StringP("mode", "m", "", "Output mode (console, json)")
	flags.Bool("silence", false, "Suppress row and status output")
	flags.String("locale", "", "Presentation locale (en, zh-CN)")
	flags.Bool("preserve-log", false, "Keep rows and totals across page navigations")
	flags.StringSlice("ignore-url", []string{}, "Drop requests whose URL contains this text")
	flags.StringSlice("filter", []string{}, "Initial filters (all, graphql, token, access, other)")
	flags.String("storage", "", "Row storage driver (memory, sqlite)")
	flags.String("storage-path", "", "SQLite session database path")
	flags.Bool("web-enable", false, "Enable/disable the HTTP API")
	flags.String("web-admin-path", "", "HTTP API path prefix")
	flags.Bool("metrics-enable", false, "Enable/disable the prometheus endpoint")
	flags.String("metrics-path", "", "Prometheus endpoint path")
}

func bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	viper.BindPFlag("server.port", flags.Lookup("port"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.file_logging.enable", flags.Lookup("log-file-enable"))
	viper.BindPFlag("log.file_logging.path", flags.Lookup("log-file-path"))
	viper.BindPFlag("output.mode", flags.Lookup("mode"))
	viper.BindPFlag("output.silence", flags.Lookup("silence"))
	viper.BindPFlag("output.locale", flags.Lookup("locale"))
	viper.BindPFlag("session.preserve_log", flags.Lookup("preserve-log"))
	viper.BindPFlag("storage.driver", flags.Lookup("storage"))
	viper.BindPFlag("storage.path", flags.Lookup("storage-path"))
	viper.BindPFlag("web.enable", flags.Lookup("web-enable"))
	viper.BindPFlag("web.admin_path", flags.Lookup("web-admin-path"))
	viper.BindPFlag("metrics.enable", flags.Lookup("metrics-enable"))
	viper.BindPFlag("metrics.path", flags.Lookup("metrics-path"))
}

// loadConfig reads the configuration and applies command line overrides,
// which have the highest priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath, viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if port, err := flags.GetInt("port"); err == nil && port != 0 {
		cfg.Server.Port = port
	}
	if level, err := flags.GetString("log-level"); err == nil && level != "" {
		cfg.Log.Level = level
	}
	if enable, err := flags.GetBool("log-file-enable"); err == nil && flags.Changed("log-file-enable") {
		cfg.Log.FileLogging.Enable = enable
	}
	if path, err := flags.GetString("log-file-path"); err == nil && path != "" {
		cfg.Log.FileLogging.Path = path
	}
	if mode, err := flags.GetString("mode"); err == nil && mode != "" {
		cfg.Output.Mode = strings.ToLower(mode)
	}
	if silence, err := flags.GetBool("silence"); err == nil && flags.Changed("silence") {
		cfg.Output.Silence = silence
	}
	if locale, err := flags.GetString("locale"); err == nil && locale != "" {
		cfg.Output.Locale = locale
	}
	if preserve, err := flags.GetBool("preserve-log"); err == nil && flags.Changed("preserve-log") {
		cfg.Session.PreserveLog = preserve
	}
	if urls, err := flags.GetStringSlice("ignore-url"); err == nil && len(urls) > 0 {
		cfg.Session.IgnoreURLContains = urls
	}
	if filters, err := flags.GetStringSlice("filter"); err == nil && len(filters) > 0 {
		cfg.Session.Filters = filters
	}
	if driver, err := flags.GetString("storage"); err == nil && driver != "" {
		cfg.Storage.Driver = driver
	}
	if path, err := flags.GetString("storage-path"); err == nil && path != "" {
		cfg.Storage.Path = path
	}
	if enable, err := flags.GetBool("web-enable"); err == nil && flags.Changed("web-enable") {
		cfg.Web.Enable = enable
	}
	if path, err := flags.GetString("web-admin-path"); err == nil && path != "" {
		cfg.Web.AdminPath = path
	}
	if enable, err := flags.GetBool("metrics-enable"); err == nil && flags.Changed("metrics-enable") {
		cfg.Metrics.Enable = enable
	}
	if path, err := flags.GetString("metrics-path"); err == nil && path != "" {
		cfg.Metrics.Path = path
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)
	if cfg.Output.Mode != "json" {
		printStartupBanner(cfg)
	}
	log.Info("GQLTap starting",
		"version", version,
		"port", cfg.Server.Port,
		"log_level", cfg.Log.Level,
		"storage", cfg.Storage.Driver,
		"preserve_log", cfg.Session.PreserveLog,
		"web_enable", cfg.Web.Enable,
		"web_admin_path", cfg.Web.AdminPath,
		"metrics_enable", cfg.Metrics.Enable,
	)

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}
	return srv.Start()
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Web.Enable = false
	cfg.Metrics.Enable = false

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)
	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, replayErr := srv.Replay(ctx, f)
	if err := srv.Stop(); err != nil && replayErr == nil {
		replayErr = err
	}
	if replayErr != nil {
		return fmt.Errorf("replay %s: %w", args[0], replayErr)
	}

	if cfg.Output.Mode != "json" && !cfg.Output.Silence {
		labels := srv.Labels()
		fmt.Printf("%s: %d/%d %s\n", labels.Text("replay.summary"), summary.Accepted, summary.Entries, labels.Text("replay.entries"))
	}
	return nil
}

func showVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("GQLTap version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", buildDate)
}

func printStartupBanner(cfg *config.Config) {
	titleLine := fmt.Sprintf("GQLTap v%s", version)
	subtitleLine := "GraphQL Network Inspector"

	var lines []string
	lines = append(lines, fmt.Sprintf("Listening on:   http://0.0.0.0:%d", cfg.Server.Port))
	lines = append(lines, fmt.Sprintf("Log Level:      %s", cfg.Log.Level))
	lines = append(lines, fmt.Sprintf("Storage:        %s", cfg.Storage.Driver))
	preserve := "Off"
	if cfg.Session.PreserveLog {
		preserve = "On"
	}
	lines = append(lines, fmt.Sprintf("Preserve Log:   %s", preserve))
	if len(cfg.Session.IgnoreMethods) > 0 {
		lines = append(lines, fmt.Sprintf("Ignore Methods: %s", strings.Join(cfg.Session.IgnoreMethods, ", ")))
	}
	for _, u := range cfg.Session.IgnoreURLContains {
		lines = append(lines, fmt.Sprintf("Ignore URL:     %s", u))
	}

	lines = append(lines, "")
	if cfg.Web.Enable {
		lines = append(lines, "HTTP API:       Enabled")
		lines = append(lines, fmt.Sprintf("   └─ Events:   POST %s/events", strings.TrimRight(cfg.Web.AdminPath, "/")))
		lines = append(lines, fmt.Sprintf("   └─ Live:     %s/ws", strings.TrimRight(cfg.Web.AdminPath, "/")))
		exportStatus := "Disabled"
		if cfg.Web.Export.Enable {
			exportStatus = strings.Join(cfg.Web.Export.Formats, ", ")
		}
		lines = append(lines, fmt.Sprintf("   └─ Export:   %s", exportStatus))
	} else {
		lines = append(lines, "HTTP API:       Disabled")
	}
	if cfg.Metrics.Enable {
		lines = append(lines, fmt.Sprintf("Metrics:        %s", cfg.Metrics.Path))
	} else {
		lines = append(lines, "Metrics:        Disabled")
	}

	if cfg.Log.FileLogging.Enable {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("File Logging:   %s (%dMB, %d backups, %d days)",
			cfg.Log.FileLogging.Path,
			cfg.Log.FileLogging.MaxSizeMB,
			cfg.Log.FileLogging.MaxBackups,
			cfg.Log.FileLogging.MaxAgeDays))
	}

	lines = append(lines, "", "(Press Ctrl+C to stop)")

	maxLength := runewidth.StringWidth(titleLine)
	for _, line := range append(lines, subtitleLine) {
		if w := runewidth.StringWidth(line); w > maxLength {
			maxLength = w
		}
	}
	boxWidth := maxLength + 4
	if boxWidth < 50 {
		boxWidth = 50
	}

	fmt.Println()
	printBoxBorder("┌", "┐", boxWidth)
	printBoxContent(titleLine, boxWidth, true)
	printBoxContent(subtitleLine, boxWidth, true)
	printBoxBorder("├", "┤", boxWidth)
	for _, line := range lines {
		printBoxContent(line, boxWidth, false)
	}
	printBoxBorder("└", "┘", boxWidth)
	fmt.Println()
}

func printBoxBorder(left, right string, width int) {
	fmt.Printf("%s%s%s\n", left, strings.Repeat("─", width-2), right)
}

// printBoxContent prints one line padded to the box width.
func printBoxContent(content string, boxWidth int, center bool) {
	padding := boxWidth - 2 - runewidth.StringWidth(content)
	if padding < 0 {
		padding = 0
	}

	var leftPad, rightPad string
	if center {
		leftPad = strings.Repeat(" ", padding/2)
		rightPad = strings.Repeat(" ", padding-padding/2)
	} else {
		leftPad = "  "
		rightPad = strings.Repeat(" ", max(padding-2, 0))
	}

	fmt.Printf("│%s%s%s│\n", leftPad, content, rightPad)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
