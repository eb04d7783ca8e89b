package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/recordkeeper/internal/core/config"
	"github.com/solatis/recordkeeper/internal/engine"
	"github.com/solatis/recordkeeper/internal/rules"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
	nameKey    string

	v      = config.New()
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "recordkeeper",
	Short: "RecordKeeper declarative record transformation engine",
	Long: `RecordKeeper applies ordered selectors and per-record overrides to a
collection of property trees, reporting conflicts and type mismatches
instead of failing.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.StringVar(&dbURL, "db-url", "", "history database URL (sqlite://path or postgres://...)")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "log format (json, text)")
	flags.StringVar(&nameKey, "name-key", "", "root key holding record display names")

	_ = v.BindPFlag("history.db_url", flags.Lookup("db-url"))
	_ = v.BindPFlag("engine.name_key", flags.Lookup("name-key"))
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and builds the logger before any subcommand.
func setup(cmd *cobra.Command, args []string) error {
	l, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
	if err != nil {
		return err
	}
	logger = l

	c, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = c
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (expected json or text)", format)
	}
}

// resolver builds the path resolver from the loaded engine config.
func resolver(c config.EngineConfig) rules.Resolver {
	return rules.Resolver{
		Separator:     c.Separator,
		RootMarker:    c.RootMarker,
		PropertiesKey: c.PropertiesKey,
		MaxDepth:      c.MaxPathDepth,
	}
}

func newEngine(c *config.Config, l *slog.Logger) *engine.Engine {
	return engine.New(
		engine.WithResolver(resolver(c.Engine)),
		engine.WithLogger(l),
		engine.WithNameKey(c.Engine.NameKey),
		engine.WithAffectedAnalysis(c.Engine.AffectedAnalysis),
	)
}
