package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/KaramelBytes/tabula-cli/internal/config"
	"github.com/KaramelBytes/tabula-cli/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// HTTP flag (overrides config if set)
	flagHTTPTimeoutSec int

	// Loaded configuration
	cfg *cfgpkg.Global
	// Shared logger, configured before every command
	log = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "tabula",
	Short: "tabula: train and inspect small classifiers on tabular data",
	Long: `tabula loads a CSV/TSV/XLSX dataset (local or URL), infers a schema,
encodes the selected columns into numeric features, trains a small
feed-forward classifier and reports accuracy, a confusion matrix and
single-row predictions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadConfig(cmd)
		return setupLogging()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tabula/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP timeout in seconds for URL datasets (overrides config)")
}

// loadConfig runs before every command so a changed HOME or --config is
// always picked up.
func loadConfig(cmd *cobra.Command) {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = &cfgpkg.Global{}
	}
	cfg = c

	// Apply CLI overrides if provided
	f := cmd.Root().PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
}

func setupLogging() error {
	level, format := "info", "text"
	if cfg != nil {
		if cfg.LogLevel != "" {
			level = cfg.LogLevel
		}
		if cfg.LogFormat != "" {
			format = cfg.LogFormat
		}
	}
	if debug {
		level = "debug"
	}
	l, err := logging.New(logging.Options{Level: level, Format: format})
	if err != nil {
		return err
	}
	log = l
	log.WithFields(logrus.Fields{"config": cfgFile, "level": level}).Debug("logger ready")
	return nil
}
