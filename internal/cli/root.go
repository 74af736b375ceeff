// Package cli implements the devotional command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devotional/config"
	"devotional/internal/core"
	"devotional/internal/logging"
	"devotional/internal/providers"
	"devotional/internal/providers/groq"
	"devotional/internal/providers/ollama"
	"devotional/internal/version"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
	ExitOffline      = 5
)

// exitError carries the exit code for a failure that happened after the
// command line was parsed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// fail classifies err into an exit code.
func fail(err error) error {
	if err == nil {
		return nil
	}
	var fetchErr *core.FetchError
	switch {
	case errors.Is(err, config.ErrMissingAPIKey):
		return &exitError{code: ExitAuthError, err: err}
	case errors.As(err, &fetchErr) && fetchErr.Type == core.ErrorTypeAuthentication:
		return &exitError{code: ExitAuthError, err: err}
	case errors.As(err, &fetchErr) && fetchErr.Type == core.ErrorTypeOfflineNoCache:
		return &exitError{code: ExitOffline, err: err}
	default:
		return &exitError{code: ExitRuntimeError, err: err}
	}
}

// DefaultFactory returns a factory with every built-in generator registered.
func DefaultFactory() *providers.ProviderFactory {
	f := providers.NewProviderFactory()
	f.Add(groq.Registration)
	f.Add(ollama.Registration)
	return f
}

// options is shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	factory    *providers.ProviderFactory
	cfg        *config.Config
}

// NewRootCmd builds the command tree. factory supplies the generators.
func NewRootCmd(factory *providers.ProviderFactory) *cobra.Command {
	opts := &options{factory: factory}

	root := &cobra.Command{
		Use:           "devotional",
		Short:         "Daily devotionals for random Bible verses",
		Long:          "devotional draws a random verse, generates a devotional for it and keeps it in a seven-day cache that still serves when offline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return opts.load()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default: $DEVOTIONAL_CONFIG, ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newRandomCmd(opts))
	root.AddCommand(newFetchCmd(opts))
	root.AddCommand(newCacheCmd(opts))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	})
	return root
}

func (o *options) load() error {
	if o.configPath != "" {
		if err := os.Setenv("DEVOTIONAL_CONFIG", o.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return &exitError{code: ExitUsageError, err: fmt.Errorf("failed to load config: %w", err)}
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := logging.Setup(os.Stderr, cfg.Logging.Format, cfg.Logging.Level); err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}
	o.cfg = cfg
	return nil
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	root := NewRootCmd(DefaultFactory())
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(os.Stderr, "error:", err)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitUsageError
}
