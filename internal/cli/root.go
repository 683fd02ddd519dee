package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/reentry/internal/engine"
)

// RootOptions holds global flags for all commands.
//
// Values are resolved by viper in PersistentPreRunE, flag over
// REENTRY_* environment over config file over default.
type RootOptions struct {
	Verbose      bool
	Format       string // "json" | "text"
	Config       string // optional config file path
	NoColor      bool
	MaxDepth     int
	BackupBudget int // 0 means unbounded heap allocation
	Database     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// configKeys maps viper keys to the flag names bound to them.
var configKeys = map[string]string{
	"verbose":       "verbose",
	"format":        "format",
	"no_color":      "no-color",
	"max_depth":     "max-depth",
	"backup_budget": "backup-budget",
	"db":            "db",
}

// NewRootCommand creates the root command for the reentry CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "reentry",
		Short: "reentry - a reentrant routine dispatcher",
		Long: `A reentrant dispatcher for script routines.

Host events name a routine and up to two parameters. Each event is admitted
or dropped, nested invocations save and restore the interpreter's global
state and the routine's own variables, and every outcome can be journaled
to SQLite for later inspection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd.Flags()); err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.MaxDepth < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid max depth %d: must be at least 1", opts.MaxDepth))
			}
			if opts.BackupBudget < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid backup budget %d", opts.BackupBudget))
			}
			configureLogging(cmd, opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored text output")
	cmd.PersistentFlags().IntVar(&opts.MaxDepth, "max-depth", engine.DefaultMaxDepth, "nesting ceiling for routine invocations")
	cmd.PersistentFlags().IntVar(&opts.BackupBudget, "backup-budget", 0, "variable backup slot budget (0 = unbounded)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the config file and environment through viper and writes
// the effective values back into opts. flags is the executing command's
// merged flag set, so local flags such as --db bind too.
func (opts *RootOptions) resolve(flags *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix("REENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, name := range configKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if opts.Config != "" {
		v.SetConfigFile(opts.Config)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", opts.Config, err)
		}
	}

	opts.Verbose = v.GetBool("verbose")
	opts.NoColor = v.GetBool("no_color")
	if s := v.GetString("format"); s != "" {
		opts.Format = s
	}
	opts.MaxDepth = v.GetInt("max_depth")
	opts.BackupBudget = v.GetInt("backup_budget")
	if flags.Lookup("db") != nil {
		opts.Database = v.GetString("db")
	}
	return nil
}

// engineOptions translates the resolved settings into dispatcher options.
func (opts *RootOptions) engineOptions() []engine.Option {
	var out []engine.Option
	if opts.MaxDepth > 0 {
		out = append(out, engine.WithMaxDepth(opts.MaxDepth))
	}
	if opts.BackupBudget > 0 {
		out = append(out, engine.WithAllocator(engine.NewBudgetAllocator(opts.BackupBudget)))
	}
	return out
}

// configureLogging installs the default slog handler on stderr. Verbose
// mode lowers the level to Debug, which includes dropped events.
func configureLogging(cmd *cobra.Command, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
