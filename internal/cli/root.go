// Package cli is the lotline command line: the API server, the Temporal
// worker and operator tools over the same wiring.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/lotline-backend/internal/app"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogMode string
	Policy  string
	Addr    string
	EnvFile string
	Format  string
	NoColor bool

	v *viper.Viper
	// openApp builds the wiring; tests swap it.
	openApp func(ctx context.Context) (*app.App, error)
}

var ValidFormats = []string{"text", "json"}

// envExports maps resolved settings onto the variables app.LoadConfig reads.
var envExports = map[string]string{
	"log-mode": "LOG_MODE",
	"policy":   "COMPLIANCE_POLICY_PATH",
	"addr":     "HTTP_ADDR",
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(app.New)
}

func newRootCommand(openApp func(ctx context.Context) (*app.App, error)) *cobra.Command {
	opts := &RootOptions{v: viper.New(), openApp: openApp}

	cmd := &cobra.Command{
		Use:   "lotline",
		Short: "Production execution and lot traceability",
		Long: `lotline tracks versioned production flows, runs, lots and their genealogy,
buffers and inventory, with an append-only audit log.

Settings come from flags, LOTLINE_* environment variables and the plain
environment variables documented for the server (DB_DRIVER, REDIS_ADDR, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.NoColor {
				color.NoColor = true
			}
			if err := loadEnvFile(opts.EnvFile); err != nil {
				return err
			}
			return opts.exportEnv()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.LogMode, "log-mode", "", "logger mode (development|production|test)")
	pf.StringVar(&opts.Policy, "policy", "", "compliance policy YAML file")
	pf.StringVar(&opts.Addr, "addr", "", "HTTP listen address")
	pf.StringVar(&opts.EnvFile, "env-file", "", "dotenv file to load (default: .env when present)")
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	opts.v.SetEnvPrefix("LOTLINE")
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()
	for key := range envExports {
		_ = opts.v.BindPFlag(key, pf.Lookup(key))
	}

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	return cmd
}

// exportEnv pushes flag and LOTLINE_* values into the process environment.
// Unset settings leave any existing variable alone.
func (o *RootOptions) exportEnv() error {
	for key, env := range envExports {
		val := strings.TrimSpace(o.v.GetString(key))
		if val == "" {
			continue
		}
		if err := os.Setenv(env, val); err != nil {
			return WrapExitError(ExitCommandError, "export "+env, err)
		}
	}
	return nil
}

// loadEnvFile fills unset variables from a dotenv file. Without an explicit
// path a missing ./.env is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return WrapExitError(ExitCommandError, "load .env", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return WrapExitError(ExitCommandError, "load "+path, err)
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(cmd.ErrOrStderr(), err.Error())
		return GetExitCode(err)
	}
	return ExitSuccess
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withApp opens the wiring, runs fn and closes it.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.openApp(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer a.Close()
	return fn(ctx, a)
}
