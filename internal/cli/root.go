// Package cli implements threatctl, the terminal front end of the analyzer.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bryanwahyu/threat-analyzer/internal/app"
	"github.com/bryanwahyu/threat-analyzer/internal/config"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/logging"
	"github.com/bryanwahyu/threat-analyzer/internal/view"
)

var errLoginRequired = errors.New("login required: run `threatctl login` first")

// Opener builds the services from a loaded configuration.
type Opener func(ctx context.Context, cfg *config.Config) (*app.App, error)

// env is the state shared by every command of one invocation.
type env struct {
	version string
	open    Opener
	v       *viper.Viper

	cfg *config.Config
	app *app.App
}

// load builds the services on first use.
func (e *env) load(ctx context.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	a, err := e.open(ctx, e.cfg)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

// loadIdentified is load for commands that read or change the cached analyses.
func (e *env) loadIdentified(ctx context.Context) (*app.App, error) {
	a, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	if !a.Session.Current().Valid() {
		return nil, errLoginRequired
	}
	return a, nil
}

func (e *env) close() {
	if e.app == nil {
		return
	}
	if err := e.app.Close(); err != nil {
		slog.Warn("could not close storage", "err", err)
	}
	e.app = nil
}

// NewRootCommand returns threatctl with every subcommand attached.
func NewRootCommand(version string, open Opener) *cobra.Command {
	cmd, _ := newRoot(version, open)
	return cmd
}

func newRoot(version string, open Opener) (*cobra.Command, *env) {
	if open == nil {
		open = app.New
	}
	e := &env{version: version, open: open, v: viper.New()}

	root := &cobra.Command{
		Use:           "threatctl",
		Short:         "Submit architectures for threat analysis and browse the results",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `threatctl talks to the threat analyzer backend.

Analyses are cached locally per identity; configuration comes from
config.yaml, .env, THREAT_* environment variables and flags.`,
		Example: `  # Log in, then analyze an OpenAPI description
  threatctl login --email alice@example.com
  threatctl analyze -p "Shop API" -t "API REST" -d "Go + MySQL" -f openapi.yaml

  # Browse the cached results
  threatctl reports show "Shop API"
  threatctl threat "Shop API" "SQL Injection"`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.initialize(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "config.yaml", "Path to the configuration file")
	flags.StringP("log-level", "l", "", "Log level: debug, info, warn, error")
	flags.BoolP("verbose", "v", false, "Shorthand for --log-level=debug")
	flags.String("backend-url", "", "Backend base URL")
	flags.String("storage-driver", "", "Storage driver: memory, file, keyring, mysql, postgres, minio")
	flags.String("storage-dir", "", "Directory of the file storage driver")
	flags.StringP("output", "o", "table", "Output format: table or json")

	root.AddCommand(
		newLoginCommand(e),
		newRegisterCommand(e),
		newLogoutCommand(e),
		newWhoamiCommand(e),
		newAnalyzeCommand(e),
		newReportsCommand(e),
		newThreatCommand(e),
		newMetricsCommand(e),
		newPathsCommand(e),
		newPDFCommand(e),
		newDeleteCommand(e),
		newClearCommand(e),
		newStatusCommand(e),
		newServeCommand(e),
		newVersionCommand(e),
	)
	return root, e
}

// initialize loads the configuration, applies flag and environment overrides
// and installs the logger.
func (e *env) initialize(cmd *cobra.Command) error {
	e.v.SetEnvPrefix("THREAT")
	e.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	e.v.AutomaticEnv()
	bindFlags(e.v, cmd)

	cfg, err := config.Load(e.v.GetString("config"))
	if err != nil {
		return err
	}
	if v := e.v.GetString("backend-url"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := e.v.GetString("storage-driver"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := e.v.GetString("storage-dir"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := e.v.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if e.v.GetBool("verbose") {
		cfg.Log.Level = "debug"
	}
	e.cfg = cfg

	logging.Init(cfg.Log.Level, cfg.Log.Color)
	slog.Debug("configuration loaded", "backend", cfg.Backend.BaseURL, "storage", cfg.Storage.Driver)
	return nil
}

// bindFlags binds each cobra flag to its viper key so the config file and
// THREAT_* variables fill flags the user did not set.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && v.IsSet(f.Name) {
			cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))) // nolint: errcheck
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			slog.Error("could not bind flag to viper", "flag", f.Name, "err", err)
		}
	})
}

func (e *env) jsonOutput() bool {
	return e.v.GetString("output") == "json"
}

// userMessage is the line printed for a failed command.
func userMessage(err error) string {
	var (
		verr *domain.ValidationError
		berr *domain.BackendError
	)
	if errors.As(err, &verr) || errors.As(err, &berr) ||
		errors.Is(err, domain.ErrUnreachable) || errors.Is(err, domain.ErrNotFound) {
		return domain.Message(err)
	}
	return err.Error()
}

func run(ctx context.Context, root *cobra.Command, e *env, stderr io.Writer) int {
	err := root.ExecuteContext(ctx)
	e.close()
	if err != nil {
		view.Banner(stderr, userMessage(err))
		return 1
	}
	return 0
}

// Execute runs threatctl with os.Args and returns the exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, e := newRoot(version, nil)
	return run(ctx, root, e, os.Stderr)
}
