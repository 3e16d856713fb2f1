// Package cli provides the agentfsm command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	agentfsm "github.com/felixgeelhaar/agent-fsm"
	domainconfig "github.com/felixgeelhaar/agent-fsm/domain/config"
	infraconfig "github.com/felixgeelhaar/agent-fsm/infrastructure/config"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/telemetry"
)

// Build information set at link time.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// errConfigRequired is returned by commands that need -c.
var errConfigRequired = errors.New("configuration file path is required (-c flag)")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	strict     bool
	logLevel   string
}

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	opts   globalOptions
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	tracing *telemetry.Provider
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "agentfsm",
		Short: "Finite-state conversational agents driven by a language model",
		Long: `agentfsm runs conversational agents that advance one turn at a time:
execute the pending actions, pick the next state of a declared machine,
pick the next tools, and persist the new step.

Decisions are grounded by stored feedback exemplars retrieved by similarity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadEnv()
		},
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&app.opts.envFile, "env-file", ".env", "Dotenv file loaded before the configuration")
	flags.BoolVar(&app.opts.strict, "strict", false, "Fail on undefined environment variables")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "Override the configured log level")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newSchemaCmd(),
		app.newInspectCmd(),
		app.newChatCmd(),
		app.newFeedbackCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets the reader chat reads user replies from.
func (a *App) WithInput(stdin io.Reader) *App {
	a.stdin = stdin
	a.root.SetIn(stdin)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadEnv reads the dotenv file. Variables already set in the environment
// win, and a missing default file is not an error.
func (a *App) loadEnv() error {
	if a.opts.envFile == "" {
		return nil
	}
	err := godotenv.Load(a.opts.envFile)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !a.root.PersistentFlags().Changed("env-file") {
		return nil
	}
	return fmt.Errorf("load %s: %w", a.opts.envFile, err)
}

// loadConfig reads and validates the file named by -c and initialises the
// logger from it.
func (a *App) loadConfig() (*domainconfig.AgentConfig, error) {
	if a.opts.configPath == "" {
		return nil, errConfigRequired
	}
	loader := infraconfig.NewLoaderWithOptions(infraconfig.WithStrictEnv(a.opts.strict))
	cfg, err := loader.LoadFile(a.opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg := infraconfig.LoggingConfig(cfg)
	logCfg.Output = a.stderr
	if a.opts.logLevel != "" {
		logCfg.Level = a.opts.logLevel
	}
	logging.Configure(logCfg)
	return cfg, nil
}

// build loads the configuration, starts trace export and assembles the
// agent. The caller releases the result.
func (a *App) build(ctx context.Context, opts ...infraconfig.BuilderOption) (*domainconfig.AgentConfig, *infraconfig.BuildResult, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.ProviderConfig{
		ServiceName:    cfg.Name,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		Output:         a.stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start telemetry: %w", err)
	}
	if tracing.Enabled() {
		opts = append(opts, infraconfig.WithMetrics(telemetry.NewMetricsProvider(telemetry.DefaultMetricsConfig())))
	}

	result, err := infraconfig.NewBuilder(cfg, opts...).Build(ctx)
	if err != nil {
		_ = tracing.Shutdown(ctx)
		return nil, nil, err
	}
	a.tracing = tracing
	return cfg, result, nil
}

// release closes a build result, flushes spans and logs failures.
func (a *App) release(r *infraconfig.BuildResult) {
	if err := r.Close(); err != nil {
		logging.Warn().Add(logging.ErrorField(err)).Msg("failed to close storage")
	}
	if a.tracing == nil {
		return
	}
	if err := a.tracing.Shutdown(context.Background()); err != nil {
		logging.Warn().Add(logging.ErrorField(err)).Msg("failed to flush spans")
	}
	a.tracing = nil
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(a.stdout, "agentfsm version %s\n", agentfsm.Version)
			_, _ = fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			_, _ = fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
