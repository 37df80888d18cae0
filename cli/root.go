package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-agent/adapter"
	"github.com/nixxel-company-limited/escpos-print-agent/config"
	"github.com/nixxel-company-limited/escpos-print-agent/logging"
	"github.com/nixxel-company-limited/escpos-print-agent/spooler"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
}

// hostFactory builds the print host selected by the configuration. Tests
// replace it with a fake.
var hostFactory = newHost

// NewRootCommand creates the root command of the agent. Without a
// subcommand it runs serve.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "escpos-agent",
		Short: "ESC/POS print agent",
		Long: `Local print agent for ESC/POS receipt printers.

Accepts tickets, barcode labels and raw streams over HTTP and raw TCP,
encodes them as ESC/POS and hands them to the system print spooler.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default: agent.yaml in ., $HOME/.escpos-agent, /etc/escpos-agent)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level (debug|info|warn|error)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDevicesCommand(opts))
	cmd.AddCommand(NewPrintCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// loadConfig reads the configuration and applies flag overrides
func (o *RootOptions) loadConfig() (*config.Config, error) {
	v := config.New()
	if o.LogLevel != "" {
		v.Set("log.level", strings.ToLower(o.LogLevel))
	}
	return config.Load(v, o.ConfigFile)
}

// newLogger builds the logger of a command. One-shot commands keep stdout
// for their own output, so stdout logging moves to stderr.
func newLogger(cfg *config.Config, oneShot bool) (*zap.Logger, error) {
	logCfg := cfg.Log.Logging()
	if oneShot && (logCfg.Output == "" || strings.EqualFold(logCfg.Output, "stdout")) {
		logCfg.Output = "stderr"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// newHost builds the host for the configured backend. The returned func
// releases host resources.
func newHost(cfg *config.Config, logger *zap.Logger) (adapter.Host, func() error, error) {
	nop := func() error { return nil }
	logger = logger.Named("host")

	switch cfg.Printer.Backend {
	case config.BackendCUPS:
		return adapter.NewCUPSHost(adapter.ExecRunner, logger), nop, nil
	case config.BackendUSB:
		host := adapter.NewUSBHost(logger)
		return host, host.Close, nil
	case config.BackendTCP:
		return adapter.NewTCPHost(cfg.Printer.TCPDevices, cfg.Printer.DialTimeout, logger), nop, nil
	default:
		return nil, nil, fmt.Errorf("unknown printer backend %q", cfg.Printer.Backend)
	}
}

// newSession creates a spooler session configured from cfg
func newSession(host adapter.Host, cfg *config.Config, logger *zap.Logger) *spooler.Session {
	return spooler.New(host,
		spooler.WithLogger(logger.Named("session")),
		spooler.WithDevice(cfg.Printer.Name),
		spooler.WithDocumentName(cfg.Printer.DocumentName),
		spooler.WithLazyOpen(cfg.Printer.LazyOpen),
	)
}

// env bundles what a command needs to talk to the printer
type env struct {
	cfg       *config.Config
	logger    *zap.Logger
	session   *spooler.Session
	closeHost func() error
}

// setup loads config, logger, host and session. The caller must call
// teardown.
func (o *RootOptions) setup(oneShot bool) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg, oneShot)
	if err != nil {
		return nil, err
	}

	host, closeHost, err := hostFactory(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	return &env{
		cfg:       cfg,
		logger:    logger,
		session:   newSession(host, cfg, logger),
		closeHost: closeHost,
	}, nil
}

func (e *env) teardown() {
	e.session.Close()
	if err := e.closeHost(); err != nil {
		e.logger.Warn("Failed to release print host", zap.Error(err))
	}
	_ = e.logger.Sync()
}
