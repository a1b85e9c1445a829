package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/extdiff/internal/config"
	"github.com/born-ml/extdiff/internal/host"
)

// app is the state shared by every subcommand.
type app struct {
	configPath string
	hostKind   string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "extdiff",
		Short:         "Differentiable external calls into a foreign numeric runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.hostKind, "host", "", "host kind: local, r or auto (overrides the config file)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newCheckCmd(a),
		newEvalCmd(a),
		newDeclareCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(stderr io.Writer) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	a.cfg = config.Default()
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.hostKind != "" {
		a.cfg.Host.Kind = a.hostKind
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}
	a.logger.Debug("configuration loaded", "path", a.configPath, "host", a.cfg.Host.Kind)
	return nil
}

// withSession opens the configured host for the duration of fn.
func (a *app) withSession(ctx context.Context, fn func(s *host.Session) error) error {
	s, err := host.Open(ctx, a.cfg.Host, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			a.logger.Warn("closing host", "host", s.HostName(), "error", cerr)
		}
	}()
	a.logger.Debug("host opened", "host", s.HostName())
	return fn(s)
}
