package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctagard/twx-dap/internal/config"
	"github.com/ctagard/twx-dap/internal/dap"
	"github.com/ctagard/twx-dap/internal/logging"
	"github.com/ctagard/twx-dap/internal/mcp"
	"github.com/ctagard/twx-dap/internal/version"
)

// globalFlags are shared by every command that runs the adapter
type globalFlags struct {
	configPath string
	logLevel   string
}

// serveFlags override configuration values for the serve command
type serveFlags struct {
	listen             string
	onChannelLoss      string
	pathStyle          string
	insecureSkipVerify bool
}

func newRootCmd() *cobra.Command {
	var global globalFlags
	var cmd = &cobra.Command{
		Use:   "twx-dap",
		Short: "Debug adapter for ThingWorx service scripts",
		Long: "twx-dap connects a Debug Adapter Protocol frontend such as VS Code to the\n" +
			"BMDebugServer extension of a ThingWorx server.  Without a subcommand it\n" +
			"runs in the mode named by the configuration file (dap by default).",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(global, nil)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Mode == config.ModeMCP {
				return runMCP(cfg, logger)
			}
			return runDAP(cmd, cfg, logger)
		},
	}

	cmd.PersistentFlags().StringVarP(
		&global.configPath, "config", "c", "",
		"Path to a JSON or YAML configuration file")
	cmd.PersistentFlags().StringVar(
		&global.logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides the configuration)")

	cmd.AddCommand(newServeCmd(&global))
	cmd.AddCommand(newMCPCmd(&global))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newServeCmd(global *globalFlags) *cobra.Command {
	var flags serveFlags
	var cmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the Debug Adapter Protocol",
		Long: "Serve speaks DAP on stdin/stdout, the way editors launch debug adapters.\n" +
			"With --listen it accepts frontends on a TCP address instead, one debug\n" +
			"session per connection.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*global, &flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runDAP(cmd, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(
		&flags.listen, "listen", "l", "",
		"TCP address to accept frontends on, e.g. 127.0.0.1:4711 (default: stdio)")
	cmd.Flags().StringVar(
		&flags.onChannelLoss, "on-channel-loss", "",
		"What to do when the debugger socket drops: ignore or terminate")
	cmd.Flags().StringVar(
		&flags.pathStyle, "path-style", "",
		"How script paths are normalized: auto, windows or posix")
	cmd.Flags().BoolVar(
		&flags.insecureSkipVerify, "insecure-skip-verify", false,
		"Accept self-signed TLS certificates from the ThingWorx server")

	return cmd
}

func newMCPCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve debugging tools over the Model Context Protocol",
		Long: "Mcp exposes the adapter as twx_* tools on stdin/stdout so that an AI\n" +
			"assistant can attach to a ThingWorx server and drive a debug session.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*global, nil)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runMCP(cfg, logger)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}

// setup loads the configuration, applies flag overrides and builds the logger
func setup(global globalFlags, serve *serveFlags) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(global.configPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading configuration")
	}

	if global.logLevel != "" {
		cfg.LogLevel = global.logLevel
	}
	if serve != nil {
		cfg.Mode = config.ModeDAP
		if serve.listen != "" {
			cfg.Listen = serve.listen
		}
		if serve.onChannelLoss != "" {
			cfg.OnChannelLoss = config.ChannelLossPolicy(serve.onChannelLoss)
		}
		if serve.pathStyle != "" {
			cfg.PathStyle = config.PathStyle(serve.pathStyle)
		}
		if serve.insecureSkipVerify {
			cfg.InsecureSkipVerify = true
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.LogLevel)
	}
	return cfg, logger, nil
}

func runDAP(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	server := dap.NewServer(cfg, dap.WithServerLogger(logger))
	ctx := cmd.Context()

	logger.Info("twx-dap starting", zap.String("version", version.Version), zap.String("mode", string(cfg.Mode)))
	if cfg.Listen != "" {
		return server.ListenAndServe(ctx, cfg.Listen)
	}
	return server.ServeStdio(ctx, os.Stdin, os.Stdout)
}

func runMCP(cfg *config.Config, logger *zap.Logger) error {
	server := mcp.NewServer(cfg, mcp.WithLogger(logger))
	defer server.Close()

	logger.Info("twx-dap MCP server starting", zap.String("version", version.Version))
	return server.ServeStdio()
}
