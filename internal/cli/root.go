package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/museumlab/dwelltrack/internal/config"
	"github.com/museumlab/dwelltrack/internal/logging"
)

// globals are the persistent flags plus what PersistentPreRunE derives
// from them.
type globals struct {
	configPath string
	dbPath     string
	endpoint   string
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "dwell",
		Short: "dwell - page engagement and interaction tracking for the museum study",
		Long: `dwell records how long participants spend on each page of the study site,
how long pages sat hidden, and what they clicked, rated and selected, and
forwards it all to the study's logging endpoints.

Sessions live in a local SQLite database so a tab's record survives between
commands. Every submission is journalled there too.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				g.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ./"+config.DefaultFileName+" if present)")
	rootCmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&g.endpoint, "endpoint", "", "logging server base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(
		newReplayCmd(g),
		newLoadCmd(g),
		newEmitCmd(g),
		newSessionsCmd(g),
		newHistoryCmd(g),
		newExportCmd(g),
	)

	return rootCmd
}

func (g *globals) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(g.configPath, config.Overrides{
		Endpoint: g.endpoint,
		DBPath:   g.dbPath,
		LogLevel: g.logLevel,
	})
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}

	g.cfg = cfg
	g.logger = logger
	logger.Debug("configuration loaded", zap.String("source", cfg.Source), zap.String("endpoint", cfg.Endpoint))
	return nil
}
