package main

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hollomancer/sbir-analytics-sub004/config"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
)

type rootOptions struct {
	envFile string
	profile string

	cfg     *config.Config
	logger  ectologger.Logger
	matcher matching.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "resolver",
		Short:         "Resolve organization records to canonical identities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "Match profile TOML file (overrides MATCH_PROFILE_PATH)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMatchCmd(opts),
		newCrosswalkCmd(opts),
		newEnvCmd(),
	)
	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	o.logger = logger

	path := cfg.MatchProfilePath
	if o.profile != "" {
		path = o.profile
	}
	o.matcher, err = config.LoadProfile(path)
	return err
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
		},
	}
}
