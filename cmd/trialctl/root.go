package main

import (
	"errors"

	"github.com/spf13/cobra"

	"trialcore/internal/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
	trace      bool
}

func newRootCmd() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "trialctl",
		Short:         "trialctl builds and merges clinical trial metadata",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				cfg.LogLevel = flags.logLevel
			}
			return a.init(cfg, cmd.ErrOrStderr(), flags.trace)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: ./trialcore.yaml when present)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug|info|warn|error (overrides log_level)")
	cmd.PersistentFlags().BoolVar(&flags.trace, "trace", false, "write JSON trace spans to stderr")

	cmd.AddCommand(
		newPrismifyCmd(a),
		newMergeArtifactCmd(a),
		newMergeTrialCmd(a),
		newIngestCmd(a),
		newShowCmd(a),
		newVersionCmd(),
	)
	for _, c := range cmd.Commands() {
		closeOnError(c, a)
	}
	return cmd
}

// closeOnError releases opened backends when RunE fails; cobra skips the
// persistent post-run hook in that case.
func closeOnError(c *cobra.Command, a *app) {
	run := c.RunE
	if run == nil {
		return
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		if err := run(cmd, args); err != nil {
			return errors.Join(err, a.close())
		}
		return nil
	}
}
