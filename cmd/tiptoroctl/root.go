package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
)

// DefaultSkillsDir matches the server's gateway.skills_dir default.
const DefaultSkillsDir = "skills"

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tiptoroctl",
		Short:         "Operate a tiptoro installation",
		Long:          `tiptoroctl inspects skill descriptors, applies database migrations and runs the mistake pipeline offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	cmd.AddCommand(
		newSkillsCmd(opts),
		newMigrateCmd(opts),
		newDemoCmd(opts),
		newHashPasswordCmd(),
	)
	return cmd
}

// logger writes structured logs to the command's stderr.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return logger.New(cmd.ErrOrStderr(), level)
}
