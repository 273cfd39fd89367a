package cli

import (
	"os"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the gatectl root command with every subcommand attached
func NewRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "gatectl",
		Short: "Inspect warden route guards and permission resolution",
		Long: `gatectl is the operator tool for warden. It evaluates the route guard for
dashboard paths, resolves effective permissions for users against any supported
permission gateway, and prepares SQL gateway databases.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("WARDEN_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")

	newLogger := func(cmd *cobra.Command) logrus.FieldLogger {
		return observability.NewLogger(observability.ParseLogLevel(logLevel), cmd.ErrOrStderr())
	}

	root.AddCommand(
		newRouteCommand(),
		newResolveCommand(newLogger),
		newMigrateCommand(newLogger),
		newSeedCommand(newLogger),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type loggerFactory func(cmd *cobra.Command) logrus.FieldLogger
