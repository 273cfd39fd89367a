package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ResolveResult is one user's effective permission set
type ResolveResult struct {
	UserID      string                `json:"userId"`
	Wildcard    bool                  `json:"wildcard"`
	Permissions []auth.PermissionCode `json:"permissions"`
	Error       string                `json:"error,omitempty"`
}

// ResolveUsers resolves every user concurrently. Gateway failures are reported
// per user rather than collapsed to an empty set.
func ResolveUsers(ctx context.Context, logger logrus.FieldLogger, resolver *rbac.Resolver, users []string, roles []auth.RoleName, workers int, timeout time.Duration) []ResolveResult {
	results, errs := async.Map(ctx, logger, users, workers, "resolve", timeout,
		func(ctx context.Context, userID string) (ResolveResult, error) {
			result := ResolveResult{UserID: userID}
			set, err := resolver.ResolveUser(ctx, userID, roles)
			if err != nil {
				result.Error = err.Error()
				return result, nil
			}
			result.Wildcard = set.IsWildcard()
			result.Permissions = set.Codes()
			return result, nil
		})
	for _, err := range errs {
		logger.WithError(err).Warn("resolve task failed")
	}

	// A task the pool never ran leaves a zero result behind.
	for i := range results {
		if results[i].UserID == "" {
			results[i] = ResolveResult{UserID: users[i], Error: "not resolved"}
		}
	}
	return results
}

func newResolveCommand(newLogger loggerFactory) *cobra.Command {
	var (
		gw      gatewayFlags
		roles   []string
		workers int
		timeout time.Duration
		format  string
	)

	cmd := &cobra.Command{
		Use:   "resolve <user-id>...",
		Short: "Resolve effective permissions for users",
		Long: `Resolve the effective permission set of each user against a permission gateway.

Users holding a privileged role through --roles resolve to the wildcard without
any gateway call. The command fails when any user could not be resolved.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			gateway, closeGateway, err := gw.open(logger)
			if err != nil {
				return err
			}
			defer closeGateway()

			resolver := rbac.NewResolver(gateway, rbac.WithLogger(logger))
			results := ResolveUsers(cmd.Context(), logger, resolver, args, toRoles(roles), workers, timeout)

			err = writeOutput(cmd.OutOrStdout(), format, results, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USER\tPERMISSIONS")
				for _, r := range results {
					perms := "(none)"
					switch {
					case r.Error != "":
						perms = "error: " + r.Error
					case len(r.Permissions) > 0:
						perms = joinCodes(r.Permissions)
					}
					fmt.Fprintf(tw, "%s\t%s\n", r.UserID, perms)
				}
				tw.Flush()
			})
			if err != nil {
				return err
			}

			var failed int
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d users could not be resolved", failed, len(results))
			}
			return nil
		},
	}

	gw.register(cmd)
	flags := cmd.Flags()
	flags.StringSliceVar(&roles, "roles", nil, "session roles applied to every user")
	flags.IntVar(&workers, "workers", 4, "concurrent resolutions")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "per-user resolution timeout")
	flags.StringVar(&format, "format", "table", "output format (table, json)")
	return cmd
}

func joinCodes(codes []auth.PermissionCode) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
