package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/authgate"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/spf13/cobra"
)

// RouteResult is the guard outcome for one path
type RouteResult struct {
	Path           string `json:"path"`
	State          string `json:"state"`
	Redirect       string `json:"redirect,omitempty"`
	ReplaceHistory bool   `json:"replaceHistory,omitempty"`
}

// EvaluateRoutes runs the route guard for every path against one session shape
func EvaluateRoutes(routes authgate.Routes, snap session.Snapshot, paths []string) []RouteResult {
	results := make([]RouteResult, 0, len(paths))
	for _, p := range paths {
		in := authgate.InputFromSnapshot(snap, p)
		result := RouteResult{Path: p, State: authgate.ClassifyState(in).String()}
		if d := routes.Evaluate(in); d != nil {
			result.Redirect = d.Target
			result.ReplaceHistory = d.ReplaceHistory
		}
		results = append(results, result)
	}
	return results
}

// maxFollowHops bounds redirect chains in FollowRoutes. Valid routes settle
// after one hop.
const maxFollowHops = 4

// FollowRoutes replays a navigation stream through one Gate and writes every
// redirect it issues as "<from> -> <to>". Each input line is a path, "@login
// role,role" to start a session, or "@logout" to end it. Redirects are followed,
// and re-reading the location the gate already holds issues nothing.
func FollowRoutes(routes authgate.Routes, snap session.Snapshot, in io.Reader, out io.Writer) error {
	gate := authgate.NewGate(routes)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "@logout":
			snap = session.Snapshot{}
			continue
		case strings.HasPrefix(line, "@login"):
			names := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "@login")), ",")
			snap = session.Snapshot{Token: "gatectl", Roles: toRoles(names)}
			continue
		}

		path := line
		for hops := 0; ; hops++ {
			if hops == maxFollowHops {
				return fmt.Errorf("redirect loop starting at %s", line)
			}
			d := gate.Evaluate(authgate.InputFromSnapshot(snap, path))
			if d == nil {
				break
			}
			if _, err := fmt.Fprintf(out, "%s -> %s\n", path, d.Target); err != nil {
				return err
			}
			path = d.Target
		}
	}
	return scanner.Err()
}

func newRouteCommand() *cobra.Command {
	var (
		authenticated bool
		roles         []string
		format        string
		follow        bool
	)
	defaults := authgate.DefaultRoutes()
	routes := authgate.Routes{}

	cmd := &cobra.Command{
		Use:   "route <path>...",
		Short: "Evaluate the route guard for dashboard paths",
		Long: `Evaluate the route guard for each path as seen by one session.

Only token presence and admin classification matter to the guard, so a session
is described by --authenticated and --roles.`,
		Example: `  gatectl route /dashboard /login
  gatectl route /login --authenticated --roles System_Manager --format json
  printf '/dashboard\n@login operator\n/login\n' | gatectl route --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := routes.Validate(); err != nil {
				return err
			}
			snap := session.Snapshot{Roles: toRoles(roles)}
			if authenticated {
				snap.Token = "gatectl"
			}
			if follow {
				if len(args) > 0 {
					return errors.New("--follow reads paths from stdin and takes no arguments")
				}
				return FollowRoutes(routes, snap, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			if len(args) == 0 {
				return errors.New("at least one path is required")
			}
			results := EvaluateRoutes(routes, snap, args)
			return writeOutput(cmd.OutOrStdout(), format, results, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PATH\tSTATE\tREDIRECT")
				for _, r := range results {
					target := "-"
					if r.Redirect != "" {
						target = r.Redirect
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Path, r.State, target)
				}
				tw.Flush()
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&authenticated, "authenticated", false, "evaluate as a session holding a token")
	flags.StringSliceVar(&roles, "roles", nil, "session roles")
	flags.StringVar(&format, "format", "table", "output format (table, json)")
	flags.BoolVar(&follow, "follow", false, "read a navigation stream from stdin and print the redirects issued")
	flags.StringVar(&routes.LoginPath, "login-path", envOr("WARDEN_LOGIN_PATH", defaults.LoginPath), "login path")
	flags.StringVar(&routes.AltLoginPath, "alt-login-path", envOr("WARDEN_ALT_LOGIN_PATH", defaults.AltLoginPath), "alternate login path")
	flags.StringVar(&routes.AdminRoot, "admin-root", envOr("WARDEN_ADMIN_ROOT", defaults.AdminRoot), "admin landing path")
	flags.StringVar(&routes.OperatorRoot, "operator-root", envOr("WARDEN_OPERATOR_ROOT", defaults.OperatorRoot), "operator landing path")
	return cmd
}

func toRoles(names []string) []auth.RoleName {
	roles := make([]auth.RoleName, 0, len(names))
	for _, n := range names {
		if n != "" {
			roles = append(roles, auth.RoleName(n))
		}
	}
	return roles
}
