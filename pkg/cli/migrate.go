package cli

import (
	"fmt"

	"github.com/platinummonkey/warden/pkg/gateway"
	"github.com/spf13/cobra"
)

func newMigrateCommand(newLogger loggerFactory) *cobra.Command {
	var gw gatewayFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the SQL gateway schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := gw.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := gateway.RunMigrations(cmd.Context(), db, gw.driver, newLogger(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
	gw.registerSQL(cmd)
	return cmd
}

func newSeedCommand(newLogger loggerFactory) *cobra.Command {
	var (
		gw      gatewayFlags
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML permission fixture into the SQL gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if gw.fixture == "" {
				return fmt.Errorf("--fixture is required")
			}
			fixture, err := gateway.LoadFixture(gw.fixture)
			if err != nil {
				return err
			}

			db, err := gw.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if migrate {
				if err := gateway.RunMigrations(cmd.Context(), db, gw.driver, newLogger(cmd)); err != nil {
					return err
				}
			}
			if err := gateway.Seed(cmd.Context(), db, gw.driver, fixture); err != nil {
				return err
			}

			var assignments int
			for _, roles := range fixture.UserRoles {
				assignments += len(roles)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d permissions, %d role assignments, %d role mappings\n",
				len(fixture.Permissions), assignments, len(fixture.RolePermissions))
			return nil
		},
	}
	gw.registerSQL(cmd)
	cmd.Flags().StringVar(&gw.fixture, "fixture", "", "YAML fixture to load")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before seeding")
	return cmd
}
