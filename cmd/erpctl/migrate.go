package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nitinbetharia/schoolerp/internal/registry"
	"github.com/nitinbetharia/schoolerp/internal/store/migrations"
)

func newMigrateCmd(a *app) *cobra.Command {
	var (
		code   string
		system bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to the system or a tenant database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code == "" {
				system = true
			}
			a.cfg.Database.AutoMigrate = false

			naming := registry.ConfigFrom(a.cfg.Database).Naming
			tc, err := target(naming, code, system)
			if err != nil {
				return err
			}

			open := registry.NewOpener(a.cfg.Database, registry.CreateMissing())
			pool, err := open(cmd.Context(), tc)
			if err != nil {
				return err
			}
			defer pool.Close()

			scope := migrations.ScopeTenant
			if tc.IsSystem() {
				scope = migrations.ScopeSystem
			}

			applied, err := migrations.Up(cmd.Context(), pool, scope)
			if err != nil {
				return err
			}
			version, err := migrations.Version(cmd.Context(), pool, scope)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %d migration(s), now at version %d\n", tc.Database, applied, version)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "tenant", "", "tenant code (defaults to the system database)")
	return cmd
}
