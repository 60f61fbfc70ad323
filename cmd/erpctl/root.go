package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/config"
	"github.com/nitinbetharia/schoolerp/internal/registry"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

var errTarget = errors.New("exactly one of --tenant or --system is required")

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "erpctl",
		Short:         "Administer school ERP databases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			config.LoadDotEnv()
			config.SetupLogging()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newMigrateCmd(a),
		newSeedAdminCmd(a),
		newListUsersCmd(a),
	)
	return root
}

// registry opens a connection registry. createMissing lets sqlite create
// tenant database files.
func (a *app) registry(createMissing bool) *registry.Registry {
	var opts []registry.OpenerOption
	if createMissing {
		opts = append(opts, registry.CreateMissing())
	}
	return registry.New(
		registry.ConfigFrom(a.cfg.Database),
		registry.NewOpener(a.cfg.Database, opts...),
		registry.WithTranslator(apperr.Translator{DevMode: true}),
	)
}

// target resolves the --tenant/--system pair to a tenant context.
func target(naming tenant.Naming, code string, system bool) (tenant.Context, error) {
	switch {
	case system && code == "":
		return naming.System(), nil
	case !system && code != "":
		normalized, ok := tenant.Normalize(code)
		if !ok {
			return tenant.Context{}, fmt.Errorf("invalid tenant code %q", code)
		}
		return naming.For(normalized, tenant.SourceHeader), nil
	default:
		return tenant.Context{}, errTarget
	}
}

func addTargetFlags(cmd *cobra.Command, code *string, system *bool) {
	cmd.Flags().StringVar(code, "tenant", "", "tenant code")
	cmd.Flags().BoolVar(system, "system", false, "target the system database")
}
