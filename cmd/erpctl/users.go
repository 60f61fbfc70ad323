package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/auth"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/models"
)

func newSeedAdminCmd(a *app) *cobra.Command {
	var (
		code     string
		system   bool
		username string
		password string
		email    string
	)

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the administrator account of the system or a tenant database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := a.registry(true)
			defer reg.Close()

			tc, err := target(reg.Naming(), code, system)
			if err != nil {
				return err
			}
			h, err := reg.Get(cmd.Context(), tc)
			if err != nil {
				return err
			}

			role := domain.RoleAdmin
			if tc.IsSystem() {
				role = domain.RoleSystemAdmin
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			u := &domain.User{
				Username:     username,
				Email:        email,
				PasswordHash: hash,
				FullName:     "Administrator",
				Role:         role,
				Active:       true,
			}

			err = models.For(h).Users.Create(cmd.Context(), u)
			var ae *apperr.Error
			if errors.As(err, &ae) && ae.Code == apperr.CodeDuplicateEntry {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: user %q already exists\n", tc.Database, username)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: created %s %q (%s)\n", tc.Database, role, username, u.ID)
			return nil
		},
	}

	addTargetFlags(cmd, &code, &system)
	cmd.Flags().StringVar(&username, "username", "admin", "login name")
	cmd.Flags().StringVar(&password, "password", "admin123", "initial password")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func newListUsersCmd(a *app) *cobra.Command {
	var (
		code   string
		system bool
	)

	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "List the accounts of the system or a tenant database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := a.registry(false)
			defer reg.Close()

			tc, err := target(reg.Naming(), code, system)
			if err != nil {
				return err
			}
			h, err := reg.Get(cmd.Context(), tc)
			if err != nil {
				return err
			}

			users, err := models.For(h).Users.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tACTIVE\tLAST LOGIN")
			for _, u := range users {
				last := "-"
				if u.LastLoginAt != nil {
					last = u.LastLoginAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Email, u.Role, u.Active, last)
			}
			return tw.Flush()
		},
	}

	addTargetFlags(cmd, &code, &system)
	return cmd
}
