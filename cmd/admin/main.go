// package main is the operator CLI: schema migrations, profile provisioning
// and development tokens.
package main

import (
	"fmt"
	"os"

	"nexochat/backend/internal/api/handler"
	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/storage"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Administrative commands for the nexochat backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newProfileCmd(), newTokenCmd())
	return root
}

// setup loads the configuration and opens the database without migrating.
func setup() (*config.Config, *gorm.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	jww.SetStdoutThreshold(cfg.Threshold())

	db, err := storage.OpenDB(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if sqlDb, err := db.DB(); err == nil {
			_ = sqlDb.Close()
		}
	}
	return cfg, db, closeFn, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, closeFn, err := setup()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := storage.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

func newProfileCmd() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage profiles.",
	}

	var email, name string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a profile and print its id.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, closeFn, err := setup()
			if err != nil {
				return err
			}
			defer closeFn()

			p := &models.Profile{Email: email, DisplayName: name}
			if err := directory.NewService(db).Save(cmd.Context(), p); err != nil {
				return errors.Wrapf(err, "failed to add profile %s", email)
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&email, "email", "", "Email address of the new profile.")
	addCmd.Flags().StringVar(&name, "name", "", "Display name of the new profile.")
	_ = addCmd.MarkFlagRequired("email")

	profileCmd.AddCommand(addCmd)
	return profileCmd
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for an existing profile.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, closeFn, err := setup()
			if err != nil {
				return err
			}
			defer closeFn()

			ok, err := directory.NewService(db).Exists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return apperror.NotFound("profile " + args[0] + " not found")
			}

			token, err := handler.NewAuthenticator(cfg.JWT).Mint(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
