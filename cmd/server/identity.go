package main

import (
	"context"
	"fmt"

	"mailbox_server/internal/config"
	"mailbox_server/internal/model"
	"mailbox_server/internal/repository/identity"

	"github.com/spf13/cobra"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage account profiles",
	}
	cmd.AddCommand(identityImportCmd(), identityDeleteCmd())
	return cmd
}

func identityImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Create or replace an account profile from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.LoadFile(args[0])
			if err != nil {
				return err
			}
			return withIdentityRepo(cmd.Context(), cfg, func(repo identityWriter) error {
				if err := repo.Save(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "identity %s saved (%d contacts)\n", id.Account, len(id.Contacts))
				return nil
			})
		},
	}
}

func identityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ACCOUNT",
		Short: "Delete an account profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentityRepo(cmd.Context(), cfg, func(repo identityWriter) error {
				return repo.Delete(cmd.Context(), args[0])
			})
		},
	}
}

type identityWriter interface {
	Save(ctx context.Context, identity *model.Identity) error
	Delete(ctx context.Context, account string) error
}

func withIdentityRepo(ctx context.Context, cfg *config.Config, fn func(identityWriter) error) error {
	if cfg.Storage.Backend != config.BackendMongo {
		return fmt.Errorf("identity commands need the mongo storage backend")
	}

	client, err := initMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer client.Disconnect(context.Background())

	repo := identity.NewIdentityRepo(client.Database(cfg.Mongo.Database))
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}
	return fn(repo)
}
