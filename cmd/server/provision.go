package main

import (
	"fmt"
	"os"

	"mailbox_server/internal/repository/setupkey"

	"github.com/spf13/cobra"
)

// provisionCmd installs the key that may claim an account which has no
// profile yet.
func provisionCmd() *cobra.Command {
	var (
		account string
		keyFile string
		revoke  bool
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Install or revoke the setup key of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := setupkey.NewDir(cfg.Storage.SetupKeyDir)
			if revoke {
				return dir.Revoke(account)
			}

			key, err := os.ReadFile(keyFile)
			if err != nil {
				return err
			}
			if err := dir.Provision(account, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "setup key for %s installed\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account to provision")
	cmd.Flags().StringVar(&keyFile, "key", "", "public key file (PEM, OpenSSH or raw Ed25519)")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove the setup key instead")
	cmd.MarkFlagRequired("account")
	return cmd
}
