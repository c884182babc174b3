package main

import (
	"mailbox_server/internal/config"
	"mailbox_server/internal/utils/log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:           "mailbox-server",
		Short:         "Identity based mailbox server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			return log.Init(cfg.Log.Level, cfg.Log.Development)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $"+config.EnvConfigPath+")")

	root.AddCommand(serveCmd(), provisionCmd(), identityCmd())
	return root.Execute()
}
