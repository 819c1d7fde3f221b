package main

import "github.com/spf13/cobra"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "keyserver",
		Short:         "License key server.",
		Long:          "License key server: issues keys, binds devices on first use and answers validations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "", "config file (YAML); KEYSERVER_* env vars override it")
	cmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "dotenv files loaded before reading the environment")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the keyserver version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(version + "\n"))
			return err
		},
	}
}
