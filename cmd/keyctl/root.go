package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CloudNativeWorks/cnw-keyserver/pkg/keyclient"
)

// app holds the settings shared by every subcommand. Flags are bound to
// viper, so KEYCTL_SERVER and KEYCTL_TIMEOUT work as well.
type app struct {
	v *viper.Viper
}

func newApp() *app {
	v := viper.New()
	v.SetEnvPrefix("keyctl")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &app{v: v}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "keyctl",
		Short:         "Administer license keys on a key server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("server", "http://localhost:8080", "key server base URL")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	_ = a.v.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))
	_ = a.v.BindPFlag("timeout", cmd.PersistentFlags().Lookup("timeout"))

	cmd.AddCommand(a.keyCmd())
	cmd.AddCommand(a.validateCmd())
	cmd.AddCommand(a.releaseCmd())
	cmd.AddCommand(a.auditCmd())
	return cmd
}

func (a *app) client() *keyclient.Client {
	return keyclient.NewClient(a.v.GetString("server"),
		keyclient.WithTimeout(a.v.GetDuration("timeout")),
		keyclient.WithUserAgent("keyctl/1.0"),
	)
}

// printJSON writes v indented to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
