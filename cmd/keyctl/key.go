package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/license"
	"github.com/CloudNativeWorks/cnw-keyserver/pkg/keyclient"
)

func (a *app) keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage license keys",
	}
	cmd.AddCommand(
		a.keyCreateCmd(),
		a.keyGetCmd(),
		a.keyListCmd(),
		a.keyEditCmd(),
		a.keyDeleteCmd(),
		a.keyBlockCmd(true),
		a.keyBlockCmd(false),
		a.keyResetCmd(),
		a.keyUnbindCmd(),
		a.keySuspiciousCmd(),
	)
	return cmd
}

// addExpiryFlags registers --hours, --days and --perpetual.
func addExpiryFlags(cmd *cobra.Command) {
	cmd.Flags().Int("hours", 0, "valid for N hours")
	cmd.Flags().Int("days", 0, "valid for N days")
	cmd.Flags().Bool("perpetual", false, "never expires")
	cmd.MarkFlagsMutuallyExclusive("hours", "days", "perpetual")
}

// expiryFromFlags returns the expiry selected by addExpiryFlags. ok is false
// when none of the flags was given.
func expiryFromFlags(cmd *cobra.Command) (e keyclient.Expiry, ok bool) {
	switch {
	case cmd.Flags().Changed("hours"):
		n, _ := cmd.Flags().GetInt("hours")
		return keyclient.Hours(n), true
	case cmd.Flags().Changed("days"):
		n, _ := cmd.Flags().GetInt("days")
		return keyclient.Days(n), true
	case cmd.Flags().Changed("perpetual"):
		return keyclient.Forever(), true
	}
	return keyclient.Expiry{}, false
}

func (a *app) keyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Issue a new key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generate, _ := cmd.Flags().GetBool("generate")
			var id string
			switch {
			case len(args) == 1 && generate:
				return errors.New("give an id or --generate, not both")
			case len(args) == 1:
				id = args[0]
			case generate:
				id = license.NewKeyID()
			default:
				return errors.New("an id or --generate is required")
			}

			expiry, ok := expiryFromFlags(cmd)
			if !ok {
				return errors.New("one of --hours, --days or --perpetual is required")
			}
			contact, _ := cmd.Flags().GetString("contact")
			limit, _ := cmd.Flags().GetInt("limit")

			key, err := a.client().CreateKey(cmd.Context(), keyclient.CreateKeyRequest{
				ID:          id,
				Contact:     contact,
				DeviceLimit: limit,
				Expiry:      expiry,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, key)
		},
	}
	cmd.Flags().Bool("generate", false, "generate a random XXXXX-XXXXX-XXXXX-XXXXX id")
	cmd.Flags().String("contact", "", "owner contact")
	cmd.Flags().Int("limit", 1, "maximum number of bound devices")
	addExpiryFlags(cmd)
	return cmd
}

func (a *app) keyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.client().GetKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, key)
		},
	}
}

func (a *app) keyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			contact, _ := cmd.Flags().GetString("contact")
			keys, err := a.client().ListKeys(cmd.Context(), contact)
			if err != nil {
				return err
			}
			return printJSON(cmd, keys)
		},
	}
	cmd.Flags().String("contact", "", "only keys with this contact (case-insensitive)")
	return cmd
}

func (a *app) keyEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a key's contact, device limit and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.client()
			current, err := client.GetKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			req := keyclient.EditKeyRequest{
				Contact:     current.Contact,
				DeviceLimit: current.DeviceLimit,
				ExpiresAt:   current.ExpiresAt,
			}
			if cmd.Flags().Changed("contact") {
				req.Contact, _ = cmd.Flags().GetString("contact")
			}
			if cmd.Flags().Changed("limit") {
				req.DeviceLimit, _ = cmd.Flags().GetInt("limit")
			}
			if cmd.Flags().Changed("expires-at") {
				req.ExpiresAt, _ = cmd.Flags().GetString("expires-at")
			}
			key, err := client.EditKey(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return printJSON(cmd, key)
		},
	}
	cmd.Flags().String("contact", "", "new contact")
	cmd.Flags().Int("limit", 0, "new device limit")
	cmd.Flags().String("expires-at", "", `new expiry: RFC 3339 timestamp or "perpetual"`)
	return cmd
}

func (a *app) keyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client().DeleteKey(cmd.Context(), args[0])
		},
	}
}

func (a *app) keyBlockCmd(block bool) *cobra.Command {
	use, short := "block <id>", "Block a key"
	if !block {
		use, short = "unblock <id>", "Unblock a key"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if block {
				return a.client().BlockKey(cmd.Context(), args[0])
			}
			return a.client().UnblockKey(cmd.Context(), args[0])
		},
	}
}

func (a *app) keyResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <id>",
		Short: "Unbind all devices and set a new expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req keyclient.ResetKeyRequest
			if expiry, ok := expiryFromFlags(cmd); ok {
				req.Expiry = &expiry
			}
			if cmd.Flags().Changed("expires-at") {
				req.ExpiresAt, _ = cmd.Flags().GetString("expires-at")
			}
			if req.Expiry == nil && req.ExpiresAt == "" {
				return errors.New("one of --expires-at, --hours, --days or --perpetual is required")
			}
			key, err := a.client().ResetKey(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return printJSON(cmd, key)
		},
	}
	cmd.Flags().String("expires-at", "", `absolute expiry: RFC 3339 timestamp or "perpetual"`)
	addExpiryFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("expires-at", "hours", "days", "perpetual")
	return cmd
}

func (a *app) keyUnbindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unbind <id> <device-id>",
		Short: "Free one device slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client().UnbindDevice(cmd.Context(), args[0], args[1])
		},
	}
}

func (a *app) keySuspiciousCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suspicious",
		Short: "List keys bound to more devices than their limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := a.client().ListSuspicious(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, ids)
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <key-id>",
		Short: "Validate a key from a device (binds the device on first use)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, _ := cmd.Flags().GetString("device")
			client := a.client()
			var (
				resp *keyclient.ValidateResponse
				err  error
			)
			if device != "" {
				resp, err = client.Validate(cmd.Context(), keyclient.ValidateRequest{KeyID: args[0], DeviceID: device})
			} else {
				resp, err = client.ValidateDevice(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().String("device", "", "device id (default: this machine's fingerprint)")
	return cmd
}
