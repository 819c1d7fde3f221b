package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-keyserver/pkg/keyclient"
)

func (a *app) releaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Manage published releases",
	}

	publish := &cobra.Command{
		Use:   "publish <version>",
		Short: "Publish a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, _ := cmd.Flags().GetString("link")
			desc, _ := cmd.Flags().GetString("description")
			rel, err := a.client().PublishRelease(cmd.Context(), keyclient.PublishReleaseRequest{
				Version:     args[0],
				Description: desc,
				Link:        link,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, rel)
		},
	}
	publish.Flags().String("link", "", "download URL")
	publish.Flags().String("description", "", "release notes")

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rel, ok, err := a.client().LatestRelease(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no release published")
				return err
			}
			return printJSON(cmd, rel)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rels, err := a.client().ListReleases(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, rels)
		},
	}

	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit the description or link of a release",
		Long:  "Edit the description or link of a release. Flags that are not given keep their current value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReleaseID(args[0])
			if err != nil {
				return err
			}
			client := a.client()
			rels, err := client.ListReleases(cmd.Context())
			if err != nil {
				return err
			}
			i := slices.IndexFunc(rels, func(r keyclient.Release) bool { return r.ID == id })
			if i < 0 {
				return fmt.Errorf("release %d: %w", id, keyclient.ErrKeyNotFound)
			}
			req := keyclient.EditReleaseRequest{Description: rels[i].Description, Link: rels[i].Link}
			if cmd.Flags().Changed("description") {
				req.Description, _ = cmd.Flags().GetString("description")
			}
			if cmd.Flags().Changed("link") {
				req.Link, _ = cmd.Flags().GetString("link")
			}
			rel, err := client.EditRelease(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, rel)
		},
	}
	edit.Flags().String("link", "", "download URL")
	edit.Flags().String("description", "", "release notes")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReleaseID(args[0])
			if err != nil {
				return err
			}
			return a.client().RemoveRelease(cmd.Context(), id)
		},
	}

	cmd.AddCommand(publish, latest, list, edit, remove)
	return cmd
}

func (a *app) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			entries, err := a.client().ListAudit(cmd.Context(), kind)
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().String("kind", "", `filter by kind: "validation" or "admin-action"`)

	appendCmd := &cobra.Command{
		Use:   "append <message>",
		Short: "Record an audit entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			keyID, _ := cmd.Flags().GetString("key")
			deviceID, _ := cmd.Flags().GetString("device")
			entry, err := a.client().AppendAudit(cmd.Context(), keyclient.AppendAuditRequest{
				Kind:     kind,
				Message:  args[0],
				KeyID:    keyID,
				DeviceID: deviceID,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, entry)
		},
	}
	appendCmd.Flags().String("kind", "admin-action", `entry kind: "validation" or "admin-action"`)
	appendCmd.Flags().String("key", "", "key id the entry refers to")
	appendCmd.Flags().String("device", "", "device id the entry refers to")

	cmd.AddCommand(appendCmd)
	return cmd
}

func parseReleaseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid release id %q", s)
	}
	return id, nil
}
