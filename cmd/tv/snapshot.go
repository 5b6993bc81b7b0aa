package main

import (
	"fmt"

	"tv-go/internal/model"
	"tv-go/internal/tv"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture, restore and archive whole trees",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create [BASE]",
	Short: "Snapshot BASE (default: the repository's base path)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		base := ""
		if len(args) > 0 {
			if base, err = absPath(args[0]); err != nil {
				return err
			}
		}

		f := cmd.Flags()
		var opts tv.SnapshotOptions
		opts.Name, _ = f.GetString("name")
		opts.Description, _ = f.GetString("description")
		opts.Author, _ = f.GetString("author")
		opts.DryRun, _ = f.GetBool("dry-run")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.CreateSnapshot(cmd.Context(), base, repository, opts)
		return emit(res, func(r *tv.SnapshotResult) {
			fmt.Printf("Snapshot ID: %s\n", r.Snapshot.ID)
			for _, e := range r.Errors {
				fmt.Printf("error  %s: %s: %s\n", e.Path, e.Operation, e.Error)
			}
		})
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emit(a.ListSnapshots(cmd.Context(), repository), func(snaps []*model.VersionSnapshot) {
			for _, s := range snaps {
				payload := ""
				if s.HasPayload {
					payload = "  [payload]"
				}
				fmt.Printf("%s  %s  %5d files  %-24s%s\n", s.ID, formatTime(s.Timestamp), len(s.Files), s.Name, payload)
			}
		})
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show SNAPSHOT_ID",
	Short: "Show a snapshot and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emit(a.GetSnapshot(cmd.Context(), repository, args[0]), func(s *model.VersionSnapshot) {
			fmt.Printf("Created:   %s\n", formatTime(s.Timestamp))
			fmt.Printf("Base Path: %s\n", s.BasePath)
			if s.Description != "" {
				fmt.Printf("About:     %s\n", s.Description)
			}
			for _, f := range s.Files {
				fmt.Printf("  %.12s  %10d  %s\n", f.ContentHash, f.Size, f.FilePath)
			}
		})
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT_ID [DEST]",
	Short: "Write a snapshot's stored files to DEST (default: its base path)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		dest := ""
		if len(args) > 1 {
			if dest, err = absPath(args[1]); err != nil {
				return err
			}
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emitReport(a.RestoreSnapshot(cmd.Context(), repository, args[0], dest, dryRun))
	},
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export SNAPSHOT_ID",
	Short: "Upload a snapshot to a vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		vaultName, _ := cmd.Flags().GetString("vault")
		plain, _ := cmd.Flags().GetBool("no-encrypt")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emitReport(a.ExportSnapshot(cmd.Context(), repository, args[0], vaultName, !plain))
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import REPOSITORY_ID SNAPSHOT_ID DEST",
	Short: "Download an exported snapshot into DEST",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace, snapshotID := args[0], args[1]
		dest, err := absPath(args[2])
		if err != nil {
			return err
		}
		vaultName, _ := cmd.Flags().GetString("vault")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		manifest, err := a.FetchManifest(cmd.Context(), vaultName, namespace, snapshotID)
		if err != nil {
			return err
		}
		passphrase := ""
		if manifest.Encrypted && !dryRun {
			if passphrase, err = readPassphrase("Passphrase: ", false); err != nil {
				return err
			}
		}

		return emitReport(a.ImportSnapshot(cmd.Context(), vaultName, namespace, snapshotID, dest, passphrase, dryRun))
	},
}

func init() {
	snapshotCreateCmd.Flags().String("name", "", "Snapshot name (default snapshot-<timestamp>)")
	snapshotCreateCmd.Flags().String("description", "", "Snapshot description")
	snapshotCreateCmd.Flags().String("author", "", "Snapshot author")
	snapshotCreateCmd.Flags().BoolP("dry-run", "n", false, "Hash files without recording the snapshot")
	snapshotRestoreCmd.Flags().BoolP("dry-run", "n", false, "Report the restore without writing")
	snapshotExportCmd.Flags().String("vault", "", "Vault name (default: first configured)")
	snapshotExportCmd.Flags().Bool("no-encrypt", false, "Upload plaintext content")
	snapshotImportCmd.Flags().String("vault", "", "Vault name (default: first configured)")
	snapshotImportCmd.Flags().BoolP("dry-run", "n", false, "Check the vault holds every file without writing")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotImportCmd)

	rootCmd.AddCommand(snapshotCmd)
}
