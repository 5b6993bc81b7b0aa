package main

import (
	"fmt"

	"tv-go/internal/app"
	"tv-go/internal/tv"

	"github.com/spf13/cobra"
)

// Flag sets beyond the common ones.
const (
	flagsBackup = iota
	flagsOneWay
	flagsBidirectional
)

func addSyncFlags(cmd *cobra.Command, set int) {
	f := cmd.Flags()
	f.StringSlice("exclude", nil, "Glob pattern to skip (repeatable, ** matches across directories)")
	f.Bool("include-hidden", false, "Include dot files and directories")
	f.BoolP("preserve-times", "t", false, "Copy modification times to the target")
	f.BoolP("dry-run", "n", false, "Report what would change without writing")
	f.IntP("workers", "j", 0, "Concurrent file transfers (default from config)")
	f.String("hash", "", "Digest algorithm for change detection (default from config)")
	switch set {
	case flagsOneWay:
		f.Bool("delete", false, "Delete target files missing from the source")
	case flagsBidirectional:
		f.String("conflict", "newer", "Conflict resolution: newer, larger, source or target")
	}
}

// syncOptions layers command-line flags over the configured defaults.
func syncOptions(cmd *cobra.Command, a *app.TVApp) (tv.SyncOptions, error) {
	opts := a.SyncDefaults()
	f := cmd.Flags()

	exclude, _ := f.GetStringSlice("exclude")
	opts.ExcludePatterns = append(opts.ExcludePatterns, exclude...)
	opts.IncludeHidden, _ = f.GetBool("include-hidden")
	opts.PreserveTimestamps, _ = f.GetBool("preserve-times")
	opts.DryRun, _ = f.GetBool("dry-run")
	if f.Changed("workers") {
		opts.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("hash") {
		opts.HashAlgorithm, _ = f.GetString("hash")
	}
	if f.Lookup("delete") != nil {
		opts.DeleteExtraneous, _ = f.GetBool("delete")
	}
	if f.Lookup("conflict") != nil {
		name, _ := f.GetString("conflict")
		policy, err := tv.ParseConflictPolicy(name)
		if err != nil {
			return opts, err
		}
		opts.ConflictResolution = policy
	}
	return opts, nil
}

// showReport prints per-file conflicts and errors below the summary line.
func showReport(r *tv.SyncReport) {
	if r == nil {
		return
	}
	for _, c := range r.Conflicts {
		fmt.Printf("conflict  %s: %s, %s\n", c.Path, c.Reason, c.Resolution)
	}
	for _, e := range r.Errors {
		fmt.Printf("error     %s: %s: %s\n", e.Path, e.Operation, e.Error)
	}
}

// emitReport prints a bulk result. Conflicts the policy left unresolved turn
// an otherwise successful run into a policy-ambiguous failure.
func emitReport(res tv.OperationResult[*tv.SyncReport]) error {
	err := emit(res, nil)
	if !jsonOutput {
		showReport(res.Data)
	}
	if err != nil {
		return err
	}
	if n := res.Data.Unresolved(); n > 0 {
		return tv.NewError(tv.PolicyAmbiguous, fmt.Sprintf("%d conflicts left for manual resolution", n), nil)
	}
	return nil
}

// runSync is shared by the commands taking SOURCE TARGET.
func runSync(call func(a *app.TVApp, cmd *cobra.Command, source, target string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport]) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := syncOptions(cmd, a)
		if err != nil {
			return err
		}
		return emitReport(call(a, cmd, args[0], args[1], opts))
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync SOURCE TARGET",
	Short: "Copy new and changed files from SOURCE to TARGET",
	Args:  cobra.ExactArgs(2),
	RunE: runSync(func(a *app.TVApp, cmd *cobra.Command, source, target string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
		return a.Sync(cmd.Context(), source, target, opts)
	}),
}

var bisyncCmd = &cobra.Command{
	Use:   "bisync A B",
	Short: "Reconcile two directories in both directions",
	Args:  cobra.ExactArgs(2),
	RunE: runSync(func(a *app.TVApp, cmd *cobra.Command, pathA, pathB string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
		return a.Bisync(cmd.Context(), pathA, pathB, opts)
	}),
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up a directory",
}

var backupIncrementalCmd = &cobra.Command{
	Use:   "incremental SOURCE BACKUP_ROOT",
	Short: "Copy SOURCE into a new timestamped directory under BACKUP_ROOT",
	Args:  cobra.ExactArgs(2),
	RunE: runSync(func(a *app.TVApp, cmd *cobra.Command, source, root string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
		res := a.IncrementalBackup(cmd.Context(), source, root, opts)
		if res.Success && !jsonOutput {
			fmt.Printf("Backup directory: %s\n", res.Data.Target)
		}
		return res
	}),
}

var backupMirrorCmd = &cobra.Command{
	Use:   "mirror SOURCE DEST",
	Short: "Make DEST an exact replica of SOURCE",
	Args:  cobra.ExactArgs(2),
	RunE: runSync(func(a *app.TVApp, cmd *cobra.Command, source, dest string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
		return a.MirrorBackup(cmd.Context(), source, dest, opts)
	}),
}

func init() {
	addSyncFlags(syncCmd, flagsOneWay)
	addSyncFlags(bisyncCmd, flagsBidirectional)
	addSyncFlags(backupIncrementalCmd, flagsBackup)
	addSyncFlags(backupMirrorCmd, flagsBackup)

	backupCmd.AddCommand(backupIncrementalCmd)
	backupCmd.AddCommand(backupMirrorCmd)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(bisyncCmd)
	rootCmd.AddCommand(backupCmd)
}
