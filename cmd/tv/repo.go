package main

import (
	"fmt"
	"strings"

	"tv-go/internal/model"
	"tv-go/internal/tv"

	"github.com/spf13/cobra"
)

// repoPath returns the --repo flag as an absolute path.
func repoPath(cmd *cobra.Command) (string, error) {
	p, _ := cmd.Flags().GetString("repo")
	return absPath(p)
}

func printVersion(v *model.FileVersion) {
	fmt.Printf("%s  v%-3d  %s  %10d  %.12s  %s\n",
		v.ID, v.Version, formatTime(v.Timestamp), v.Size, v.ContentHash, v.Comment)
}

// repo command
var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage version repositories",
}

var repoInitCmd = &cobra.Command{
	Use:   "init [BASE]",
	Short: "Create a repository tracking BASE (default: current directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base := "."
		if len(args) > 0 {
			base = args[0]
		}
		base, err := absPath(base)
		if err != nil {
			return err
		}
		repository := ""
		if cmd.Flags().Changed("repo") {
			if repository, err = repoPath(cmd); err != nil {
				return err
			}
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts := a.RepositoryDefaults()
		f := cmd.Flags()
		if f.Changed("max-versions") {
			opts.MaxVersions, _ = f.GetInt("max-versions")
		}
		exclude, _ := f.GetStringSlice("exclude")
		opts.ExcludePatterns = append(opts.ExcludePatterns, exclude...)
		opts.IncludeHidden, _ = f.GetBool("include-hidden")
		if f.Changed("payload") {
			opts.DuplicateSnapshots, _ = f.GetBool("payload")
		}

		return emit(a.InitRepository(cmd.Context(), base, repository, opts), func(r *model.VersionRepository) {
			fmt.Printf("Repository ID: %s\n", r.ID)
		})
	},
}

var repoStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a repository",
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

		return emit(a.RepositoryStats(cmd.Context(), repository), func(s *tv.RepositoryStats) {
			r := s.Repository
			fmt.Printf("Base Path:     %s\n", r.BasePath)
			fmt.Printf("Max Versions:  %d\n", r.MaxVersions)
			fmt.Printf("Created:       %s\n", formatTime(r.Created))
			if r.LastSnapshot != nil {
				fmt.Printf("Last Snapshot: %s\n", formatTime(*r.LastSnapshot))
			}
		})
	},
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage file versions",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Commit the current content of FILE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		file, err := absPath(args[0])
		if err != nil {
			return err
		}

		f := cmd.Flags()
		var opts tv.VersionOptions
		opts.Comment, _ = f.GetString("comment")
		opts.Author, _ = f.GetString("author")
		opts.Tags, _ = f.GetStringSlice("tag")
		opts.DryRun, _ = f.GetBool("dry-run")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emit(a.CreateVersion(cmd.Context(), file, repository, opts), func(v *model.FileVersion) {
			fmt.Printf("Version ID: %s\n", v.ID)
		})
	},
}

var versionHistoryCmd = &cobra.Command{
	Use:   "history FILE",
	Short: "List the stored versions of FILE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		file, err := absPath(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emit(a.VersionHistory(cmd.Context(), file, repository), func(vs []*model.FileVersion) {
			for _, v := range vs {
				printVersion(v)
			}
		})
	},
}

var versionShowCmd = &cobra.Command{
	Use:   "show VERSION_ID",
	Short: "Show a version record",
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

		return emit(a.GetVersion(cmd.Context(), repository, args[0]), func(v *model.FileVersion) {
			fmt.Printf("File:      %s\n", v.FilePath)
			fmt.Printf("Created:   %s\n", formatTime(v.Timestamp))
			fmt.Printf("Size:      %d\n", v.Size)
			fmt.Printf("Digest:    %s:%s\n", v.Algorithm, v.ContentHash)
			if v.Author != "" {
				fmt.Printf("Author:    %s\n", v.Author)
			}
			if v.Comment != "" {
				fmt.Printf("Comment:   %s\n", v.Comment)
			}
			if len(v.Tags) > 0 {
				fmt.Printf("Tags:      %s\n", strings.Join(v.Tags, ", "))
			}
			if md := v.Metadata; md != nil {
				fmt.Printf("Modified:  %s\n", formatTime(md.ModifiedAt))
				if md.MIMEType != "" {
					fmt.Printf("MIME Type: %s\n", md.MIMEType)
				}
			}
		})
	},
}

var versionRestoreCmd = &cobra.Command{
	Use:   "restore VERSION_ID",
	Short: "Overwrite a file with a stored version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := repoPath(cmd)
		if err != nil {
			return err
		}
		target, _ := cmd.Flags().GetString("to")
		if target != "" {
			if target, err = absPath(target); err != nil {
				return err
			}
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emit(a.RestoreVersion(cmd.Context(), target, repository, args[0], tv.RestoreOptions{DryRun: dryRun}), nil)
	},
}

var versionCompareCmd = &cobra.Command{
	Use:   "compare VERSION_ID VERSION_ID",
	Short: "Compare two versions",
	Args:  cobra.ExactArgs(2),
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

		return emit(a.CompareVersions(cmd.Context(), repository, args[0], args[1]), nil)
	},
}

var versionDeleteCmd = &cobra.Command{
	Use:   "delete VERSION_ID",
	Short: "Delete a version and its stored content",
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

		return emit(a.DeleteVersion(cmd.Context(), repository, args[0]), nil)
	},
}

func init() {
	for _, c := range []*cobra.Command{repoCmd, versionCmd, snapshotCmd} {
		c.PersistentFlags().String("repo", ".tv", "Repository directory")
	}

	repoInitCmd.Flags().Int("max-versions", 0, "Versions kept per file (default from config)")
	repoInitCmd.Flags().StringSlice("exclude", nil, "Glob pattern to leave untracked (repeatable)")
	repoInitCmd.Flags().Bool("include-hidden", false, "Track dot files and directories")
	repoInitCmd.Flags().Bool("payload", false, "Store file content with every snapshot (default from config)")
	repoCmd.AddCommand(repoInitCmd)
	repoCmd.AddCommand(repoStatsCmd)

	versionCreateCmd.Flags().StringP("comment", "m", "", "Version comment")
	versionCreateCmd.Flags().String("author", "", "Version author")
	versionCreateCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")
	versionCreateCmd.Flags().BoolP("dry-run", "n", false, "Report the version without storing it")
	versionRestoreCmd.Flags().String("to", "", "Restore to this path instead of the original location")
	versionRestoreCmd.Flags().BoolP("dry-run", "n", false, "Report the restore without writing")
	versionCmd.AddCommand(versionCreateCmd)
	versionCmd.AddCommand(versionHistoryCmd)
	versionCmd.AddCommand(versionShowCmd)
	versionCmd.AddCommand(versionRestoreCmd)
	versionCmd.AddCommand(versionCompareCmd)
	versionCmd.AddCommand(versionDeleteCmd)

	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(versionCmd)
}
