package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tv-go/internal/app"
	"tv-go/internal/config"
	"tv-go/internal/tv"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Exit codes. Each error kind maps to its own code so scripts can tell a
// missing path from a partial failure.
const (
	exitOK           = 0
	exitInternal     = 1
	exitPrecondition = 2
	exitNotFound     = 3
	exitPartial      = 4
	exitAmbiguous    = 5
	exitCancelled    = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	switch tv.KindOf(err) {
	case tv.NotFound:
		return exitNotFound
	case tv.Precondition:
		return exitPrecondition
	case tv.PartialFailure:
		return exitPartial
	case tv.PolicyAmbiguous:
		return exitAmbiguous
	case tv.Cancelled:
		return exitCancelled
	}
	return exitInternal
}

var (
	jsonOutput bool
	verbose    bool
)

// newApp reads the config and creates a TVApp. The caller must defer app.Close().
func newApp() (*app.TVApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, tv.NewError(tv.Precondition, "reading config (run `tv config init` first)", err)
	}

	var stderr io.Writer
	if verbose {
		stderr = os.Stderr
	}
	a, err := app.NewTVApp(cfg, stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// envelope is the --json rendering of an OperationResult.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// emit prints res and returns its error. show renders successful data in
// text mode and may be nil.
func emit[T any](res tv.OperationResult[T], show func(T)) error {
	if jsonOutput {
		env := envelope{Success: res.Success, Message: res.Message, Error: res.ErrorText(), Data: res.Data}
		if res.Error != nil {
			env.Kind = string(tv.KindOf(res.Error))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
	} else {
		fmt.Println(res.Message)
		if res.Success && show != nil {
			show(res.Data)
		}
	}
	if !res.Success {
		return res.Error
	}
	return nil
}

// readPassphrase takes the passphrase from TV_PASSPHRASE or prompts on the
// terminal. With confirm set the prompt is repeated and both entries must match.
func readPassphrase(prompt string, confirm bool) (string, error) {
	if p := os.Getenv("TV_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", tv.NewError(tv.Precondition, "stdin is not a terminal; set TV_PASSPHRASE", nil)
	}

	read := func(prompt string) (string, error) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	p, err := read(prompt)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", tv.NewError(tv.Precondition, "empty passphrase", nil)
	}
	if confirm {
		again, err := read("Confirm passphrase: ")
		if err != nil {
			return "", err
		}
		if again != p {
			return "", tv.NewError(tv.Precondition, "passphrases do not match", nil)
		}
	}
	return p, nil
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return abs, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

var rootCmd = &cobra.Command{
	Use:           "tv",
	Short:         "File sync and versioning",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		cfg.Vaults = []config.VaultConfig{{
			Type:        "filesystem",
			Name:        "local",
			FSVaultRoot: filepath.Join(defaults.BaseDir, "vault"),
		}}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s (level %s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Journal:      %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		fmt.Printf("Hash:         %s\n", cfg.Engine.HashAlgorithm)
		fmt.Printf("Max Versions: %d\n", cfg.Engine.MaxVersions)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:        %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage archive encryption keys",
}

var encryptionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase("New passphrase: ", true)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emit(a.InitEncryption(cmd.Context(), passphrase), func(pub string) {
			if pub != "" {
				fmt.Printf("Public key: %s\n", pub)
			}
		})
	},
}

// vault command
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vaults",
}

var vaultValidateCmd = &cobra.Command{
	Use:   "validate [NAME]",
	Short: "Check that a vault is reachable",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return emit(a.ValidateVault(cmd.Context(), name), nil)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.OperationHistory(limit)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ops)
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-18s  %s  %-10s  %-8s  %s\n",
				op.ID[:8],
				op.Operation,
				formatTime(op.StartedAt),
				op.Status,
				duration,
				op.Message,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mirror log output to stderr")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	encryptionCmd.AddCommand(encryptionInitCmd)
	vaultCmd.AddCommand(vaultValidateCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
