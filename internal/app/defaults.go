package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the locations tv uses when the config does not say otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves default paths from the environment:
//   - TV_CONFIG_PATH, else $XDG_CONFIG_HOME/tv.toml, else ~/.config/tv.toml
//   - TV_HOME, else $XDG_DATA_HOME/tv, else ~/.local/share/tv
//
// The log directory is always <base>/log.
func GetDefaults() (*Defaults, error) {
	configPath, err := envOrHome("TV_CONFIG_PATH", "XDG_CONFIG_HOME", "tv.toml", ".config")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome("TV_HOME", "XDG_DATA_HOME", "tv", ".local", "share")
	if err != nil {
		return nil, err
	}
	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns $override, then $xdg/name, then ~/<homeDirs...>/name.
func envOrHome(override, xdg, name string, homeDirs ...string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdg); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	parts := append([]string{homeDir}, homeDirs...)
	return filepath.Join(append(parts, name)...), nil
}
