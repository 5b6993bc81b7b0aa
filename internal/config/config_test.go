package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:       "/home/user/.local/share/tv",
		LogDir:        "/home/user/.local/share/tv/log",
		LogLevel:      "debug",
		LogMaxSizeMB:  5,
		LogMaxBackups: 2,
		LogMaxAgeDays: 7,
		Journal:       JournalConfig{Type: "sqlite", DataDir: "/home/user/.local/share/tv/db"},
		Engine: EngineConfig{
			Workers:          4,
			HashAlgorithm:    "sha512",
			Exclude:          []string{"*.log", ".git"},
			MaxVersions:      5,
			StoreMetadata:    true,
			OperationTimeout: Duration{90 * time.Second},
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
			{Type: "s3", Name: "offsite", S3Bucket: "b", S3Region: "eu-west-1", S3Endpoint: "http://localhost:9000", S3UsePathStyle: true},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/tv/keys/tv.pub",
			PrivateKeyPath: "/home/user/.local/share/tv/keys/tv.key",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), `operation_timeout = "1m30s"`) {
		t.Errorf("operation_timeout not written as a duration string:\n%s", buf.String())
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", got.LogLevel)
	}
	if got.Journal.Type != "sqlite" {
		t.Errorf("Journal.Type = %q, want %q", got.Journal.Type, "sqlite")
	}
	if got.Engine.OperationTimeout.Duration != 90*time.Second {
		t.Errorf("Engine.OperationTimeout = %v, want 90s", got.Engine.OperationTimeout)
	}
	if got.Engine.HashAlgorithm != "sha512" || got.Engine.Workers != 4 || got.Engine.MaxVersions != 5 {
		t.Errorf("Engine = %+v", got.Engine)
	}
	if len(got.Engine.Exclude) != 2 {
		t.Fatalf("len(Engine.Exclude) = %d, want 2", len(got.Engine.Exclude))
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("len(Vaults) = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[0].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vaults[0].FSVaultRoot, "/backup/vault")
	}
	if !got.Vaults[1].S3UsePathStyle || got.Vaults[1].S3Endpoint != "http://localhost:9000" {
		t.Errorf("s3 vault = %+v", got.Vaults[1])
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
}

func TestManager_Read_InvalidDuration(t *testing.T) {
	m := &Manager{}
	_, err := m.Read(strings.NewReader("[engine]\noperation_timeout = \"soon\"\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/tv")

	if cfg.BaseDir != "/data/tv" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/tv")
	}
	if cfg.LogDir != filepath.Join("/data/tv", "log") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Journal.DataDir != filepath.Join("/data/tv", "db") {
		t.Errorf("Journal.DataDir = %q", cfg.Journal.DataDir)
	}
	if cfg.Engine.MaxVersions != 10 {
		t.Errorf("Engine.MaxVersions = %d, want 10", cfg.Engine.MaxVersions)
	}
	if cfg.Encryption.PublicKeyPath != filepath.Join("/data/tv", "keys", "tv.pub") {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
}

func TestConfig_Vault(t *testing.T) {
	cfg := &Config{Vaults: []VaultConfig{{Name: "a"}, {Name: "b"}}}

	tests := []struct {
		name    string
		lookup  string
		want    string
		wantErr bool
	}{
		{name: "empty name selects first", lookup: "", want: "a"},
		{name: "named lookup", lookup: "b", want: "b"},
		{name: "unknown name", lookup: "c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.Vault(tt.lookup)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Vault() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.Name != tt.want {
				t.Errorf("Vault() = %q, want %q", got.Name, tt.want)
			}
		})
	}

	if _, err := (&Config{}).Vault(""); err == nil {
		t.Error("expected error when no vaults are configured")
	}
}

func TestInit(t *testing.T) {
	t.Run("writes a readable config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "tv.toml")
		if err := Init(path, NewConfig("/data/tv")); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		cfg, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if cfg.BaseDir != "/data/tv" {
			t.Errorf("BaseDir = %q", cfg.BaseDir)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tv.toml")
		if err := os.WriteFile(path, []byte("base_dir = \"x\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := Init(path, NewConfig("/data/tv")); err == nil {
			t.Fatal("expected error for existing config")
		}
		data, _ := os.ReadFile(path)
		if string(data) != "base_dir = \"x\"\n" {
			t.Error("existing config was modified")
		}
	})
}
