// Package config resolves runtime settings for the identity tools: an
// optional YAML file merged over defaults, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lensmint/device-identity/internal/fingerprint"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath       = "DEVICE_IDENTITY_CONFIG"
	EnvSaltPath         = "SALT_PATH"
	EnvSaltBackupPath   = "SALT_BACKUP_PATH"
	EnvCameraID         = "CAMERA_ID"
	EnvExportPath       = "DEVICE_KEY_EXPORT_PATH"
	EnvExportPassphrase = "DEVICE_KEY_EXPORT_PASSPHRASE"
	EnvLogLevel         = "DEVICE_IDENTITY_LOG_LEVEL"

	DefaultSaltPath = "/boot/.device_salt"
	backupDir       = ".lensmint"
	backupFileName  = ".device_salt_backup"
)

type Config struct {
	Salt        SaltConfig
	CameraID    string
	Export      ExportConfig
	Fingerprint fingerprint.Sources
	LogLevel    string
}

type SaltConfig struct {
	PrimaryPath string
	BackupPath  string
}

type ExportConfig struct {
	// Path is empty when the caller should pick its own default.
	Path string
	// Passphrase only ever comes from the environment.
	Passphrase string
}

type FileConfig struct {
	Identity FileIdentityConfig `yaml:"identity"`
}

type FileIdentityConfig struct {
	CameraID    string                `yaml:"cameraId"`
	Salt        FileSaltConfig        `yaml:"salt"`
	Export      FileExportConfig      `yaml:"export"`
	Fingerprint FileFingerprintConfig `yaml:"fingerprint"`
	Log         FileLogConfig         `yaml:"log"`
}

type FileSaltConfig struct {
	PrimaryPath string `yaml:"primaryPath"`
	BackupPath  string `yaml:"backupPath"`
}

type FileExportConfig struct {
	Path string `yaml:"path"`
}

type FileFingerprintConfig struct {
	CPUInfoPath   string   `yaml:"cpuInfoPath"`
	NetClassDir   string   `yaml:"netClassDir"`
	Interfaces    []string `yaml:"interfaces"`
	MachineIDPath string   `yaml:"machineIdPath"`
}

type FileLogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Salt: SaltConfig{
			PrimaryPath: DefaultSaltPath,
			BackupPath:  defaultBackupPath(),
		},
		Fingerprint: fingerprint.DefaultSources(),
		LogLevel:    "info",
	}
}

// Load reads the file named by DEVICE_IDENTITY_CONFIG, or the default
// candidates, and applies environment overrides.
func Load() (Config, error) {
	return LoadFromPath(strings.TrimSpace(os.Getenv(EnvConfigPath)))
}

// LoadFromPath merges configPath over the defaults. An explicitly named file
// must exist and parse, since its salt paths decide which identity the
// device gets; the default candidates are skipped when absent or invalid.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		parsed, err := readFile(configPath)
		if err != nil {
			return Config{}, err
		}
		Merge(&cfg, parsed.Identity)
		ApplyEnvOverrides(&cfg)
		return cfg, nil
	}

	for _, path := range []string{
		"configs/identity.yaml",
		"/etc/lensmint/identity.yaml",
	} {
		parsed, err := readFile(path)
		if err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed.Identity)
		ApplyEnvOverrides(&merged)
		return merged, nil
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

func readFile(path string) (FileConfig, error) {
	var parsed FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return parsed, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return parsed, fmt.Errorf("parse config %s: %w", path, err)
	}
	return parsed, nil
}

func Merge(dst *Config, src FileIdentityConfig) {
	if v := strings.TrimSpace(src.CameraID); v != "" {
		dst.CameraID = v
	}
	if src.Salt.PrimaryPath != "" {
		dst.Salt.PrimaryPath = src.Salt.PrimaryPath
	}
	if src.Salt.BackupPath != "" {
		dst.Salt.BackupPath = src.Salt.BackupPath
	}
	if src.Export.Path != "" {
		dst.Export.Path = src.Export.Path
	}
	if src.Fingerprint.CPUInfoPath != "" {
		dst.Fingerprint.CPUInfoPath = src.Fingerprint.CPUInfoPath
	}
	if src.Fingerprint.NetClassDir != "" {
		dst.Fingerprint.NetClassDir = src.Fingerprint.NetClassDir
	}
	if src.Fingerprint.Interfaces != nil {
		dst.Fingerprint.Interfaces = src.Fingerprint.Interfaces
	}
	if src.Fingerprint.MachineIDPath != "" {
		dst.Fingerprint.MachineIDPath = src.Fingerprint.MachineIDPath
	}
	if src.Log.Level != "" {
		dst.LogLevel = src.Log.Level
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvSaltPath)); v != "" {
		cfg.Salt.PrimaryPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSaltBackupPath)); v != "" {
		cfg.Salt.BackupPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCameraID)); v != "" {
		cfg.CameraID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportPath)); v != "" {
		cfg.Export.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	cfg.Export.Passphrase = os.Getenv(EnvExportPassphrase)
}

func defaultBackupPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, backupDir, backupFileName)
}
