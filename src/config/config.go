package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

const (
	EnvFileEnvVar      = "SNIPPING_TOOL_ENV"
	CaptureModeEnvVar  = "CAPTURE_MODE"
	CaptureModePreview = "preview"
	CaptureModeRelay   = "relay"

	DefaultHotkey      = "Ctrl+Shift+S"
	DefaultHideDelayMS = 150
	DefaultDataDir     = "~/.snipping-tool"
	DefaultDownloads   = "~/Downloads"
)

type LoadOptions struct {
	EnvPathOverride     string
	CaptureModeOverride string
	DataDirOverride     string
}

type Config struct {
	EnableFileLogging bool
	Hotkey            string
	CaptureMode       string
	HideDelay         time.Duration
	DevicePixelRatio  float64
	DataDir           string
	DownloadsDir      string
}

// PreferencesPath is the YAML preferences file inside DataDir.
func (c *Config) PreferencesPath() string { return filepath.Join(c.DataDir, "preferences.yaml") }

// HandleStorePath is the SQLite database holding the directory handle.
func (c *Config) HandleStorePath() string { return filepath.Join(c.DataDir, "handles.db") }

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) explicit override path
	// 2) .env in the application (executable) directory
	// 3) If not found, use SNIPPING_TOOL_ENV env var as a path to a config file
	envPath := strings.TrimSpace(opts.EnvPathOverride)
	if envPath == "" {
		envPath = resolveEnvPath()
	}
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	hideDelayMS := DefaultHideDelayMS
	if v := os.Getenv("HIDE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			hideDelayMS = n
		}
	}

	// Zero derives the ratio from each capture. Leave it unset when the
	// process is DPI aware: pointer and capture already share physical pixels.
	dpr := 0.0
	if v := os.Getenv("DEVICE_PIXEL_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			dpr = f
		}
	}

	dataDir := getEnvWithDefault("DATA_DIR", DefaultDataDir)
	if override := strings.TrimSpace(opts.DataDirOverride); override != "" {
		dataDir = override
	}
	dataDir, err := expandPath(dataDir)
	if err != nil {
		return nil, err
	}
	downloads, err := expandPath(getEnvWithDefault("DOWNLOADS_DIR", DefaultDownloads))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		CaptureMode:       resolveCaptureModeValue(opts),
		HideDelay:         time.Duration(hideDelayMS) * time.Millisecond,
		DevicePixelRatio:  dpr,
		DataDir:           dataDir,
		DownloadsDir:      downloads,
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func expandPath(p string) (string, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(p))
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func resolveCaptureMode(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case CaptureModeRelay, "popup":
		return CaptureModeRelay
	default:
		return CaptureModePreview
	}
}

func resolveCaptureModeValue(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.CaptureModeOverride); override != "" {
		return resolveCaptureMode(override)
	}
	return resolveCaptureMode(os.Getenv(CaptureModeEnvVar))
}
