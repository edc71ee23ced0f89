// Package config provides application configuration management with support for command-line flags, environment variables, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Store  StoreConfig
	Images ImageConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StoreConfig selects and locates the category store.
type StoreConfig struct {
	Driver   string // badger or sqlite (default: badger)
	DataPath string // Base directory for database files
}

// ImageConfig holds category image storage configuration.
type ImageConfig struct {
	BasePath          string   // Root directory for stored images (default: {data}/images)
	CategoryFolder    string   // Folder under BasePath for category images
	MaxFileSize       int64    // Upload limit in bytes
	AllowedExtensions []string // Lower-case, dot-prefixed
}

// DatabasePath returns the on-disk location for the configured driver.
func (c *Config) DatabasePath() string {
	if c.Store.Driver == DriverSQLite {
		return filepath.Join(c.Store.DataPath, "catalog.sqlite")
	}
	return filepath.Join(c.Store.DataPath, "badger")
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// args excludes the program name. Arguments left after flag parsing are returned
// so commands can read their own positional arguments.
func LoadConfig(args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for database files")
	driver := fs.String("store", "", "Store driver (badger, sqlite)")
	imagePath := fs.String("image-path", "", "Base path for stored images (default: {data}/images)")
	imageFolder := fs.String("image-folder", "", "Folder for category images (default: categories)")
	maxImageSize := fs.String("max-image-size", "", "Maximum image upload size in bytes (default: 2097152)")
	imageExtensions := fs.String("image-extensions", "", "Comma separated allowed image extensions")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// Missing .env files are fine. godotenv never overrides variables that are already set.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("load env file %q: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getConfigValue(*driver, "STORE_DRIVER", DriverBadger)),
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Images: ImageConfig{
			BasePath:          getConfigValue(*imagePath, "IMAGE_PATH", ""),
			CategoryFolder:    getConfigValue(*imageFolder, "CATEGORY_IMAGE_FOLDER", "categories"),
			AllowedExtensions: parseExtensions(getConfigValue(*imageExtensions, "IMAGE_EXTENSIONS", ".jpg,.jpeg,.png,.webp")),
		},
	}

	maxSize, err := getInt64ConfigValue(*maxImageSize, "MAX_IMAGE_SIZE", 2<<20)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid max image size: %w", err)
	}
	cfg.Images.MaxFileSize = maxSize

	if err := cfg.expandPaths(); err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, fs.Args(), nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Store.Driver != DriverBadger && c.Store.Driver != DriverSQLite {
		return fmt.Errorf("invalid store driver: %s (must be badger or sqlite)", c.Store.Driver)
	}

	if c.Store.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Images.CategoryFolder == "" || strings.ContainsAny(c.Images.CategoryFolder, `/\`) {
		return fmt.Errorf("invalid category image folder: %q", c.Images.CategoryFolder)
	}

	if c.Images.MaxFileSize <= 0 {
		return fmt.Errorf("max image size must be positive, got %d", c.Images.MaxFileSize)
	}

	if len(c.Images.AllowedExtensions) == 0 {
		return errors.New("at least one image extension must be allowed")
	}

	return nil
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dataPath, err := expandPath(c.Store.DataPath, filepath.Join(homeDir, "ShelfKeeper", "data"))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	c.Store.DataPath = dataPath

	imagePath, err := expandPath(c.Images.BasePath, filepath.Join(dataPath, "images"))
	if err != nil {
		return fmt.Errorf("invalid image path: %w", err)
	}
	c.Images.BasePath = imagePath

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty the default is used as is.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getInt64ConfigValue returns an int64 from flag, env var, or default.
func getInt64ConfigValue(flagValue, envKey string, defaultValue int64) (int64, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	return strconv.ParseInt(strValue, 10, 64)
}

// parseExtensions normalizes a comma separated list into ".ext" entries.
func parseExtensions(raw string) []string {
	var exts []string
	for _, part := range strings.Split(raw, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}
