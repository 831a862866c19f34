// Package config loads application settings.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/axsanchezgomez/BandersnatchStarter/db"
	"github.com/axsanchezgomez/BandersnatchStarter/logging"
	"github.com/axsanchezgomez/BandersnatchStarter/monsterlab"
)

// Config is the complete application configuration.
type Config struct {
	Database db.Config      `yaml:"database"`
	Http     HTTPConfig     `yaml:"http"`
	Model    ModelConfig    `yaml:"model"`
	Log      logging.Config `yaml:"log"`
}

type HTTPConfig struct {
	Port         int      `yaml:"port"`
	CacheSize    int      `yaml:"cache_size"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// ModelConfig controls training and the served model file.
type ModelConfig struct {
	Path   string `yaml:"path"`
	Type   string `yaml:"type"`
	Target string `yaml:"target"`
	Trees  int    `yaml:"trees"`
	// MaxDepth limits tree depth; 0 grows trees until leaves are pure.
	MaxDepth    int     `yaml:"max_depth"`
	RandomState int64   `yaml:"random_state"`
	TestRatio   float64 `yaml:"test_ratio"`
	SeedAmount  int     `yaml:"seed_amount"`
}

// Default returns the built-in settings used when no file overrides them.
func Default() *Config {
	dbCfg := db.DefaultConfig()
	dbCfg.ColumnOrder = monsterlab.Columns
	return &Config{
		Database: dbCfg,
		Http: HTTPConfig{
			Port:         8080,
			CacheSize:    1024,
			AllowOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Path:        "models/model.bin",
			Type:        "random_forest",
			Target:      monsterlab.TargetColumn,
			Trees:       100,
			RandomState: 42,
			TestRatio:   0.2,
			SeedAmount:  1000,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing YAML file or .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAML(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DB_URL":     &c.Database.URL,
		"DB_DRIVER":  &c.Database.Driver,
		"DB_PATH":    &c.Database.Path,
		"MODEL_PATH": &c.Model.Path,
		"LOG_LEVEL":  &c.Log.Level,
		"LOG_FILE":   &c.Log.File,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	// The hosted deployment only sets DB_URL.
	if _, ok := os.LookupEnv("DB_DRIVER"); !ok && c.Database.URL != "" {
		c.Database.Driver = db.DriverMongo
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: HTTP_PORT: %w", err)
		}
		c.Http.Port = port
	}
	return nil
}

// Validate rejects settings the server and trainer cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("config: database.path required for sqlite")
		}
	case db.DriverMongo:
		if c.Database.URL == "" {
			return errors.New("config: database.url required for mongo")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("config: invalid http port %d", c.Http.Port)
	}
	if c.Model.Path == "" {
		return errors.New("config: model.path required")
	}
	if c.Model.Target == "" {
		return errors.New("config: model.target required")
	}
	if c.Model.Trees <= 0 {
		return fmt.Errorf("config: model.trees must be positive, got %d", c.Model.Trees)
	}
	if c.Model.MaxDepth < 0 {
		return fmt.Errorf("config: model.max_depth must not be negative, got %d", c.Model.MaxDepth)
	}
	if c.Model.SeedAmount <= 0 || c.Model.SeedAmount > db.MaxSeedAmount {
		return fmt.Errorf("config: model.seed_amount must be in [1, %d], got %d", db.MaxSeedAmount, c.Model.SeedAmount)
	}
	if c.Model.TestRatio <= 0 || c.Model.TestRatio >= 1 {
		return fmt.Errorf("config: model.test_ratio must be in (0, 1), got %v", c.Model.TestRatio)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
