package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Parser struct {
		Language   string `yaml:"language"`   // typescript | tsx
		Reclassify string `yaml:"reclassify"` // prefix | marker | never
	} `yaml:"parser"`
	Generator struct {
		Markers bool `yaml:"markers"`
	} `yaml:"generator"`
	Sync struct {
		CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`
		LayoutDirection     string        `yaml:"layout_direction"`
	} `yaml:"sync"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Database.Path = "clast.db"
	cfg.Server.Addr = ":8080"
	cfg.Parser.Language = "typescript"
	cfg.Parser.Reclassify = "prefix"
	cfg.Sync.CollaboratorTimeout = 2 * time.Second
	cfg.Sync.LayoutDirection = "TB"
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config over the defaults
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if v := os.Getenv("CLAST_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CLAST_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CLAST_LANGUAGE"); v != "" {
		cfg.Parser.Language = v
	}
	if v := os.Getenv("CLAST_RECLASSIFY"); v != "" {
		cfg.Parser.Reclassify = v
	}
	if v := os.Getenv("CLAST_MARKERS"); v != "" {
		markers, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CLAST_MARKERS: %w", err)
		}
		cfg.Generator.Markers = markers
	}

	if cfg.Sync.CollaboratorTimeout <= 0 {
		return nil, fmt.Errorf("sync.collaborator_timeout must be positive, got %s", cfg.Sync.CollaboratorTimeout)
	}

	return cfg, nil
}
