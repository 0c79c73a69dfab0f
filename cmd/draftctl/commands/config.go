package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"

	"github.com/arloliu/draftsync"
)

// Config is the draftctl configuration. Env var overrides use prefix DRAFTSYNC_,
// e.g. DRAFTSYNC_STORAGE_BACKEND=sqlite.
type Config struct {
	NATS      NATSConfig
	Storage   StorageConfig
	Emergency EmergencyConfig
	Metrics   MetricsConfig
	Log       LogConfig
	Draftsync draftsync.Config
}

// NATSConfig holds the connection settings.
type NATSConfig struct {
	URL  string
	Name string
}

// StorageConfig selects the storage adapter.
type StorageConfig struct {
	// Backend is one of memory, nats or sqlite.
	Backend    string
	SQLitePath string
}

// EmergencyConfig locates the emergency log.
type EmergencyConfig struct {
	// Path is the Badger directory. Empty keeps records in memory.
	Path string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics. Empty disables it.
	Addr      string
	Namespace string
}

// LogConfig controls logging.
type LogConfig struct {
	Level string
}

const (
	backendMemory = "memory"
	backendNATS   = "nats"
	backendSQLite = "sqlite"
)

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "draftsync")
}

// LoadConfig reads configuration from cfgPath (or ~/.config/draftsync/config.yaml when
// empty, if present) and the environment, then applies library defaults.
func LoadConfig(cfgPath string) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("nats.url", nats.DefaultURL)
	v.SetDefault("nats.name", "draftctl")
	v.SetDefault("storage.backend", backendNATS)
	v.SetDefault("storage.sqlitepath", filepath.Join(dataDir(), "drafts.db"))
	v.SetDefault("emergency.path", filepath.Join(dataDir(), "emergency"))
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.namespace", "draftsync")
	v.SetDefault("log.level", "info")

	v.SetConfigType("yaml")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "draftsync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DRAFTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if err := checkBackend(c.Storage.Backend); err != nil {
		return Config{}, err
	}

	draftsync.SetDefaults(&c.Draftsync)
	if err := c.Draftsync.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", draftsync.ErrInvalidConfig, err)
	}

	return c, nil
}
