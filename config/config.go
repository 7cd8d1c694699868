package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. MESHTRANS_MQTT_BROKER
const EnvPrefix = "MESHTRANS"

// Config is the application configuration
type Config struct {
	MQTT    MQTTConfig        `mapstructure:"mqtt"`
	Nodes   map[string]string `mapstructure:"nodes"`
	Scripts map[string]Script `mapstructure:"scripts"`
	Storage StorageConfig     `mapstructure:"storage"`
	Logger  LoggerConfig      `mapstructure:"logger"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
}

// MQTTConfig is the broker connection and subscription setup
type MQTTConfig struct {
	Broker   string   `mapstructure:"broker"`
	ClientID string   `mapstructure:"client_id"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Topics   []string `mapstructure:"topics"`
	QoS      int      `mapstructure:"qos"`
}

// Script is a JavaScript rule for one message type
type Script struct {
	ScriptPath string `mapstructure:"script_path"`
	ScriptCode string `mapstructure:"script_code"`
}

// LoggerConfig is the logging setup
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// StorageConfig lists the enabled storage backends
type StorageConfig struct {
	File     FileStorageConfig     `mapstructure:"file"`
	Database DatabaseStorageConfig `mapstructure:"database"`
}

// FileStorageConfig is the JSON lines file backend
type FileStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DatabaseStorageConfig is the SQL backend: mysql, postgresql or sqlite
type DatabaseStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"`
	DSN     string `mapstructure:"dsn"`
}

// ConfigChangeCallback is called with the new configuration after the file changes
type ConfigChangeCallback func(cfg *Config) error

// Loader reads and watches one configuration file
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader with defaults and env overrides applied
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return &Loader{v: v, path: configPath}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topics", []string{"msh/+/2/json/#"})
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("logger.level", "INFO")
	v.SetDefault("logger.file_path", "./logs/mesh-trans.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.console", true)
	v.SetDefault("metrics.listen", ":9464")
	v.SetDefault("storage.file.path", "./data")
}

// Load reads the configuration file
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &config, nil
}

// LoadConfig loads the configuration file at configPath
func LoadConfig(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Watch calls callback whenever the configuration file is written.
// Bursts of writes within debounceInterval are collapsed into one call.
func (l *Loader) Watch(callback ConfigChangeCallback, onError func(error)) error {
	absPath, err := filepath.Abs(l.path)
	if err != nil {
		return err
	}

	l.v.SetConfigFile(absPath)
	l.v.WatchConfig()

	var (
		mu             sync.Mutex
		lastChangeTime time.Time
	)
	const debounceInterval = 2 * time.Second

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) {
			return
		}

		mu.Lock()
		now := time.Now()
		if now.Sub(lastChangeTime) < debounceInterval {
			mu.Unlock()
			return
		}
		lastChangeTime = now
		mu.Unlock()

		newConfig, err := l.unmarshal()
		if err == nil {
			err = callback(newConfig)
		}
		if err != nil && onError != nil {
			onError(fmt.Errorf("apply config change from %s: %w", e.Name, err))
		}
	})

	return nil
}
