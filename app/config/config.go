package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"PosPrint/app/models"
	"PosPrint/app/security"
)

// AppConfig holds all application configuration. The three binaries share
// one file; each reads the sections it needs.
type AppConfig struct {
	// DataDir holds the local database, the encryption key, logs and spooled PDFs
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Database Configuration
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Station (POS terminal) Configuration
	Station StationConfig `json:"station" mapstructure:"station"`

	// Remote print queue Configuration
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Local print agent Configuration
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// DatabaseConfig holds main database connection settings
type DatabaseConfig struct {
	Driver   string `json:"driver" mapstructure:"driver"` // postgres or sqlite
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	SSLMode  string `json:"ssl_mode" mapstructure:"ssl_mode"`
	Path     string `json:"path" mapstructure:"path"` // sqlite file
}

// StationConfig holds POS terminal settings
type StationConfig struct {
	Listen               string                     `json:"listen" mapstructure:"listen"`
	Currency             string                     `json:"currency" mapstructure:"currency"`
	BusinessName         string                     `json:"business_name" mapstructure:"business_name"`
	Address              string                     `json:"address" mapstructure:"address"`
	Phone                string                     `json:"phone" mapstructure:"phone"`
	Printers             []models.PrinterDescriptor `json:"printers" mapstructure:"printers"`
	QueueURL             string                     `json:"queue_url" mapstructure:"queue_url"`
	AgentProbeURL        string                     `json:"agent_probe_url" mapstructure:"agent_probe_url"`
	AgentKey             string                     `json:"agent_key" mapstructure:"agent_key"`
	BrowserFallback      bool                       `json:"browser_fallback" mapstructure:"browser_fallback"`
	SpoolDir             string                     `json:"spool_dir" mapstructure:"spool_dir"`
	ConnectivityInterval time.Duration              `json:"connectivity_interval" mapstructure:"connectivity_interval"`
}

// QueueConfig holds remote job queue settings
type QueueConfig struct {
	Listen            string        `json:"listen" mapstructure:"listen"`
	VisibilityTimeout time.Duration `json:"visibility_timeout" mapstructure:"visibility_timeout"`
	ReapInterval      time.Duration `json:"reap_interval" mapstructure:"reap_interval"`
	MaxAttempts       int           `json:"max_attempts" mapstructure:"max_attempts"`
	AgentKeyHash      string        `json:"agent_key_hash" mapstructure:"agent_key_hash"` // bcrypt, empty disables agent auth
	RabbitMQURL       string        `json:"rabbitmq_url" mapstructure:"rabbitmq_url"`
	MDNS              bool          `json:"mdns" mapstructure:"mdns"`
	InstanceName      string        `json:"instance_name" mapstructure:"instance_name"`
}

// AgentConfig holds local print agent settings
type AgentConfig struct {
	ID           string                     `json:"id" mapstructure:"id"`
	Listen       string                     `json:"listen" mapstructure:"listen"`
	QueueURL     string                     `json:"queue_url" mapstructure:"queue_url"` // empty: browse mDNS
	Key          string                     `json:"key" mapstructure:"key"`
	PollInterval time.Duration              `json:"poll_interval" mapstructure:"poll_interval"`
	Printers     []models.PrinterDescriptor `json:"printers" mapstructure:"printers"`
}

// LogConfig defines logger settings
type LogConfig struct {
	Level       string `json:"level" mapstructure:"level"`
	Format      string `json:"format" mapstructure:"format"` // console or json
	Dir         string `json:"dir" mapstructure:"dir"`       // empty: stdout only
	MaxSizeMB   int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups  int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays  int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress    bool   `json:"compress" mapstructure:"compress"`
	Development bool   `json:"development" mapstructure:"development"`
}

// Default returns a configuration usable on a single machine
func Default() *AppConfig {
	return &AppConfig{
		DataDir: "./data",
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			Database: "posprint",
			Username: "postgres",
			SSLMode:  "disable",
		},
		Station: StationConfig{
			Listen:               "127.0.0.1:8080",
			Currency:             "$",
			AgentProbeURL:        "http://localhost:8765/health",
			BrowserFallback:      true,
			ConnectivityInterval: 15 * time.Second,
		},
		Queue: QueueConfig{
			Listen:            ":8090",
			VisibilityTimeout: 2 * time.Minute,
			ReapInterval:      30 * time.Second,
			MaxAttempts:       3,
			MDNS:              true,
			InstanceName:      "PosPrint Queue",
		},
		Agent: AgentConfig{
			Listen:       ":8765",
			PollInterval: 3 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// GetConfigPath returns the config file location: POSPRINT_CONFIG when set,
// otherwise config.json in the working directory.
func GetConfigPath() string {
	if p := os.Getenv("POSPRINT_CONFIG"); p != "" {
		return p
	}
	return "config.json"
}

// LoadEnv loads a .env file when present. Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("could not load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig reads configuration from path (or GetConfigPath when empty),
// applies POSPRINT_* environment overrides and decrypts sensitive fields.
// A missing file yields the defaults.
// Example: POSPRINT_QUEUE_LISTEN=:9000
func LoadConfig(path string) (*AppConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("POSPRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	seedDefaults(v, cfg)

	if path == "" {
		path = GetConfigPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	if err := cfg.decryptSensitiveFields(); err != nil {
		return nil, fmt.Errorf("could not decrypt sensitive fields: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedDefaults registers every scalar key so env-only configs work
func seedDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("data_dir", cfg.DataDir)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.database", cfg.Database.Database)
	v.SetDefault("database.username", cfg.Database.Username)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	v.SetDefault("database.path", cfg.Database.Path)

	v.SetDefault("station.listen", cfg.Station.Listen)
	v.SetDefault("station.currency", cfg.Station.Currency)
	v.SetDefault("station.business_name", cfg.Station.BusinessName)
	v.SetDefault("station.address", cfg.Station.Address)
	v.SetDefault("station.phone", cfg.Station.Phone)
	v.SetDefault("station.queue_url", cfg.Station.QueueURL)
	v.SetDefault("station.agent_probe_url", cfg.Station.AgentProbeURL)
	v.SetDefault("station.agent_key", cfg.Station.AgentKey)
	v.SetDefault("station.browser_fallback", cfg.Station.BrowserFallback)
	v.SetDefault("station.spool_dir", cfg.Station.SpoolDir)
	v.SetDefault("station.connectivity_interval", cfg.Station.ConnectivityInterval)

	v.SetDefault("queue.listen", cfg.Queue.Listen)
	v.SetDefault("queue.visibility_timeout", cfg.Queue.VisibilityTimeout)
	v.SetDefault("queue.reap_interval", cfg.Queue.ReapInterval)
	v.SetDefault("queue.max_attempts", cfg.Queue.MaxAttempts)
	v.SetDefault("queue.agent_key_hash", cfg.Queue.AgentKeyHash)
	v.SetDefault("queue.rabbitmq_url", cfg.Queue.RabbitMQURL)
	v.SetDefault("queue.mdns", cfg.Queue.MDNS)
	v.SetDefault("queue.instance_name", cfg.Queue.InstanceName)

	v.SetDefault("agent.id", cfg.Agent.ID)
	v.SetDefault("agent.listen", cfg.Agent.Listen)
	v.SetDefault("agent.queue_url", cfg.Agent.QueueURL)
	v.SetDefault("agent.key", cfg.Agent.Key)
	v.SetDefault("agent.poll_interval", cfg.Agent.PollInterval)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.dir", cfg.Log.Dir)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)
	v.SetDefault("log.development", cfg.Log.Development)
}

// Validate normalizes fields and rejects unusable values
func (cfg *AppConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", cfg.Log.Level)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "postgres":
	case "sqlite":
		if cfg.Database.Path == "" {
			cfg.Database.Path = filepath.Join(cfg.DataDir, "posprint.db")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", cfg.Database.Driver)
	}

	for i := range cfg.Station.Printers {
		if err := normalizePrinter(&cfg.Station.Printers[i]); err != nil {
			return fmt.Errorf("station.printers[%d]: %w", i, err)
		}
	}
	for i := range cfg.Agent.Printers {
		if err := normalizePrinter(&cfg.Agent.Printers[i]); err != nil {
			return fmt.Errorf("agent.printers[%d]: %w", i, err)
		}
	}

	if cfg.Station.SpoolDir == "" {
		cfg.Station.SpoolDir = filepath.Join(cfg.DataDir, "spool")
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 3
	}
	return nil
}

func normalizePrinter(p *models.PrinterDescriptor) error {
	paper, err := models.ParsePaperFormat(string(p.PaperFormat))
	if err != nil {
		return err
	}
	p.PaperFormat = paper
	p.Role = models.PrinterRole(strings.ToLower(string(p.Role)))
	p.Transport = models.TransportType(strings.ToLower(string(p.Transport)))
	return p.Validate()
}

// LocalDBPath returns the station's offline database file
func (cfg *AppConfig) LocalDBPath() string {
	return filepath.Join(cfg.DataDir, "local.db")
}

// PrinterFor returns the first station printer configured for role
func (s StationConfig) PrinterFor(role models.PrinterRole) (models.PrinterDescriptor, bool) {
	for _, p := range s.Printers {
		if p.Role == role {
			return p, true
		}
	}
	return models.PrinterDescriptor{}, false
}

// SaveConfig writes configuration to path after encrypting sensitive fields
func SaveConfig(cfg *AppConfig, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	// Encrypt a copy so the caller keeps plain values
	cfgCopy := *cfg
	if err := cfgCopy.encryptSensitiveFields(); err != nil {
		return fmt.Errorf("could not encrypt sensitive fields: %w", err)
	}

	data, err := json.MarshalIndent(&cfgCopy, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create config directory: %w", err)
		}
	}

	// Write to file with restrictive permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}
	return nil
}

// sensitiveFields lists the values sealed at rest
func (cfg *AppConfig) sensitiveFields() map[string]*string {
	return map[string]*string{
		"database password": &cfg.Database.Password,
		"rabbitmq url":      &cfg.Queue.RabbitMQURL,
		"station agent key": &cfg.Station.AgentKey,
		"agent key":         &cfg.Agent.Key,
	}
}

// encryptSensitiveFields encrypts sensitive configuration fields
func (cfg *AppConfig) encryptSensitiveFields() error {
	keys := security.NewKeyStore(cfg.DataDir)
	for name, field := range cfg.sensitiveFields() {
		if *field == "" {
			continue
		}
		sealed, err := keys.Encrypt(*field)
		if err != nil {
			return fmt.Errorf("could not encrypt %s: %w", name, err)
		}
		*field = sealed
	}
	return nil
}

// decryptSensitiveFields decrypts sensitive configuration fields.
// A value that does not decrypt is kept as plain text (development setups).
func (cfg *AppConfig) decryptSensitiveFields() error {
	keys := security.NewKeyStore(cfg.DataDir)
	for _, field := range cfg.sensitiveFields() {
		if *field == "" || !security.LooksSealed(*field) {
			continue
		}
		if plain, err := keys.Decrypt(*field); err == nil {
			*field = plain
		}
	}
	return nil
}
