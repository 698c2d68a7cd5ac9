package main

import (
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/yaml.v2"
)

const (
	defaultTrialLimit    = 20
	defaultStartCommand  = "/start"
	defaultAdminRole     = "admin"
	defaultRetentionDays = 7
	defaultLinkTTLHours  = 24
)

// RelayConfig struct
type RelayConfig struct {
	LogLevel   logging.Level    `yaml:"log_level"`
	Database   DatabaseConfig   `yaml:"database"`
	SentryDSN  string           `yaml:"sentry_dsn"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Debug      bool             `yaml:"debug"`
	Identity   IdentityConfig   `yaml:"identity"`
	Trial      TrialConfig      `yaml:"trial"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Media      MediaConfig      `yaml:"media"`
	ConfigAWS  ConfigAWS        `yaml:"config_aws"`
}

// DatabaseConfig struct
type DatabaseConfig struct {
	Connection         string `yaml:"connection"`
	Logging            bool   `yaml:"logging"`
	MaxOpenConnections int    `yaml:"max_open_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections"`
	ConnectionLifetime int    `yaml:"connection_lifetime"`
}

// HTTPServerConfig struct
type HTTPServerConfig struct {
	Host   string `yaml:"host"`
	Listen string `yaml:"listen"`
}

// IdentityConfig holds the keys of the external identity provider
type IdentityConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	AdminRole string `yaml:"admin_role"`
}

// TrialConfig struct
type TrialConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// WebhookConfig struct
type WebhookConfig struct {
	StartCommand string `yaml:"start_command"`
	// AckRejections answers expired and exhausted rejections with 200 so that
	// Telegram stops redelivering them.
	AckRejections bool `yaml:"ack_rejections"`
}

// TelegramConfig struct
type TelegramConfig struct {
	Timeout int `yaml:"timeout"`
}

// MediaConfig struct
type MediaConfig struct {
	RetentionDays int `yaml:"retention_days"`
	// LinkTTLHours is how long a signed media proxy link stays valid
	LinkTTLHours int `yaml:"link_ttl_hours"`
}

// ConfigAWS struct
type ConfigAWS struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	FolderName      string `yaml:"folder_name"`
}

// LoadConfig read configuration file
func LoadConfig(path string) *RelayConfig {
	var err error

	path, err = filepath.Abs(path)
	if err != nil {
		panic(err)
	}

	source, err := ioutil.ReadFile(path)
	if err != nil {
		panic(err)
	}

	config, err := parseConfig(source)
	if err != nil {
		panic(err)
	}

	return config
}

func parseConfig(source []byte) (*RelayConfig, error) {
	var config RelayConfig
	if err := yaml.Unmarshal(source, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	return &config, nil
}

func (c *RelayConfig) applyDefaults() {
	if c.Trial.DefaultLimit <= 0 {
		c.Trial.DefaultLimit = defaultTrialLimit
	}

	if c.Webhook.StartCommand == "" {
		c.Webhook.StartCommand = defaultStartCommand
	}

	if c.Identity.AdminRole == "" {
		c.Identity.AdminRole = defaultAdminRole
	}

	if c.Media.RetentionDays <= 0 {
		c.Media.RetentionDays = defaultRetentionDays
	}

	if c.Media.LinkTTLHours <= 0 {
		c.Media.LinkTTLHours = defaultLinkTTLHours
	}

	if c.Telegram.Timeout <= 0 {
		c.Telegram.Timeout = 30
	}
}

func (c *RelayConfig) telegramTimeout() time.Duration {
	return time.Duration(c.Telegram.Timeout) * time.Second
}

func (c *RelayConfig) webhookURL(token string) string {
	return "https://" + c.HTTPServer.Host + "/telegram/" + token
}
