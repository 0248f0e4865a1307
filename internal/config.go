package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	MPesa         MPesaConfig         `mapstructure:"mpesa"`
	Notion        NotionConfig        `mapstructure:"notion"`
	WhatsApp      WhatsAppConfig      `mapstructure:"whatsapp"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	APISecret     string        `mapstructure:"api_secret"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
}

// MPesaConfig holds the Daraja credentials. Environment selects the
// sandbox or production Safaricom API hosts.
type MPesaConfig struct {
	ConsumerKey       string        `mapstructure:"consumer_key"`
	ConsumerSecret    string        `mapstructure:"consumer_secret"`
	BusinessShortCode string        `mapstructure:"business_short_code"`
	Passkey           string        `mapstructure:"passkey"`
	CallbackURL       string        `mapstructure:"callback_url"`
	Environment       string        `mapstructure:"environment"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type NotionConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	DatabaseID string        `mapstructure:"database_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type WhatsAppConfig struct {
	Phone           string `mapstructure:"phone"`
	MessageTemplate string `mapstructure:"message_template"`
}

// CheckoutConfig drives the client side of the flow: where the
// payments API lives and how the status poller paces itself.
type CheckoutConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RedirectDelay time.Duration `mapstructure:"redirect_delay"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config from environment variables, used
// for container deployments where no config.yml is mounted. Variable
// names follow the original deployment's .env layout.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8000),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8000"),
			AllowedOrigins:    getEnv("FRONTEND_URL", "http://localhost:3000"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", "payments.db"),
		},
		Security: SecurityConfig{
			APISecret:     os.Getenv("API_SECRET_KEY"),
			TokenDuration: getEnvAsDuration("API_TOKEN_DURATION", 24*time.Hour),
		},
		MPesa: MPesaConfig{
			ConsumerKey:       os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret:    os.Getenv("MPESA_CONSUMER_SECRET"),
			BusinessShortCode: os.Getenv("MPESA_BUSINESS_SHORT_CODE"),
			Passkey:           os.Getenv("MPESA_PASSKEY"),
			CallbackURL:       os.Getenv("MPESA_CALLBACK_URL"),
			Environment:       getEnv("MPESA_ENVIRONMENT", "sandbox"),
			Timeout:           getEnvAsDuration("MPESA_TIMEOUT", 30*time.Second),
		},
		Notion: NotionConfig{
			APIKey:     os.Getenv("NOTION_API_KEY"),
			DatabaseID: os.Getenv("NOTION_DATABASE_ID"),
			Timeout:    getEnvAsDuration("NOTION_TIMEOUT", 30*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			Phone:           os.Getenv("WHATSAPP_PHONE"),
			MessageTemplate: getEnv("WHATSAPP_MESSAGE_TEMPLATE", "Hi, I've just paid for the kombucha order. Here are my details..."),
		},
		Checkout: CheckoutConfig{
			BaseURL:       getEnv("CHECKOUT_API_URL", "http://localhost:8000"),
			PollInterval:  getEnvAsDuration("CHECKOUT_POLL_INTERVAL", 3*time.Second),
			RedirectDelay: getEnvAsDuration("CHECKOUT_REDIRECT_DELAY", 3*time.Second),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.MPesa.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("mpesa config: %v", err))
	}

	if err := c.Checkout.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("checkout config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// IsPostgres reports whether the DSN targets postgres; anything else is
// treated as a sqlite file path, matching the original deployment.
func (c *DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(c.Source, "postgres://") || strings.HasPrefix(c.Source, "postgresql://")
}

func (c *SecurityConfig) Validate() error {
	if len(c.APISecret) < 32 {
		return errors.New("api secret must be at least 32 characters")
	}
	if c.TokenDuration <= 0 {
		return errors.New("token_duration must be positive")
	}
	return nil
}

func (c *MPesaConfig) Validate() error {
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return errors.New("consumer key and secret are required")
	}
	if c.BusinessShortCode == "" {
		return errors.New("business short code is required")
	}
	if c.Passkey == "" {
		return errors.New("passkey is required")
	}
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	return nil
}

func (c *CheckoutConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	return nil
}

// IsConfigured reports whether Notion mirroring is enabled; both values
// are optional and the recorder is skipped entirely when absent.
func (c *NotionConfig) IsConfigured() bool {
	return c.APIKey != "" && c.DatabaseID != ""
}
