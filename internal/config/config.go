package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Bot       BotConfig
	Ticket    TicketConfig
	Payment   PaymentConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

type BotConfig struct {
	Token    string
	Username string
	AdminIDs []int64
	// Max updates handled at once.
	Workers       int
	PromptTimeout time.Duration
	BroadcastRate int
	QRWorkers     int
}

type TicketConfig struct {
	Price           decimal.Decimal
	Description     string
	DefaultCapacity int
}

type PaymentConfig struct {
	Provider     string
	PollInterval time.Duration
	Timeout      time.Duration
	FormGrace    time.Duration
	Tinkoff      TinkoffConfig
	Stripe       StripeConfig
}

type TinkoffConfig struct {
	TerminalKey string
	SecretKey   string
	APIURL      string
}

type StripeConfig struct {
	SecretKey string
	Currency  string
}

type DatabaseConfig struct {
	Driver       string
	SQLitePath   string
	PostgresDSN  string
	AutoMigrate  bool
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	Enabled     bool
	TopicPrefix string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ScannerSecret   string
	ScannerTokenTTL time.Duration
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration
	StaleAfter        time.Duration
}

type LogConfig struct {
	Dir   string
	Level string
}

const (
	ProviderTinkoff = "tinkoff"
	ProviderStripe  = "stripe"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func Load() *Config {
	timeout := getEnvDuration("PAYMENT_TIMEOUT", 240*time.Second)
	grace := getEnvDuration("PAYMENT_FORM_GRACE", 2*time.Minute)

	price, err := decimal.NewFromString(getEnv("TICKET_PRICE", "1500.00"))
	if err != nil {
		price = decimal.NewFromInt(1500)
	}

	return &Config{
		Bot: BotConfig{
			Token:         getEnv("BOT_TOKEN", ""),
			Username:      strings.TrimPrefix(getEnv("BOT_NAME", ""), "@"),
			AdminIDs:      getEnvInt64List("ADMIN_IDS"),
			Workers:       getEnvInt("BOT_WORKERS", 64),
			PromptTimeout: getEnvDuration("BOT_PROMPT_TIMEOUT", 5*time.Minute),
			BroadcastRate: getEnvInt("BROADCAST_RATE", 25),
			QRWorkers:     getEnvInt("QR_WORKERS", 4),
		},
		Ticket: TicketConfig{
			Price:           price,
			Description:     getEnv("TICKET_DESCRIPTION", "Билет на мероприятие"),
			DefaultCapacity: getEnvInt("DEFAULT_EVENT_CAPACITY", 250),
		},
		Payment: PaymentConfig{
			Provider:     strings.ToLower(getEnv("PAYMENT_PROVIDER", ProviderTinkoff)),
			PollInterval: getEnvDuration("PAYMENT_POLL_INTERVAL", 10*time.Second),
			Timeout:      timeout,
			FormGrace:    grace,
			Tinkoff: TinkoffConfig{
				TerminalKey: getEnv("TINKOFF_TERMINAL_KEY", ""),
				SecretKey:   getEnv("TINKOFF_SECRET_KEY", ""),
				APIURL:      getEnv("TINKOFF_API_URL", "https://securepay.tinkoff.ru/v2"),
			},
			Stripe: StripeConfig{
				SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
				Currency:  strings.ToLower(getEnv("STRIPE_CURRENCY", "rub")),
			},
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			SQLitePath:   getEnv("SQLITE_PATH", "data/passbot.db"),
			PostgresDSN:  getEnv("POSTGRES_DSN", ""),
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockTTL:  getEnvDuration("PURCHASE_LOCK_TTL", timeout+grace+time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_ADDR", "localhost:9092")),
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "passbot"),
		},
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8084"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // SSE streams stay open
			ScannerSecret:   getEnv("SCANNER_JWT_SECRET", ""),
			ScannerTokenTTL: getEnvDuration("SCANNER_TOKEN_TTL", 12*time.Hour),
		},
		Scheduler: SchedulerConfig{
			ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
			StaleAfter:        getEnvDuration("STALE_RESERVATION_AFTER", 2*(timeout+grace)),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Bot.Token == "" {
		errs = append(errs, errors.New("BOT_TOKEN not set"))
	}

	switch c.Payment.Provider {
	case ProviderTinkoff:
		if c.Payment.Tinkoff.TerminalKey == "" || c.Payment.Tinkoff.SecretKey == "" {
			errs = append(errs, errors.New("TINKOFF_TERMINAL_KEY and TINKOFF_SECRET_KEY must be set"))
		}
	case ProviderStripe:
		if c.Payment.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.Payment.Provider))
	}

	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}

	if c.Payment.PollInterval <= 0 || c.Payment.Timeout <= 0 {
		errs = append(errs, errors.New("payment poll interval and timeout must be positive"))
	}
	if wait := c.Payment.Timeout + c.Payment.FormGrace; c.Scheduler.StaleAfter <= wait {
		errs = append(errs, fmt.Errorf("STALE_RESERVATION_AFTER (%s) must exceed PAYMENT_TIMEOUT + PAYMENT_FORM_GRACE (%s)",
			c.Scheduler.StaleAfter, wait))
	}
	if !c.Ticket.Price.IsPositive() {
		errs = append(errs, errors.New("TICKET_PRICE must be positive"))
	}

	return errors.Join(errs...)
}

// IsAdmin reports whether the telegram user id is listed in ADMIN_IDS.
func (c BotConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AmountMinor is the ticket price in kopecks/cents.
func (c TicketConfig) AmountMinor() int64 {
	return c.Price.Shift(2).Round(0).IntPart()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvInt64List(key string) []int64 {
	var ids []int64
	for _, part := range splitList(os.Getenv(key)) {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
