package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shubham-shewale/price-widget/pkg/models"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Widget    WidgetConfig    `mapstructure:"widget"`
	Refresher RefresherConfig `mapstructure:"refresher"`
	Producer  ProducerConfig  `mapstructure:"producer"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type StoreConfig struct {
	Backend       string `mapstructure:"backend"` // redis | sqlite | memory
	SQLitePath    string `mapstructure:"sqlite_path"`
	ChangeChannel string `mapstructure:"change_channel"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type WidgetConfig struct {
	Schema           models.Schema `mapstructure:",squash"`
	PricePlaceholder string        `mapstructure:"price_placeholder"`
	AsOfPlaceholder  string        `mapstructure:"as_of_placeholder"`
	ShowTimestamp    bool          `mapstructure:"show_timestamp"`
	LaunchAction     string        `mapstructure:"launch_action"` // empty disables the tap handler
	Concurrency      int           `mapstructure:"concurrency"`
}

type RefresherConfig struct {
	Interval      time.Duration `mapstructure:"interval"` // 0 disables the timer trigger
	RequestBuffer int           `mapstructure:"request_buffer"`
}

type ProducerConfig struct {
	Symbol        string `mapstructure:"symbol"`
	NumWorkers    int    `mapstructure:"num_workers"`
	PriceDecimals int32  `mapstructure:"price_decimals"`
	Timezone      string `mapstructure:"timezone"`
	TimeLayout    string `mapstructure:"time_layout"`
}

// LoadConfig reads configuration from .env file, optional config file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	setDefaults(v)

	// 3. Optional config file, then Environment Variables on top
	if path := os.Getenv("WIDGET_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// This maps dot-notation to underscores (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.development")
	bindEnv(v, "store.backend", "store.sqlite_path", "store.change_channel")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "widget.price_key", "widget.as_of_key", "widget.price_placeholder", "widget.as_of_placeholder",
		"widget.show_timestamp", "widget.launch_action", "widget.concurrency")
	bindEnv(v, "refresher.interval", "refresher.request_buffer")
	bindEnv(v, "producer.symbol", "producer.num_workers", "producer.price_decimals",
		"producer.timezone", "producer.time_layout")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// 6. Basic Validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.sqlite_path", "widget.db")
	v.SetDefault("store.change_channel", "widget.changed")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "price_ticks")
	v.SetDefault("kafka.group_id", "widget-producer-group")

	v.SetDefault("widget.price_key", models.DefaultPriceKey)
	v.SetDefault("widget.as_of_key", models.DefaultAsOfKey)
	v.SetDefault("widget.price_placeholder", "---")
	v.SetDefault("widget.as_of_placeholder", "updated: …")
	v.SetDefault("widget.show_timestamp", true)
	v.SetDefault("widget.launch_action", "open:main")
	v.SetDefault("widget.concurrency", 4)

	v.SetDefault("refresher.interval", 30*time.Minute)
	v.SetDefault("refresher.request_buffer", 16)

	v.SetDefault("producer.symbol", "XAU")
	v.SetDefault("producer.num_workers", 2)
	v.SetDefault("producer.price_decimals", 0)
	v.SetDefault("producer.timezone", "UTC")
	v.SetDefault("producer.time_layout", "15:04")
}

// Validate rejects configurations no component can run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if err := c.Widget.Schema.Validate(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Widget.Concurrency < 1 {
		return fmt.Errorf("widget concurrency must be at least 1, got %d", c.Widget.Concurrency)
	}
	if c.Refresher.Interval < 0 {
		return fmt.Errorf("refresher interval cannot be negative")
	}
	if c.Producer.NumWorkers < 1 {
		return fmt.Errorf("producer num_workers must be at least 1, got %d", c.Producer.NumWorkers)
	}
	if _, err := time.LoadLocation(c.Producer.Timezone); err != nil {
		return fmt.Errorf("producer timezone: %w", err)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
