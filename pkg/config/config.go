package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/pkg/errutil"
)

var config = viper.New()

type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	AppName string `mapstructure:"APP_NAME"`
	Server  struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type     string `mapstructure:"TYPE"`
		Host     string `mapstructure:"HOST"`
		Port     string `mapstructure:"PORT"`
		DBNAME   string `mapstructure:"DBNAME"`
		User     string `mapstructure:"USER"`
		Password string `mapstructure:"PASSWORD"`
		SSLMode  string `mapstructure:"SSLMODE"`
		Timezone string `mapstructure:"TIMEZONE"`
		Metrics  bool   `mapstructure:"METRICS"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Engagement struct {
		ReminderTime      string        `mapstructure:"REMINDER_TIME"` // HH:MM wall clock
		Timezone          string        `mapstructure:"TIMEZONE"`      // IANA name
		MilestoneInterval int           `mapstructure:"MILESTONE_INTERVAL"`
		MaxRetries        int           `mapstructure:"MAX_RETRIES"`
		BaseRetryDelay    time.Duration `mapstructure:"BASE_RETRY_DELAY"`
		WeeklySummaryDay  string        `mapstructure:"WEEKLY_SUMMARY_DAY"` // lowercase weekday name
		AdminPhone        string        `mapstructure:"ADMIN_PHONE"`
		AdminName         string        `mapstructure:"ADMIN_NAME"`
	} `mapstructure:"ENGAGEMENT"`
	WhatsApp struct {
		AccessToken   string `mapstructure:"ACCESS_TOKEN"`
		PhoneNumberID string `mapstructure:"PHONE_NUMBER_ID"`
		VerifyToken   string `mapstructure:"VERIFY_TOKEN"`
		BaseURL       string `mapstructure:"BASE_URL"`
		Mock          bool   `mapstructure:"MOCK"`
	} `mapstructure:"WHATSAPP"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) (*Config, error) {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	setDefaults()

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if p.Vault != nil {
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.Password = get("database_password")
		cfg.Redis.Password = get("redis_password")
		cfg.WhatsApp.AccessToken = get("whatsapp_access_token")
		cfg.WhatsApp.VerifyToken = get("whatsapp_verify_token")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	config.SetDefault("APP_ENV", "development")
	config.SetDefault("APP_NAME", "engagement")
	config.SetDefault("HTTP_SERVER.ADDR", ":8080")
	config.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	config.SetDefault("DATABASE.TYPE", "sqlite")
	config.SetDefault("DATABASE.DBNAME", "engagement.db")
	config.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	config.SetDefault("ENGAGEMENT.REMINDER_TIME", "18:00")
	config.SetDefault("ENGAGEMENT.TIMEZONE", "Asia/Kolkata")
	config.SetDefault("ENGAGEMENT.MILESTONE_INTERVAL", 5)
	config.SetDefault("ENGAGEMENT.MAX_RETRIES", 3)
	config.SetDefault("ENGAGEMENT.BASE_RETRY_DELAY", 5*time.Second)
	config.SetDefault("ENGAGEMENT.WEEKLY_SUMMARY_DAY", "sunday")
	config.SetDefault("WHATSAPP.BASE_URL", "https://graph.facebook.com/v17.0")
	config.SetDefault("WHATSAPP.MOCK", true)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Validate rejects malformed engagement settings before anything downstream
// can observe them. The scheduler relies on this never failing at runtime.
func (c *Config) Validate() error {
	e := c.Engagement

	if _, err := time.Parse("15:04", e.ReminderTime); err != nil {
		return errutil.InvalidConfiguration("reminder time must be HH:MM", errutil.WithErr(err))
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return errutil.InvalidConfiguration("unknown timezone "+e.Timezone, errutil.WithErr(err))
	}
	if e.MilestoneInterval <= 0 {
		return errutil.InvalidConfiguration("milestone interval must be positive")
	}
	if e.MaxRetries < 0 {
		return errutil.InvalidConfiguration("max retries must not be negative")
	}
	if e.BaseRetryDelay <= 0 {
		return errutil.InvalidConfiguration("base retry delay must be positive")
	}
	if _, ok := weekdays[strings.ToLower(e.WeeklySummaryDay)]; !ok {
		return errutil.InvalidConfiguration("unknown weekly summary day " + e.WeeklySummaryDay)
	}
	return nil
}

// Location returns the configured reference timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engagement.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SummaryWeekday returns the configured week boundary weekday.
func (c *Config) SummaryWeekday() time.Weekday {
	return weekdays[strings.ToLower(c.Engagement.WeeklySummaryDay)]
}
