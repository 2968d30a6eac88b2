package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything the bot needs at startup. All values can come
// from the environment (the deployment surface) or from an optional
// config.yaml next to the binary.
type Config struct {
	BotToken string

	OnecURL         string // identity check endpoint
	OnecSyncURL     string // supervisor sync endpoint
	OnecDecisionURL string // decision write-back endpoint, optional
	OnecUser        string
	OnecPass        string

	DBPath   string
	Timezone string
	HTTPAddr string
	LogLevel string
}

func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()

	// Explicit bindings so the env surface matches the deployment docs.
	v.BindEnv("bot_token", "BOT_TOKEN")
	v.BindEnv("onec_url", "ONEC_URL")
	v.BindEnv("onec_sync_url", "ONEC_SYNC_URL")
	v.BindEnv("onec_decision_url", "ONEC_DECISION_URL")
	v.BindEnv("onec_user", "ONEC_USER")
	v.BindEnv("onec_pass", "ONEC_PASS")
	v.BindEnv("db_path", "DB_PATH")
	v.BindEnv("timezone", "TIMEZONE")
	v.BindEnv("http_addr", "HTTP_ADDR")
	v.BindEnv("log_level", "LOG_LEVEL")

	v.SetDefault("db_path", "bot.db")
	v.SetDefault("timezone", "Asia/Tashkent")
	v.SetDefault("http_addr", ":9180")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		// A missing implicit config file is fine; an explicit one must exist.
		if cfgFile != "" {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		BotToken:        v.GetString("bot_token"),
		OnecURL:         v.GetString("onec_url"),
		OnecSyncURL:     v.GetString("onec_sync_url"),
		OnecDecisionURL: v.GetString("onec_decision_url"),
		OnecUser:        v.GetString("onec_user"),
		OnecPass:        v.GetString("onec_pass"),
		DBPath:          v.GetString("db_path"),
		Timezone:        v.GetString("timezone"),
		HTTPAddr:        v.GetString("http_addr"),
		LogLevel:        v.GetString("log_level"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	return cfg, nil
}
