// Package config binds the process's environment into one typed Config
// struct via viper, replacing the per-package getEnv helpers the teacher
// service used.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete set of environment-driven settings for both
// cmd/server and cmd/worker.
type Config struct {
	AppEnv string

	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	EncryptionKey string

	DefaultTraceRetentionDays int
	DefaultAuditRetentionDays int
	LockTimeout               time.Duration
	LockPollInterval          time.Duration

	OutboxPollInterval   time.Duration
	CleanupInterval      time.Duration
	OutboxDestination    string
	OutboxNotifyChannel  string
}

// Load reads environment variables (with sane defaults) into a Config.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app_env", "development")
	v.SetDefault("port", "8080")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "reefline")
	v.SetDefault("db_password", "reefline")
	v.SetDefault("db_name", "reefline")
	v.SetDefault("db_ssl_mode", "disable")

	v.SetDefault("redis_host", "")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("redis_password", "")

	v.SetDefault("encryption_key", "")

	v.SetDefault("default_trace_retention_days", 30)
	v.SetDefault("default_audit_retention_days", 90)
	v.SetDefault("lock_timeout_seconds", 5)
	v.SetDefault("lock_poll_interval_ms", 100)

	v.SetDefault("outbox_poll_interval_ms", 500)
	v.SetDefault("cleanup_interval_minutes", 60)
	v.SetDefault("outbox_destination", "flow_events")
	v.SetDefault("outbox_notify_channel", "flow_events")

	for _, key := range []string{
		"app_env", "port",
		"db_host", "db_port", "db_user", "db_password", "db_name", "db_ssl_mode",
		"redis_host", "redis_port", "redis_password",
		"encryption_key",
		"default_trace_retention_days", "default_audit_retention_days",
		"lock_timeout_seconds", "lock_poll_interval_ms",
		"outbox_poll_interval_ms", "cleanup_interval_minutes",
		"outbox_destination", "outbox_notify_channel",
	} {
		_ = v.BindEnv(key)
	}

	return &Config{
		AppEnv: v.GetString("app_env"),
		Port:   v.GetString("port"),

		DBHost:     v.GetString("db_host"),
		DBPort:     v.GetString("db_port"),
		DBUser:     v.GetString("db_user"),
		DBPassword: v.GetString("db_password"),
		DBName:     v.GetString("db_name"),
		DBSSLMode:  v.GetString("db_ssl_mode"),

		RedisHost:     v.GetString("redis_host"),
		RedisPort:     v.GetString("redis_port"),
		RedisPassword: v.GetString("redis_password"),

		EncryptionKey: v.GetString("encryption_key"),

		DefaultTraceRetentionDays: v.GetInt("default_trace_retention_days"),
		DefaultAuditRetentionDays: v.GetInt("default_audit_retention_days"),
		LockTimeout:               time.Duration(v.GetInt("lock_timeout_seconds")) * time.Second,
		LockPollInterval:          time.Duration(v.GetInt("lock_poll_interval_ms")) * time.Millisecond,

		OutboxPollInterval:  time.Duration(v.GetInt("outbox_poll_interval_ms")) * time.Millisecond,
		CleanupInterval:     time.Duration(v.GetInt("cleanup_interval_minutes")) * time.Minute,
		OutboxDestination:   v.GetString("outbox_destination"),
		OutboxNotifyChannel: v.GetString("outbox_notify_channel"),
	}
}
