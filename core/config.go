package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug           bool
		TestMode        bool
		Env             string // DEV (local; default), TEST, QA, PROD
		Build           string
		AppName         string
		FrontendBaseURL string
		WorkDir         string

		Server      ServerConfig
		Database    DatabaseConfig
		Redis       RedisConfig
		Email       EmailConfig
		Queue       QueueConfig
		Progression ProgressionConfig

		RollbarToken string
	}

	ServerConfig struct {
		Host            string
		Addr            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	EmailConfig struct {
		DefaultFromEmail mail.Address
		OpsEmail         mail.Address
		SendgridAPIKey   string
	}

	QueueConfig struct {
		PollInterval       time.Duration
		Concurrency        int
		MaxAttempts        int
		BackoffBase        time.Duration
		BackoffMax         time.Duration
		CompletedRetention time.Duration

		// recurring maintenance intervals
		CacheWarmInterval time.Duration
		CleanupInterval   time.Duration
		AnalyticsInterval time.Duration
		MetricsInterval   time.Duration
	}

	ProgressionConfig struct {
		ConflictRetries int
		LeaderboardSize int
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Ngazi")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("opsEmail", "ops@localhost")
	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddr", ":8000")
	conf.SetDefault("serverDebugAddr", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbName", "ngazi")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("redisAddr", "localhost:6379")
	conf.SetDefault("redisDB", 0)
	conf.SetDefault("queuePollInterval", 10*time.Second)
	conf.SetDefault("queueConcurrency", 5)
	conf.SetDefault("queueMaxAttempts", 3)
	conf.SetDefault("queueBackoffBase", time.Second)
	conf.SetDefault("queueBackoffMax", 10*time.Minute)
	conf.SetDefault("queueCompletedRetention", time.Hour)
	conf.SetDefault("queueCacheWarmInterval", 15*time.Minute)
	conf.SetDefault("queueCleanupInterval", time.Hour)
	conf.SetDefault("queueAnalyticsInterval", 6*time.Hour)
	conf.SetDefault("queueMetricsInterval", time.Minute)
	conf.SetDefault("progressionConflictRetries", 3)
	conf.SetDefault("progressionLeaderboardSize", 100)

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:           conf.GetBool("debug"),
		TestMode:        env == "TEST",
		Env:             env,
		Build:           conf.GetString("build"),
		AppName:         conf.GetString("appName"),
		FrontendBaseURL: conf.GetString("frontendBaseURL"),
		WorkDir:         wd,
		Server: ServerConfig{
			Host:            conf.GetString("serverHost"),
			Addr:            conf.GetString("serverAddr"),
			DebugHost:       conf.GetString("serverDebugAddr"),
			ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redisAddr"),
			Password: conf.GetString("redisPassword"),
			DB:       conf.GetInt("redisDB"),
		},
		Email: EmailConfig{
			DefaultFromEmail: mail.Address{Address: conf.GetString("defaultFromEmail")},
			OpsEmail:         mail.Address{Address: conf.GetString("opsEmail")},
			SendgridAPIKey:   conf.GetString("sendgridApiKey"),
		},
		Queue: QueueConfig{
			PollInterval:       conf.GetDuration("queuePollInterval"),
			Concurrency:        conf.GetInt("queueConcurrency"),
			MaxAttempts:        conf.GetInt("queueMaxAttempts"),
			BackoffBase:        conf.GetDuration("queueBackoffBase"),
			BackoffMax:         conf.GetDuration("queueBackoffMax"),
			CompletedRetention: conf.GetDuration("queueCompletedRetention"),
			CacheWarmInterval:  conf.GetDuration("queueCacheWarmInterval"),
			CleanupInterval:    conf.GetDuration("queueCleanupInterval"),
			AnalyticsInterval:  conf.GetDuration("queueAnalyticsInterval"),
			MetricsInterval:    conf.GetDuration("queueMetricsInterval"),
		},
		Progression: ProgressionConfig{
			ConflictRetries: conf.GetInt("progressionConflictRetries"),
			LeaderboardSize: conf.GetInt("progressionLeaderboardSize"),
		},
		RollbarToken: conf.GetString("rollbarToken"),
	}
}
