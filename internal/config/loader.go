package config

import (
	"fmt"
	"time"

	"github.com/rvaldes/tributario/internal/db"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP and export worker settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	ExportDir      string
	JobTimeout     time.Duration
	DownloadTTL    time.Duration
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
}

// Load reads config.yaml plus environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ExportDir:      "",
			JobTimeout:     30 * time.Minute,
			DownloadTTL:    5 * time.Minute,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()              // allow environment overrides
	v.SetEnvPrefix("TRIBUTARIO")  // map env vars like TRIBUTARIO_DATABASE_HOST

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("server.export_dir")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.export_dir") {
		cfg.Server.ExportDir = v.GetString("server.export_dir")
	}
	if v.IsSet("server.job_timeout") {
		cfg.Server.JobTimeout = v.GetDuration("server.job_timeout")
	}
	if v.IsSet("server.download_ttl") {
		cfg.Server.DownloadTTL = v.GetDuration("server.download_ttl")
	}

	return cfg, nil
}
