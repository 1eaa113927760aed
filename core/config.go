package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devSessionSecret = "dev-only-secret-change-me"

type (
	Config struct {
		Env     string
		Debug   bool
		AppName string
		Build   string

		SessionSecret string
		SessionMaxAge time.Duration

		// DataDir holds the encrypted file store and its key.
		DataDir string

		RollbarToken string
		PingMessage  string

		Database DatabaseConfig
		Server   ServerConfig
	}

	DatabaseConfig struct {
		URL             string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugAddress    string
		ShutdownTimeout time.Duration
		CORSOrigins     []string
	}
)

// Relational reports whether a database URL was configured.
func (c DatabaseConfig) Relational() bool {
	return c.URL != ""
}

// NewConfig reads the configuration from defaults, an optional dotenv file and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("env", "DEV")
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Homeroom")
	v.SetDefault("build", "develop")
	v.SetDefault("sessionSecret", "")
	v.SetDefault("sessionMaxAge", 7*24*time.Hour)
	v.SetDefault("dataDir", "data")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("pingMessage", "pong")
	v.SetDefault("databaseUrl", "")
	v.SetDefault("neonDatabaseUrl", "")
	v.SetDefault("dbMaxOpenConns", 10)
	v.SetDefault("dbMaxIdleConns", 5)
	v.SetDefault("dbConnMaxLifetime", 30*time.Minute)
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("apiAddress", "0.0.0.0:8000")
	v.SetDefault("debugAddress", "0.0.0.0:4000")
	v.SetDefault("shutdownTimeout", 5*time.Second)
	v.SetDefault("corsOrigins", []string{"http://localhost:5173"})

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, PROD
	if env == "" {
		env = "DEV"
	}
	loadDotEnv(filepath.Join("config", ".env."+strings.ToLower(env)))
	loadDotEnv(".env")

	bindEnv(v, "env", "ENV")
	bindEnv(v, "debug", "DEBUG")
	bindEnv(v, "appName", "APP_NAME")
	bindEnv(v, "build", "BUILD")
	bindEnv(v, "sessionSecret", "SESSION_SECRET")
	bindEnv(v, "sessionMaxAge", "SESSION_MAX_AGE")
	bindEnv(v, "dataDir", "DATA_DIR")
	bindEnv(v, "rollbarToken", "ROLLBAR_TOKEN")
	bindEnv(v, "pingMessage", "PING_MESSAGE")
	bindEnv(v, "databaseUrl", "DATABASE_URL")
	bindEnv(v, "neonDatabaseUrl", "NEON_DATABASE_URL")
	bindEnv(v, "dbMaxOpenConns", "DB_MAX_OPEN_CONNS")
	bindEnv(v, "dbMaxIdleConns", "DB_MAX_IDLE_CONNS")
	bindEnv(v, "dbConnMaxLifetime", "DB_CONN_MAX_LIFETIME")
	bindEnv(v, "serverHost", "HOSTNAME")
	bindEnv(v, "apiAddress", "API_ADDRESS")
	bindEnv(v, "debugAddress", "DEBUG_ADDRESS")
	bindEnv(v, "shutdownTimeout", "SHUTDOWN_TIMEOUT")
	bindEnv(v, "corsOrigins", "CORS_ORIGINS")
	v.AutomaticEnv()

	dbURL := v.GetString("databaseUrl")
	if dbURL == "" {
		dbURL = v.GetString("neonDatabaseUrl")
	}

	conf := &Config{
		Env:           strings.ToUpper(v.GetString("env")),
		Debug:         v.GetBool("debug"),
		AppName:       v.GetString("appName"),
		Build:         v.GetString("build"),
		SessionSecret: v.GetString("sessionSecret"),
		SessionMaxAge: v.GetDuration("sessionMaxAge"),
		DataDir:       v.GetString("dataDir"),
		RollbarToken:  v.GetString("rollbarToken"),
		PingMessage:   v.GetString("pingMessage"),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    v.GetInt("dbMaxOpenConns"),
			MaxIdleConns:    v.GetInt("dbMaxIdleConns"),
			ConnMaxLifetime: v.GetDuration("dbConnMaxLifetime"),
		},
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			Address:         v.GetString("apiAddress"),
			DebugAddress:    v.GetString("debugAddress"),
			ShutdownTimeout: v.GetDuration("shutdownTimeout"),
			CORSOrigins:     splitList(v.GetStringSlice("corsOrigins")),
		},
	}
	if conf.SessionSecret == "" {
		if !conf.Debug {
			log.Printf("config: SESSION_SECRET is not set, falling back to the development secret")
		}
		conf.SessionSecret = devSessionSecret
	}
	return conf
}

// NewTestConfig returns a Config suitable for tests: debug off, file storage under dataDir.
func NewTestConfig(dataDir string) *Config {
	return &Config{
		Env:           "TEST",
		AppName:       "Homeroom",
		Build:         "test",
		SessionSecret: "test-secret",
		SessionMaxAge: 7 * 24 * time.Hour,
		DataDir:       dataDir,
		PingMessage:   "pong",
		Server: ServerConfig{
			Host:            "localhost",
			ShutdownTimeout: time.Second,
		},
	}
}

func bindEnv(v *viper.Viper, key, env string) {
	if err := v.BindEnv(key, env); err != nil {
		log.Fatalf("config.BindEnv(%s): %v", env, err)
	}
}

// loadDotEnv loads the file if it exists (ignore if it does not).
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			log.Fatalf("config.godotenv(%s): %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", path, err)
	}
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, val := range vals {
		for _, s := range strings.Split(val, ",") {
			if s = CleanString(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
