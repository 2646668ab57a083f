package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/maaaruch/online-voting/internal/storage"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

type Config struct {
	Token            string
	Debug            bool
	Backend          string
	SQLiteDSN        string
	BcryptCost       int
	LogLevel         string
	LogJSON          bool
	MetricsAddr      string
	MetricsNamespace string
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Token:            os.Getenv("TELEGRAM_BOT_TOKEN"),
		Debug:            getbool("BOT_DEBUG", false),
		Backend:          getenv("STORAGE_BACKEND", BackendMemory),
		SQLiteDSN:        getenv("SQLITE_DSN", storage.MemoryDSN),
		BcryptCost:       getint("BCRYPT_COST", bcrypt.DefaultCost),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogJSON:          getbool("LOG_FORMAT_JSON", false),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		MetricsNamespace: getenv("METRICS_NAMESPACE", "voting"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %q or %q)", c.Backend, BackendMemory, BackendSQLite)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST %d out of range [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
