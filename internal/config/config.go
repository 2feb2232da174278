package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr      string
	StoreBackend  string
	DBDSN         string
	FeedURL       string
	InternalToken string
	CryptoRate    decimal.Decimal
	AllowOffHours bool
	RMSInterval   time.Duration
}

// Load reads configuration from the environment, after loading .env when
// present. STORE defaults to postgres; DB_DSN is only required then.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var missing []string

	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	if c.StoreBackend == "" {
		c.StoreBackend = "postgres"
	}
	if c.StoreBackend != "postgres" && c.StoreBackend != "memory" {
		return c, errors.New("invalid STORE: use postgres or memory")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.StoreBackend == "postgres" && c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.FeedURL = os.Getenv("FEED_URL")
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}

	rate := os.Getenv("CRYPTO_RATE")
	if rate == "" {
		missing = append(missing, "CRYPTO_RATE")
	} else {
		d, err := decimal.NewFromString(rate)
		if err != nil || !d.GreaterThan(decimal.Zero) {
			return c, errors.New("invalid CRYPTO_RATE: want a positive decimal")
		}
		c.CryptoRate = d
	}

	if raw := os.Getenv("ALLOW_OFF_HOURS"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c, errors.New("invalid ALLOW_OFF_HOURS")
		}
		c.AllowOffHours = b
	}

	c.RMSInterval = 5 * time.Second
	if raw := os.Getenv("RMS_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return c, errors.New("invalid RMS_INTERVAL: want a positive duration")
		}
		c.RMSInterval = d
	}

	if len(missing) > 0 {
		return c, fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return c, nil
}
