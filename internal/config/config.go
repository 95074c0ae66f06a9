package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env         string
	Port        int
	DatabaseDSN string
	JWTSecret   string

	GatewayBaseURL   string
	GatewayAPIKey    string
	WebhookSecret    string
	WebhookTolerance time.Duration

	TaxRateBps        int64
	ShippingFlatCents int64
	Currency          string
	AdminUserID       string

	PushHeartbeat time.Duration
	PushIdleAfter time.Duration
	PushSweep     time.Duration
}

func Default() Config {
	return Config{
		Env:              "dev",
		Port:             5000,
		DatabaseDSN:      "",
		JWTSecret:        "",
		GatewayBaseURL:   "https://api.gateway.example",
		GatewayAPIKey:    "",
		WebhookSecret:    "",
		WebhookTolerance: 5 * time.Minute,
		TaxRateBps:       800,
		Currency:         "usd",
		AdminUserID:      "admin",
		PushHeartbeat:    25 * time.Second,
		PushIdleAfter:    90 * time.Second,
		PushSweep:        30 * time.Second,
	}
}

func EnvDefaults() Config {
	return fromEnv(Default())
}

func fromEnv(c Config) Config {
	if v := os.Getenv("STORE_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("STORE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("STORE_DATABASE_DSN"); v != "" {
		c.DatabaseDSN = v
	}
	if v := os.Getenv("STORE_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("STORE_GATEWAY_URL"); v != "" {
		c.GatewayBaseURL = v
	}
	if v := os.Getenv("STORE_GATEWAY_API_KEY"); v != "" {
		c.GatewayAPIKey = v
	}
	if v := os.Getenv("STORE_WEBHOOK_SECRET"); v != "" {
		c.WebhookSecret = v
	}
	if v := os.Getenv("STORE_WEBHOOK_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebhookTolerance = d
		}
	}
	if v := os.Getenv("STORE_TAX_RATE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.TaxRateBps = n
		}
	}
	if v := os.Getenv("STORE_SHIPPING_FLAT_CENTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ShippingFlatCents = n
		}
	}
	if v := os.Getenv("STORE_CURRENCY"); v != "" {
		c.Currency = v
	}
	if v := os.Getenv("STORE_ADMIN_USER_ID"); v != "" {
		c.AdminUserID = v
	}
	if v := os.Getenv("STORE_PUSH_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PushHeartbeat = d
		}
	}
	if v := os.Getenv("STORE_PUSH_IDLE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PushIdleAfter = d
		}
	}
	if v := os.Getenv("STORE_PUSH_SWEEP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PushSweep = d
		}
	}
	return c
}
