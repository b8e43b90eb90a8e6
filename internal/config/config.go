// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"resumatch.org/internal/mail"
)

// Config is the fully resolved service configuration.
type Config struct {
	Addr           string
	PostgresDSN    string
	FrontendOrigin string
	Issuer         string

	// Session token signing keys.
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey

	// CryptoSecret seals opaque client tokens; exactly 32 bytes.
	CryptoSecret []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	SMTP mail.SMTPConfig
}

// Load reads configuration from RESUMATCH_* environment variables. A .env in
// the working directory is merged in first without overriding real env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            getenv("RESUMATCH_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("RESUMATCH_PG_DSN"),
		FrontendOrigin:  getenv("RESUMATCH_FRONTEND_ORIGIN", "http://localhost:3000"),
		Issuer:          getenv("RESUMATCH_TOKEN_ISSUER", "resumatch"),
		AccessTokenTTL:  getenvDuration("RESUMATCH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getenvDuration("RESUMATCH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SMTP: mail.SMTPConfig{
			Host:     os.Getenv("RESUMATCH_SMTP_HOST"),
			Port:     getenv("RESUMATCH_SMTP_PORT", "587"),
			Username: os.Getenv("RESUMATCH_SMTP_USERNAME"),
			Password: os.Getenv("RESUMATCH_SMTP_PASSWORD"),
			From:     os.Getenv("RESUMATCH_SMTP_FROM"),
		},
	}

	priv, err := loadPEM("RESUMATCH_JWT_PRIVATE_KEY")
	if err != nil {
		return nil, err
	}
	cfg.PrivateKey, err = jwt.ParseRSAPrivateKeyFromPEM(priv)
	if err != nil {
		return nil, fmt.Errorf("parse RESUMATCH_JWT_PRIVATE_KEY: %w", err)
	}

	pub, err := loadPEM("RESUMATCH_JWT_PUBLIC_KEY")
	if err != nil {
		return nil, err
	}
	cfg.PublicKey, err = jwt.ParseRSAPublicKeyFromPEM(pub)
	if err != nil {
		return nil, fmt.Errorf("parse RESUMATCH_JWT_PUBLIC_KEY: %w", err)
	}

	secretHex := os.Getenv("RESUMATCH_CRYPTO_SECRET")
	if secretHex == "" {
		return nil, fmt.Errorf("RESUMATCH_CRYPTO_SECRET is required")
	}
	cfg.CryptoSecret, err = hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("RESUMATCH_CRYPTO_SECRET must be hex: %w", err)
	}
	if len(cfg.CryptoSecret) != 32 {
		return nil, fmt.Errorf("RESUMATCH_CRYPTO_SECRET must decode to 32 bytes, got %d", len(cfg.CryptoSecret))
	}

	return cfg, nil
}

// loadPEM reads a key either inline from NAME or from the file named by
// NAME_FILE.
func loadPEM(name string) ([]byte, error) {
	if inline := os.Getenv(name); inline != "" {
		return []byte(inline), nil
	}
	if path := os.Getenv(name + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s_FILE: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s or %s_FILE is required", name, name)
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
