package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"testing"
	"time"
)

func setKeyEnv(t *testing.T) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	t.Setenv("RESUMATCH_JWT_PRIVATE_KEY", string(privPEM))
	t.Setenv("RESUMATCH_JWT_PUBLIC_KEY", string(pubPEM))
}

func TestLoad(t *testing.T) {
	setKeyEnv(t)
	secret := make([]byte, 32)
	t.Setenv("RESUMATCH_CRYPTO_SECRET", hex.EncodeToString(secret))
	t.Setenv("RESUMATCH_ADDR", ":9090")
	t.Setenv("RESUMATCH_ACCESS_TOKEN_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.RefreshTokenTTL)
	}
	if cfg.PrivateKey == nil || cfg.PublicKey == nil {
		t.Fatalf("keys not parsed")
	}
	if len(cfg.CryptoSecret) != 32 {
		t.Fatalf("crypto secret %d bytes", len(cfg.CryptoSecret))
	}
}

func TestLoadRejectsBadSecret(t *testing.T) {
	setKeyEnv(t)

	t.Setenv("RESUMATCH_CRYPTO_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("missing secret accepted")
	}

	t.Setenv("RESUMATCH_CRYPTO_SECRET", "abcd")
	if _, err := Load(); err == nil {
		t.Fatal("short secret accepted")
	}

	t.Setenv("RESUMATCH_CRYPTO_SECRET", "not-hex")
	if _, err := Load(); err == nil {
		t.Fatal("non-hex secret accepted")
	}
}

func TestLoadRequiresKeys(t *testing.T) {
	t.Setenv("RESUMATCH_JWT_PRIVATE_KEY", "")
	t.Setenv("RESUMATCH_JWT_PRIVATE_KEY_FILE", "")
	t.Setenv("RESUMATCH_CRYPTO_SECRET", hex.EncodeToString(make([]byte, 32)))
	if _, err := Load(); err == nil {
		t.Fatal("missing private key accepted")
	}
}
