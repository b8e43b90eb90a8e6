package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resumatch.org/internal/config"
	"resumatch.org/internal/httpapi"
	"resumatch.org/internal/identity"
	"resumatch.org/internal/mail"
	"resumatch.org/internal/obs"
	"resumatch.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Persistence: Postgres when a DSN is set, in-process otherwise so the
	// service can run locally without infrastructure.
	var (
		store identity.Store
		probe httpapi.ReadyProbe
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("RESUMATCH_PG_DSN not set, using in-memory store")
		store = identity.NewInMemoryStore()
	}

	// OTP delivery: real SMTP when configured, log lines otherwise.
	var notifier mail.Notifier
	if cfg.SMTP.Configured() {
		notifier, err = mail.NewSMTPNotifier(cfg.SMTP)
		if err != nil {
			log.Fatalf("smtp notifier: %v", err)
		}
	} else {
		log.Println("SMTP not configured, logging OTP deliveries")
		notifier = mail.LogNotifier{}
	}

	box, err := identity.NewSealedBox(cfg.CryptoSecret)
	if err != nil {
		log.Fatalf("sealed box: %v", err)
	}
	issuer := identity.NewTokenIssuer(cfg.PrivateKey, cfg.PublicKey, cfg.Issuer,
		identity.WithTokenTTLs(cfg.AccessTokenTTL, cfg.RefreshTokenTTL))
	challenges := identity.NewChallengeManager(store, notifier, box)
	svc := identity.NewService(store, challenges, issuer, box)

	api := httpapi.New(svc, probe, version, httpapi.Options{
		FrontendOrigin: cfg.FrontendOrigin,
		SecureCookies:  os.Getenv("RESUMATCH_INSECURE_COOKIES") == "",
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting resumatch-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
