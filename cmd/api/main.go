package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"carbex.org/internal/access"
	"carbex.org/internal/attest"
	"carbex.org/internal/auth"
	"carbex.org/internal/chain"
	"carbex.org/internal/config"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
	"carbex.org/internal/httpapi"
	"carbex.org/internal/notify"
	"carbex.org/internal/obs"
	"carbex.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	configPath := flag.String("config", os.Getenv("CARBEX_CONFIG"), "Path to YAML config")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CARBEX_COMMIT"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	tokens := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Postgres when a DSN is configured, in-memory otherwise.
	var (
		users     auth.UserStore
		documents document.Service
		credits   credit.Service
		store     *pg.Store
	)
	if cfg.Database.DSN != "" {
		store, err = pg.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		users, documents, credits = store, store, store
	} else {
		users = auth.NewInMemoryStore()
		documents = document.NewInMemory()
		credits = credit.NewInMemory()
	}

	authSvc, err := auth.NewService(users, tokens)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	attestSvc, err := attest.NewService(attest.Domain{
		Name:              cfg.Attest.DomainName,
		Version:           cfg.Attest.DomainVersion,
		ChainID:           cfg.Attest.ChainID,
		VerifyingContract: cfg.Attest.VerifyingContract,
	}, cfg.Attest.TTL)
	if err != nil {
		log.Printf("attestations disabled: %v", err)
	}

	rp := httpapi.ReadyProbe{}
	if store != nil {
		rp.DB = store.DB()
	}
	api := httpapi.New(rp, version, httpapi.Deps{
		Auth:          authSvc,
		Access:        access.NewResolver(nil, nil),
		Documents:     documents,
		Credits:       credits,
		Attestations:  attestSvc,
		Registry:      chain.NewInMemoryRegistry(),
		Notifier:      notify.Log{},
		PollInterval:  cfg.Dashboard.PollInterval,
		FetchTimeout:  cfg.Dashboard.FetchTimeout,
		RatePerSecond: cfg.Server.RatePerSecond,
		RateBurst:     cfg.Server.RateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting carbex-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
