// Command widgetauth-server serves widget session endpoints backed by the
// widgetAuth engine.
//
// Configuration is read from the environment (see internal/config). Without
// WIDGETAUTH_REDIS_URL the server runs against an in-process miniredis and,
// if the policy file defines no partners, seeds a demo partner whose key is
// logged at startup.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	widgetAuth "github.com/MrEthical07/widgetAuth"
	"github.com/MrEthical07/widgetAuth/audit"
	"github.com/MrEthical07/widgetAuth/internal"
	"github.com/MrEthical07/widgetAuth/internal/config"
	"github.com/MrEthical07/widgetAuth/keyhash"
)

const demoKeyID = "demo0001"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("widgetauth-server: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("widgetauth-server: %v", err)
	}
}

func run(cfg *config.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeRedis()
	devMode := cfg.RedisURL == ""

	var policy *config.Policy
	if cfg.PolicyFile != "" {
		if policy, err = config.LoadPolicy(cfg.PolicyFile); err != nil {
			return err
		}
	}

	engineCfg := widgetAuth.DefaultConfig()
	engineCfg.JWT.PrivateKey = []byte(cfg.JWTSecret)
	engineCfg.JWT.Issuer = cfg.Issuer
	engineCfg.JWT.Audience = cfg.Audience
	engineCfg.Proxy.TrustedProxies = cfg.TrustedProxies
	if err := policy.Apply(&engineCfg.RateLimits); err != nil {
		return err
	}

	recs, err := policy.PartnerRecords()
	if err != nil {
		return err
	}
	partners := config.NewStaticPartners(recs)
	if partners.Len() == 0 {
		if !devMode {
			return errors.New("no partners configured; set WIDGETAUTH_POLICY_FILE")
		}
		if err := seedDemoPartner(partners, engineCfg.KeyHash); err != nil {
			return err
		}
	}

	primary, closePrimary, err := openPrimarySink(cfg, rdb)
	if err != nil {
		return err
	}
	defer closePrimary()

	fallback, err := audit.OpenSQLiteSink(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer fallback.Close()

	engine, err := widgetAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithPartnerProvider(partners).
		WithAuditSinks(primary, fallback).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	engine.Start(ctx)
	defer engine.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           withCORS(cfg.CORSOrigins, newHandler(engine)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("widgetauth-server: listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Print("widgetauth-server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openRedis(url string) (redis.UniversalClient, func(), error) {
	if url == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		log.Printf("widgetauth-server: using in-process miniredis at %s", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse WIDGETAUTH_REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return client, func() { _ = client.Close() }, nil
}

func openPrimarySink(cfg *config.Server, rdb redis.UniversalClient) (audit.Sink, func(), error) {
	if cfg.KafkaEnabled() {
		sink, err := audit.NewKafkaSink(audit.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	}
	return audit.NewRedisStreamSink(rdb, audit.RedisStreamConfig{Stream: cfg.AuditStream}), func() {}, nil
}

func seedDemoPartner(partners *config.StaticPartners, cost keyhash.Config) error {
	secret, err := internal.NewAPIKeySecret()
	if err != nil {
		return err
	}
	hasher, err := keyhash.NewArgon2(cost)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(secret)
	if err != nil {
		return err
	}
	partners.Put(demoKeyID, widgetAuth.PartnerRecord{
		PartnerID:   "demo",
		KeyHash:     hash,
		Status:      widgetAuth.PartnerActive,
		Permissions: []string{"widget:read"},
	})
	key := keyhash.APIKey{KeyID: demoKeyID, Secret: secret}
	log.Printf("widgetauth-server: dev mode demo partner key %s", key.String())
	return nil
}

// withCORS admits the configured origins, or any origin when none are set.
// Partner origin checks happen in the engine; credentials travel in the
// Authorization header, so cookies are never allowed.
func withCORS(origins []string, h http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler(h)
}
