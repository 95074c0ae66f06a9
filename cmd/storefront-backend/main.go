package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront-backend/internal/config"
	"storefront-backend/internal/env"
	"storefront-backend/internal/infrastructure/gateway"
	"storefront-backend/internal/infrastructure/repo"
	"storefront-backend/internal/notify"
	"storefront-backend/internal/server"
	"storefront-backend/internal/usecase"
)

func main() {
	env.Load(".env", ".env.local")
	envDefaults := config.EnvDefaults()

	envName := flag.String("env", envDefaults.Env, "")
	port := flag.Int("port", envDefaults.Port, "")
	dsn := flag.String("dsn", envDefaults.DatabaseDSN, "")
	jwtSecret := flag.String("jwt-secret", envDefaults.JWTSecret, "")
	gatewayURL := flag.String("gateway-url", envDefaults.GatewayBaseURL, "")
	gatewayKey := flag.String("gateway-api-key", envDefaults.GatewayAPIKey, "")
	webhookSecret := flag.String("webhook-secret", envDefaults.WebhookSecret, "")
	flag.Parse()

	cfg := envDefaults
	cfg.Env = *envName
	cfg.Port = *port
	cfg.DatabaseDSN = *dsn
	cfg.JWTSecret = *jwtSecret
	cfg.GatewayBaseURL = *gatewayURL
	cfg.GatewayAPIKey = *gatewayKey
	cfg.WebhookSecret = *webhookSecret

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}

	hub := notify.NewHub(cfg.PushHeartbeat, cfg.PushIdleAfter, cfg.PushSweep)
	gw := &gateway.Client{BaseURL: cfg.GatewayBaseURL, APIKey: cfg.GatewayAPIKey}

	notifications := &usecase.NotificationService{Repo: store, Push: hub}
	carts := &usecase.CartService{
		Cart:     store,
		Products: store,
		Pricing: usecase.Pricing{
			TaxRateBps:        cfg.TaxRateBps,
			ShippingFlatCents: cfg.ShippingFlatCents,
			Currency:          cfg.Currency,
		},
	}
	orders := &usecase.OrderService{Repo: store, Cart: carts}
	payments := &usecase.PaymentService{
		Orders:           store,
		Payments:         store,
		Users:            store,
		Gateway:          gw,
		Notifications:    notifications,
		WebhookSecret:    cfg.WebhookSecret,
		WebhookTolerance: cfg.WebhookTolerance,
		AdminUserID:      cfg.AdminUserID,
	}
	identity := &usecase.Identity{Secret: cfg.JWTSecret}

	srv := server.New(cfg, identity, orders, payments, notifications, hub)
	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on :%d (env=%s)", cfg.Port, cfg.Env)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("server stopped")
}

// store is the union of the repository interfaces the services need.
type store interface {
	usecase.OrderRepo
	usecase.PaymentRepo
	usecase.NotificationRepo
	usecase.CartRepo
	usecase.ProductRepo
	usecase.UserRepo
}

func newStore(cfg config.Config) (store, error) {
	if cfg.DatabaseDSN == "" {
		log.Println("no database DSN configured, using in-memory store")
		return repo.NewMemoryStore(), nil
	}
	return repo.NewPostgresRepo(cfg.DatabaseDSN)
}
