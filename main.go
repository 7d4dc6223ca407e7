package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/api"
	"storefront-backend/internal/auth"
	"storefront-backend/internal/config"
	"storefront-backend/internal/events"
	"storefront-backend/internal/shop"
	"storefront-backend/internal/store"
	"storefront-backend/internal/store/memstore"
	"storefront-backend/internal/store/mongostore"
)

func main() {
	logger := log.New(os.Stdout, "[storefront] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Printf("close store: %v", err)
		}
	}()

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		rp, err := events.DialRabbit(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatalf("rabbitmq: %v", err)
		}
		publisher = rp
		logger.Printf("publishing events to %s", events.EventsExchange)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Printf("close publisher: %v", err)
		}
	}()

	router := api.NewRouter(api.Deps{
		Logger:           logger,
		Shop:             shop.NewService(st, publisher, logger),
		Auth:             auth.NewService(st.Users(), 0),
		Tokens:           auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RequestTimeout:   cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on :%s (store=%s)", cfg.Port, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Printf("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	logger.Printf("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (store.Store, error) {
	if cfg.StoreBackend == config.BackendMemory {
		mem := memstore.New()
		if err := mem.Seed(ctx, memstore.DemoCatalog); err != nil {
			return nil, err
		}
		logger.Printf("using in-memory store with %d demo products", len(memstore.DemoCatalog))
		return mem, nil
	}

	logger.Printf("connecting to MongoDB database %q", cfg.Mongo.Database)
	return mongostore.Connect(ctx, mongostore.Config{
		URI:          cfg.Mongo.URI,
		Database:     cfg.Mongo.Database,
		Transactions: cfg.Mongo.Transactions,
	})
}
