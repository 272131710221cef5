package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/SabadashIvan/nexora-cart/internal/checkout"
	"github.com/SabadashIvan/nexora-cart/internal/client"
	"github.com/SabadashIvan/nexora-cart/internal/engine"
	"github.com/SabadashIvan/nexora-cart/internal/events"
	ihttp "github.com/SabadashIvan/nexora-cart/internal/http"
	"github.com/SabadashIvan/nexora-cart/internal/token"
)

func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("http_port", "8080")
	v.SetDefault("backend_url", "http://localhost:9000")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("backend_timeout", "15s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("token_file", ".nexora/token.json")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_session_id", "default")
	v.SetDefault("kafka_brokers", "")

	v.SetConfigName("storefront")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			slog.Error("failed to read config", "error", err)
			os.Exit(1)
		}
	}
	return v
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()
	requestTimeout := cfg.GetDuration("request_timeout")

	// Guest token storage: redis when configured (multi-instance
	// storefront), a local file otherwise.
	var storage token.Storage
	if addr := cfg.GetString("redis_addr"); addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()
		storage = token.NewRedisStorage(redisClient, cfg.GetString("redis_session_id"))
		logger.Info("using redis token storage", "addr", addr)
	} else {
		storage = token.NewFileStorage(cfg.GetString("token_file"))
	}
	tokens := token.NewStore(storage)

	// Backend HTTP client: otel instrumentation outermost, circuit
	// breaker underneath, transport timeout at the bottom.
	httpClient := &http.Client{
		Timeout: cfg.GetDuration("backend_timeout"),
		Transport: otelhttp.NewTransport(
			client.NewBreakerTransport(http.DefaultTransport, logger),
		),
	}
	backend := client.New(
		cfg.GetString("backend_url"),
		client.WithHTTPClient(httpClient),
		client.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink events.Sink = events.NopSink{}
	if brokers := cfg.GetStringSlice("kafka_brokers"); len(brokers) > 0 && brokers[0] != "" {
		publisher := events.NewKafkaPublisher(logger, brokers...)
		go publisher.Run(ctx)
		sink = publisher
		logger.Info("publishing cart events", "brokers", brokers)
	}

	cart := engine.New(backend, tokens,
		engine.WithLogger(logger),
		engine.WithSink(sink),
	)
	if err := cart.Initialize(ctx); err != nil {
		// Initialization is best-effort: the cart bootstraps on the first
		// mutation even when the initial fetch failed.
		logger.Warn("cart initialization failed", "error", err)
	}

	coordinator := engine.NewCoordinator(cart, logger)
	machine := checkout.New(backend, cart,
		checkout.WithLogger(logger),
		checkout.WithSink(sink),
	)

	router := ihttp.NewRouter(
		ihttp.NewCartHandler(cart, requestTimeout),
		ihttp.NewCheckoutHandler(machine, requestTimeout),
		ihttp.NewAuthHandler(coordinator, requestTimeout),
		requestTimeout,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.GetString("http_port"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("storefront listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetDuration("shutdown_timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
