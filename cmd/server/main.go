package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/rl1809/order-realtime/internal/adapter/eventsource"
	"github.com/rl1809/order-realtime/internal/adapter/handler"
	"github.com/rl1809/order-realtime/internal/adapter/storage"
	"github.com/rl1809/order-realtime/internal/config"
	"github.com/rl1809/order-realtime/internal/core/service"
	"github.com/rl1809/order-realtime/internal/metrics"
	"github.com/rl1809/order-realtime/internal/port"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Info().Str("event_source", cfg.EventSource).Msg("starting order-realtime")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.ApplySchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	log.Info().Msg("connected to mysql")

	// Initialize Redis. Reads fall back to the store while it is down.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, serving without cache")
	} else {
		log.Info().Msg("connected to redis")
	}
	redisAdapter := storage.NewRedisAdapter(rdb)

	reg := metrics.NewRegistry()

	// Change feed
	var (
		publisher port.EventPublisher
		open      port.EventSourceFactory
		closeFeed func()
	)
	switch cfg.EventSource {
	case config.EventSourceMemory:
		bus := eventsource.NewBus(0)
		publisher, open, closeFeed = bus, bus.Factory(), bus.Close
	default:
		kp := eventsource.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher, open = kp, eventsource.KafkaFactory(cfg.KafkaBrokers, cfg.KafkaTopic)
		closeFeed = func() {
			if err := kp.Close(); err != nil {
				log.Warn().Err(err).Msg("close kafka publisher")
			}
		}
	}

	// Initialize services
	cache := service.NewReadThrough(redisAdapter, reg)
	registry := service.NewSubscriptionRegistry()
	reg.TrackSubscriptions(registry.Len)
	resolver := service.NewOrderViewResolver(mysqlAdapter, mysqlAdapter, reg)
	hub := handler.NewHub(cfg.WSSendBuffer, reg)

	catalogService := service.NewCatalogService(mysqlAdapter, mysqlAdapter, cache, cfg.InvalidateOnWrite)
	orderService := service.NewOrderService(mysqlAdapter, publisher, cache, cfg.InvalidateOnWrite)
	realtimeService := service.NewRealtimeService(registry, resolver, mysqlAdapter, hub)

	// Start watchers
	health := handler.NewGRPCHealth(service.UpdateWatcherName, service.InsertWatcherName)
	supervisor := service.NewSupervisor(open, health, cfg.WatcherBackoff, cfg.WatcherMaxWait, reg)
	watchers := []service.Watcher{
		service.NewUpdateWatcher(registry, resolver, mysqlAdapter, hub, reg),
		service.NewInsertWatcher(registry, resolver, hub, reg),
	}

	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func(w service.Watcher) {
			defer wg.Done()
			supervisor.Run(ctx, w)
		}(w)
	}
	log.Info().Int("watchers", len(watchers)).Msg("started watchers")

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(catalogService, orderService)
	wsHandler := handler.NewWSHandler(hub, realtimeService, cfg.WSAllowedOrigins, cfg.WSWriteTimeout)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, wsHandler, reg.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	health.Shutdown()

	// Stop HTTP server; hijacked websocket connections are closed through the hub
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown")
	}
	hub.CloseAll()
	log.Info().Msg("HTTP server stopped")

	// Stop watchers
	cancel()
	wg.Wait()
	closeFeed()
	log.Info().Msg("watchers stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
