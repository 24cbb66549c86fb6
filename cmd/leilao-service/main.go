package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leilao/internal/api/handlers"
	apimiddleware "leilao/internal/api/middleware"
	"leilao/internal/config"
	"leilao/internal/domain"
	"leilao/internal/infrastructure/leader"
	"leilao/internal/infrastructure/mysql"
	redisinfra "leilao/internal/infrastructure/redis"
	wsinfra "leilao/internal/infrastructure/websocket"
	"leilao/internal/services"
	"leilao/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	log := logger.New()
	log.Info("Starting leilao service")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Error("Failed to open MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping MySQL", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to MySQL")

	// Stores and bus
	auctionRepo := mysql.NewAuctionRepository(db)
	bidRepo := mysql.NewBidRepository(db)
	highestCache := redisinfra.NewHighestCache(rdb)
	eventPublisher := redisinfra.NewEventPublisher(rdb)
	eventSubscriber := redisinfra.NewEventSubscriber(rdb, log)

	// Core services
	clock := domain.SystemClock{}
	locks := services.NewAuctionLocks()
	auctionManager := services.NewAuctionManager(auctionRepo, eventPublisher, locks, clock, log)
	bidService := services.NewBidService(
		auctionRepo, bidRepo, highestCache, eventPublisher,
		locks, clock, cfg.Bidding.CommitRetries, log)

	// Websocket fan-out
	connManager := wsinfra.NewConnectionManager(log)
	eventListener := services.NewEventListener(connManager, highestCache, log)

	listenerCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	go func() {
		if err := eventListener.Start(listenerCtx, eventSubscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener exited", "error", err)
		}
	}()

	// Expiry monitor, leader-gated across instances. The sweep re-attempts
	// leadership each interval, so this first try is allowed to lose.
	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL)
	if _, err := leaderElection.BecomeLeader(ctx, cfg.Instance.ID); err != nil {
		log.Warn("Leader election attempt failed", "error", err)
	}

	monitor := services.NewExpiryMonitor(
		auctionRepo, eventPublisher, leaderElection, clock,
		cfg.Instance.ID, cfg.Monitor.Interval, log)
	if err := monitor.Start(listenerCtx); err != nil {
		log.Error("Failed to start expiry monitor", "error", err)
		os.Exit(1)
	}
	defer monitor.Stop()

	// REST API
	identity := apimiddleware.NewHeaderIdentity()
	auctionHandler := handlers.NewAuctionHandler(auctionManager, identity, log)
	bidHandler := handlers.NewBidHandler(bidService, identity, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.POST("/auctions", auctionHandler.CreateAuction)
	e.GET("/auctions", auctionHandler.ListAuctions)
	e.GET("/auctions/:id", auctionHandler.GetAuction)
	e.PUT("/auctions/:id", auctionHandler.UpdateAuction)
	e.DELETE("/auctions/:id", auctionHandler.DeleteAuction)
	e.POST("/auctions/:id/open", auctionHandler.OpenAuction)
	e.POST("/auctions/:id/close", auctionHandler.CloseAuction)
	e.POST("/auctions/:id/cancel", auctionHandler.CancelAuction)
	e.POST("/auctions/:id/bids", bidHandler.PlaceBid)
	e.GET("/auctions/:id/bids", bidHandler.ListBids)
	e.GET("/auctions/:id/bids/highest", bidHandler.GetHighestBid)
	e.GET("/bids/mine", bidHandler.ListMyBids)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("REST API listening", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("REST server failed", "error", err)
		}
	}()

	// Watch socket on its own listener
	wsHandler := wsinfra.NewHandler(auctionRepo, connManager, log)
	wsRouter := mux.NewRouter()
	wsRouter.HandleFunc("/ws/auctions/{auctionID}", wsHandler.HandleConnection)

	wsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Websocket.Port),
		Handler: wsRouter,
	}
	go func() {
		log.Info("Websocket listening", "address", wsServer.Addr)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Websocket server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	stopListener()
	if err := leaderElection.ReleaseLeadership(context.Background(), cfg.Instance.ID); err != nil {
		log.Warn("Failed to release leadership", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("REST shutdown failed", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Websocket shutdown failed", "error", err)
	}
}
