package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/HammerMeetNail/oasis/internal/config"
	"github.com/HammerMeetNail/oasis/internal/database"
	"github.com/HammerMeetNail/oasis/internal/handlers"
	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/middleware"
	"github.com/HammerMeetNail/oasis/internal/realtime"
	"github.com/HammerMeetNail/oasis/internal/services"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Could not load .env file", map[string]interface{}{"error": err.Error()})
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := resolveLogLevel(cfg)
	logger.SetLevel(level)
	logging.SetDefaultLevel(level)

	logger.Info("Starting Oasis location service...", map[string]interface{}{
		"version": version,
		"env":     cfg.Server.Environment,
	})

	// Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), cfg.Database.MigrationsPath)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	// Connect to Redis
	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(database.RedisOptions{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	var natsConn *database.NATSConn
	if cfg.Proximity.Enabled && cfg.Notify.Provider == "nats" {
		logger.Info("Connecting to NATS", map[string]interface{}{"url": cfg.Notify.NATSURL})
		natsConn, err = database.NewNATSConn(cfg.Notify.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsConn.Close()
		logger.Info("Connected to NATS")
	}

	// Initialize services
	dbAdapter := services.NewPoolAdapter(db.Pool)
	redisAdapter := services.NewRedisAdapter(redisDB.Client)

	userService := services.NewUserService(dbAdapter)
	friendService := services.NewFriendService(dbAdapter)
	locationService := services.NewLocationService(dbAdapter)

	registry := realtime.NewRegistry(logger)
	pool := realtime.NewPool(cfg.Realtime.FanoutWorkers, cfg.Realtime.FanoutQueue, logger)
	defer pool.Shutdown()

	deps := realtime.EngineDeps{
		Locations: locationService,
		Friends:   friendService,
		Users:     userService,
		Snapshots: locationService,
		Registry:  registry,
		Pool:      pool,
		Logger:    logger,
	}
	if cfg.Proximity.Enabled {
		notifier := buildNotifier(cfg, natsConn, logger)
		deps.Proximity = services.NewProximityService(
			locationService, userService, redisAdapter, notifier,
			cfg.Proximity.RadiusKm, cfg.Proximity.Cooldown, logger,
		)
		logger.Info("Proximity alerts enabled", map[string]interface{}{
			"provider":  cfg.Notify.Provider,
			"radius_km": cfg.Proximity.RadiusKm,
		})
	}
	engine := realtime.NewEngine(deps)

	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()
	sweeper := realtime.NewSweeper(registry, cfg.Realtime.IdleTimeout, cfg.Realtime.SweepInterval, logger)
	go sweeper.Start(sweeperCtx)

	// Initialize handlers
	var natsHealth interface{ IsConnected() bool }
	if natsConn != nil {
		natsHealth = natsConn
	}
	routes := routeHandlers{
		status:    handlers.NewStatusHandler(version, db, redisDB, natsHealth, registry),
		users:     handlers.NewUserHandler(userService, locationService, engine),
		friends:   handlers.NewFriendHandler(friendService, locationService, engine, registry),
		locations: handlers.NewLocationHandler(engine),
		ws: handlers.NewWSHandler(userService, registry, engine, handlers.WSOptions{
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			Conn: realtime.ConnOptions{
				SendBuffer:   cfg.Realtime.SendBuffer,
				WriteTimeout: cfg.Realtime.WriteTimeout,
			},
		}, logger),
		locationLimiter: middleware.NewRateLimiter(redisDB.Client, middleware.RateLimitOptions{
			Limit:    cfg.RateLimit.LocationPerMinute,
			Window:   time.Minute,
			Prefix:   "ratelimit:location:",
			Key:      middleware.PathValueKey("userId"),
			FailOpen: true,
			Logger:   logger,
		}),
	}
	if cfg.Server.EnableTestRoutes {
		routes.simulate = handlers.NewSimulateHandler(userService, engine)
		logger.Warn("Test routes enabled", map[string]interface{}{"env": cfg.Server.Environment})
	}

	mux := http.NewServeMux()
	registerRoutes(mux, routes)

	var handler http.Handler = mux
	handler = middleware.NewRequestLogger(logger).Apply(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WebSocket writes set their own deadlines; a server-wide write
		// timeout would cut long-lived sessions.
		IdleTimeout: 60 * time.Second,
	}
	server.RegisterOnShutdown(registry.CloseAll)

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...", map[string]interface{}{
			"connections": registry.Count(),
		})
		sweeperCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

type routeHandlers struct {
	status          *handlers.StatusHandler
	users           *handlers.UserHandler
	friends         *handlers.FriendHandler
	locations       *handlers.LocationHandler
	ws              http.Handler
	simulate        *handlers.SimulateHandler
	locationLimiter *middleware.RateLimiter
}

func registerRoutes(mux *http.ServeMux, h routeHandlers) {
	// Status and probes. WebSocket clients may also connect to the bare root.
	mux.Handle("GET /{$}", handlers.UpgradeOr(h.ws, http.HandlerFunc(h.status.Root)))
	mux.HandleFunc("GET /health", h.status.Health)
	mux.HandleFunc("GET /ready", h.status.Ready)
	mux.HandleFunc("GET /live", h.status.Live)
	mux.Handle("GET /ws", h.ws)

	// User endpoints
	mux.HandleFunc("POST /users/register", h.users.Register)
	mux.HandleFunc("GET /users/{userId}", h.users.Get)
	mux.HandleFunc("PUT /users/{userId}/privacy", h.users.UpdatePrivacy)

	// Location endpoint
	var updateLocation http.Handler = http.HandlerFunc(h.locations.Update)
	if h.locationLimiter != nil {
		updateLocation = h.locationLimiter.Middleware(updateLocation)
	}
	mux.Handle("POST /users/{userId}/location", updateLocation)

	// Friend endpoints
	mux.HandleFunc("GET /users/{userId}/friends", h.friends.List)
	mux.HandleFunc("GET /users/{userId}/friends/locations", h.friends.Locations)
	mux.HandleFunc("POST /users/{userId}/friends", h.friends.Add)
	mux.HandleFunc("DELETE /users/{userId}/friends/{friendId}", h.friends.Remove)

	// Development-only endpoints
	if h.simulate != nil {
		mux.HandleFunc("POST /test/simulate-friend-move", h.simulate.MoveFriend)
	}
}

func resolveLogLevel(cfg *config.Config) logging.Level {
	if cfg.Server.Debug {
		return logging.LevelDebug
	}
	return logging.ParseLevel(cfg.Server.LogLevel)
}

// buildNotifier picks the proximity alert channel. NATS without a live
// connection falls back to the console so alerts are at least logged.
func buildNotifier(cfg *config.Config, natsConn *database.NATSConn, logger *logging.Logger) services.Notifier {
	switch cfg.Notify.Provider {
	case "nats":
		if natsConn != nil {
			return services.NewNATSNotifier(natsConn, cfg.Notify.NATSSubject)
		}
		logger.Warn("NATS notifier requested without a connection; using console")
	case "resend":
		return services.NewEmailNotifier(cfg.Notify.ResendAPIKey, cfg.Notify.FromAddress, cfg.Notify.FromName)
	}
	return services.NewConsoleNotifier(logger)
}
