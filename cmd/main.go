package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	httpapi "github.com/immxrtalbeast/studyroom/internal/api/http"
	"github.com/immxrtalbeast/studyroom/internal/cache"
	"github.com/immxrtalbeast/studyroom/internal/config"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/internal/service"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
	"github.com/immxrtalbeast/studyroom/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	log.Info("starting studyroom", slog.String("env", cfg.Env))

	rooms, db, err := setupStorage(cfg.Storage)
	if err != nil {
		log.Error("failed to set up storage", sl.Err(err))
		os.Exit(1)
	}

	var gateway repository.Gateway = rooms
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: 5 * time.Second,
		})
		roomCache := cache.NewRoomCache(rooms, redisClient, cfg.Redis.Prefix, cfg.Redis.TTL, log)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := roomCache.Ping(pingCtx); err != nil {
			log.Warn("redis unreachable, room cache will fall through", sl.Err(err))
		}
		cancel()
		gateway = roomCache
	}

	roomService := service.NewRoomService(rooms, log,
		service.WithMaxCodeAttempts(cfg.Realtime.RoomCodeMaxAttempts),
	)
	coordinator := service.NewCoordinator(gateway, service.Options{
		DocumentQuietPeriod: cfg.Realtime.DocumentQuietPeriod,
		PersistTimeout:      cfg.Realtime.PersistTimeout,
	}, log)

	roomController := httpapi.NewRoomController(roomService)
	realtimeController := httpapi.NewRealtimeController(coordinator, httpapi.WSConfig{
		SendBuffer:     cfg.Realtime.SendBuffer,
		WriteWait:      cfg.Realtime.WriteWait,
		PongWait:       cfg.Realtime.PongWait,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
	}, cfg.HTTP.AllowedOrigins, log)
	webrtcController := httpapi.NewWebRTCController(cfg.WebRTC.STUNServers)

	router := httpapi.SetupRouter(cfg.HTTP.AllowedOrigins, roomController, realtimeController, webrtcController)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.HTTP.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// One operation keeps the order: stop accepting, drop sockets and
			// flush documents, then close the stores.
			"studyroom": func(ctx context.Context) error {
				log.Info("graceful shutdown initiated")
				var errs []error
				if err := srv.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
				if err := coordinator.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						errs = append(errs, err)
					}
				}
				if db != nil {
					if sqlDB, err := db.DB(); err == nil {
						errs = append(errs, sqlDB.Close())
					}
				}
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	log.Info("application exited", slog.Int("code", exitCode))
	os.Exit(exitCode)
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

// setupStorage returns the room repository for the configured driver and the
// gorm handle to close on shutdown, nil for the in-memory driver.
func setupStorage(cfg config.StorageConfig) (repository.RoomRepository, *gorm.DB, error) {
	if cfg.Driver == config.StorageDriverMemory {
		return repository.NewInMemoryRoomRepository(), nil, nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewGormRoomRepository(db), db, nil
}

func connectDatabase(cfg config.StorageConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := repository.Migrate(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
