package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tarcisiozf/dslot/engine"
	"github.com/tarcisiozf/dslot/httpsrv"
	"github.com/tarcisiozf/dslot/internal/env"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := newLogger(env.Env("LOG_LEVEL", "info"))
	defer func() { _ = logger.Sync() }()

	options, err := configFromEnv(logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := engine.NewEngine(options...)
	if err != nil {
		logger.Fatal("error setting up engine", zap.Error(err))
	}
	if err = db.Start(ctx); err != nil {
		logger.Fatal("error starting engine", zap.Error(err))
	}

	httpServer := httpsrv.NewHttpServer(db, db.Config().HttpPort, logger)
	httpServer.Start()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)

	<-ch
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		logger.Fatal("error shutting down engine", zap.Error(err))
	}
}

func configFromEnv(logger *zap.Logger) ([]engine.ConfigOption, error) {
	redisSlots, err := env.Int("REDIS_SLOTS", 0)
	if err != nil {
		return nil, err
	}
	fleetSlots, err := env.Int("FLEET_SLOTS", 0)
	if err != nil {
		return nil, err
	}
	chunkSize, err := env.Int("CHUNK_SIZE", 0)
	if err != nil {
		return nil, err
	}
	persist, err := env.Bool("PERSIST", false)
	if err != nil {
		return nil, err
	}
	publish, err := env.Bool("PUBLISH_BANDS", false)
	if err != nil {
		return nil, err
	}

	options := []engine.ConfigOption{
		engine.WithLogger(logger),
		engine.WithHttpPort(env.Env("HTTP_PORT", "8090")),
		engine.WithDirPath(env.Env("DATA_DIR", "./db")),
		engine.WithPersistence(persist),
	}
	if redisSlots > 0 {
		options = append(options, engine.WithRedisSlots(redisSlots))
	}
	if fleetSlots > 0 {
		options = append(options, engine.WithFleetSlots(fleetSlots))
	}
	if chunkSize > 0 {
		options = append(options, engine.WithChunkSize(chunkSize))
	}
	if path := env.Env("BANDS_FILE"); path != "" {
		options = append(options, engine.WithBandsFile(path))
	}
	if servers := env.List("ZOOKEEPER_SERVERS"); len(servers) > 0 {
		options = append(options,
			engine.WithZookeeper(servers...),
			engine.WithZNodeBasePath(env.Env("ZNODE_BASE_PATH", "/dslot")),
		)
		if publish {
			options = append(options, engine.WithPublishBands())
		}
	}
	return options, nil
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
