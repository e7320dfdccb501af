// Package main provides the query server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/query_layer/infrastructure/config"
	"github.com/R3E-Network/query_layer/infrastructure/logging"
	"github.com/R3E-Network/query_layer/infrastructure/metrics"
	"github.com/R3E-Network/query_layer/internal/engine"
	"github.com/R3E-Network/query_layer/internal/provider"
	"github.com/R3E-Network/query_layer/internal/query"
	"github.com/R3E-Network/query_layer/internal/server"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides LISTEN_ADDR)")
	source := flag.String("source", "", "data source path for the jsonlines driver (overrides SOURCE_PATH)")
	flag.Parse()

	cfg := config.Load()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *source != "" {
		cfg.Source.Driver = config.SourceJSONLines
		cfg.Source.Path = *source
	}

	log := logging.NewFromEnv("queryserver")

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	m := metrics.New(server.ServiceName())

	host, err := buildHost(cfg, log, m)
	if err != nil {
		log.WithError(err).Fatal("build engine host")
	}

	driver := query.NewDriver(host, log, m)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(cfg, log, m, driver).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr":   cfg.ListenAddr,
			"driver": cfg.Source.Driver,
			"mode":   cfg.Engine.Mode,
		}).Info("query server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}

// buildHost constructs the provider named by the configuration and binds
// it to the selected engine host flavour.
func buildHost(cfg *config.Config, log *logging.Logger, m *metrics.Metrics) (query.Host, error) {
	engineCfg := engine.Config{
		Limits: engine.Limits{
			HeapBytes: cfg.Engine.HeapBytes,
			Time:      cfg.Engine.TimeLimit,
		},
		ResultsCapacity: cfg.Engine.ResultsCapacity,
		Log:             log,
		Metrics:         m,
	}

	switch cfg.Source.Driver {
	case config.SourceJSONLines:
		p := provider.NewJSONLines(cfg.Source.Path, 0, log)
		if cfg.Engine.Mode == config.EngineModeTable {
			return engine.NewTableHost(p, engineCfg), nil
		}
		return engine.NewStreamHost(p, engineCfg), nil

	case config.SourceRedis:
		if cfg.Engine.Mode == config.EngineModeTable {
			return nil, fmt.Errorf("the redis driver does not support table mode")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Source.RedisAddr})
		p := provider.NewRedis(client, cfg.Source.RedisKey, int64(cfg.Source.RedisBatch), log)
		return engine.NewStreamHost(p, engineCfg), nil

	case config.SourcePostgres:
		if cfg.Engine.Mode == config.EngineModeTable {
			return nil, fmt.Errorf("the postgres driver does not support table mode")
		}
		db, err := sqlx.Connect("postgres", cfg.Source.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		p, err := provider.NewPostgres(db, cfg.Source.PostgresTable, int64(cfg.Source.PostgresBatch), log)
		if err != nil {
			return nil, err
		}
		return engine.NewStreamHost(p, engineCfg), nil
	}

	return nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
}
