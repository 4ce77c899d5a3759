package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/backend"
	"github.com/CerneaMihnea/smart-valve-control/internal/config"
	"github.com/CerneaMihnea/smart-valve-control/internal/database"
	"github.com/CerneaMihnea/smart-valve-control/internal/events"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
	httpapi "github.com/CerneaMihnea/smart-valve-control/internal/http"
	"github.com/CerneaMihnea/smart-valve-control/internal/logger"
	"github.com/CerneaMihnea/smart-valve-control/internal/metrics"
	"github.com/CerneaMihnea/smart-valve-control/internal/panel"
	"github.com/CerneaMihnea/smart-valve-control/internal/poller"
	"github.com/CerneaMihnea/smart-valve-control/internal/repository"
	"github.com/CerneaMihnea/smart-valve-control/internal/service"
	"github.com/CerneaMihnea/smart-valve-control/internal/simulation"
	"github.com/CerneaMihnea/smart-valve-control/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "valve-panel")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Warn("Metrics registration failed, continuing without metrics", zap.Error(err))
	}

	// offline cache: redis when configured and reachable, otherwise in-process
	var kv store.KV = store.NewMemoryKV()
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		c := store.NewRedisClient(&cfg.Redis)
		if err := store.Ping(ctx, c); err != nil {
			log.Warn("Redis unavailable, offline cache falls back to memory", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = c.Close()
		} else {
			redisClient = c
			kv = store.NewRedisKV(c)
		}
	}
	cache := backend.NewOfflineCache(kv, cfg.Cache.Name, log)
	if n, err := cache.Purge(ctx); err != nil {
		log.Warn("Offline cache purge failed", zap.Error(err))
	} else if n > 0 {
		log.Info("Purged stale offline cache entries", zap.Int("keys", n))
	}

	client := backend.NewClient(cfg.Backend, cache, collector, log)
	client.Warm(ctx)

	// simulation history: postgres when enabled, otherwise memory
	var runs repository.SimulationRuns = repository.NewMemorySimulationRuns()
	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(ctx, &cfg.Database); err == nil {
			pg := repository.NewPostgresSimulationRuns(d, log)
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Warn("Simulation runs schema init failed, using memory", zap.Error(err))
				_ = database.Close(d)
			} else {
				db = d
				runs = pg
				log.Info("DB enabled for simulation runs")
			}
		} else {
			log.Warn("DB enabled but connection failed, using memory", zap.Error(err))
		}
	}

	var pub events.Publisher = events.Nop{}
	if cfg.MQTT.Enabled {
		if mc, err := events.NewClient(&cfg.MQTT); err == nil {
			pub = events.NewMQTTPublisher(mc, cfg.MQTT.Topic, cfg.MQTT.QoS, log)
			log.Info("Publishing simulation events", zap.String("broker", cfg.MQTT.Broker), zap.String("topic", cfg.MQTT.Topic))
		} else {
			log.Warn("MQTT connect failed, simulation events disabled", zap.Error(err))
		}
	}

	seq := simulation.NewSequencer(client, runs, pub, collector, log)
	statusPoller := poller.New(client, cfg.Panel.StatusPollInterval, log)
	session := panel.NewSession(client, seq, statusPoller, collector, log, panel.Options{
		NodeSize:    graph.Size{Width: cfg.Panel.NodeWidth, Height: cfg.Panel.NodeHeight},
		ZonePadding: cfg.Panel.ZonePadding,
	})
	if err := session.Load(ctx); err != nil {
		log.Warn("Initial graph load failed, starting with an empty panel", zap.Error(err))
	}

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterPanelRoutes(httpapi.NewPanelHandler(session, log))
	router.HandleHandler("/metrics", collector.Handler())

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	session.Close()
	pub.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = database.Close(db)
	}
}
