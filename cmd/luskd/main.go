// luskd is a headless client daemon for an Overseerr-compatible media
// server. It submits and tracks media requests, defers submissions to a
// durable offline queue when the server is unreachable, and replays the
// queue once connectivity returns.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lusk/luskd/internal/api"
	"github.com/lusk/luskd/internal/config"
	"github.com/lusk/luskd/internal/database"
	"github.com/lusk/luskd/internal/health"
	"github.com/lusk/luskd/internal/history"
	"github.com/lusk/luskd/internal/logger"
	"github.com/lusk/luskd/internal/overseerr"
	"github.com/lusk/luskd/internal/request"
	"github.com/lusk/luskd/internal/scheduler"
	"github.com/lusk/luskd/internal/websocket"
)

const drainTaskID = "drain-offline-queue"

func main() {
	// Optional .env for local development; real deployments use the config
	// file or LUSKD_* environment variables.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("server", cfg.Overseerr.BaseURL).
		Msg("starting luskd")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub(log.Logger)
	go hub.Run()
	log.Stream().SetHub(hub)

	client := overseerr.NewClient(cfg.Overseerr, log.Logger)
	cache := request.NewCache(db.Conn(), log.Logger)
	queue := request.NewQueue(db.Conn(), log.Logger)
	activity := history.NewService(db.Conn(), log.Logger)

	monitor := health.NewMonitor(log.Logger)
	monitor.SetBroadcaster(hub)

	svc := request.NewService(cache, queue, client, log.Logger)
	svc.SetRefreshTake(cfg.Sync.RefreshTake)
	svc.SetBroadcaster(request.NewEventBroadcaster(hub))
	svc.SetActivityLog(activity)
	svc.SetStatusReporter(monitor)

	runner := scheduler.NewDrainRunner(svc, client, cfg.Sync.DrainAttempts, log.Logger)
	defer runner.Stop()
	runner.SetStatusReporter(monitor)
	svc.SetDrainTrigger(runner)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	err = sched.RegisterTask(scheduler.TaskConfig{
		ID:   drainTaskID,
		Name: "Drain offline request queue",
		Cron: cfg.Sync.DrainCron,
		Func: func(ctx context.Context) error {
			runner.TriggerDrain()
			return nil
		},
		// Replay whatever survived the last shutdown.
		RunOnStart: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register drain task")
	}
	sched.Start()
	defer sched.Stop() //nolint:errcheck

	server := api.New(cfg.Server, log.Logger, request.NewHandlers(svc), history.NewHandlers(activity), monitor, hub, log.Stream())
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to shut down API server")
	}
}
