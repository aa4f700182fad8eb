package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/api"
	"github.com/hearth-home/hearth-backend-go/internal/config"
	"github.com/hearth-home/hearth-backend-go/internal/database"
	"github.com/hearth-home/hearth-backend-go/internal/entities"
	"github.com/hearth-home/hearth-backend-go/internal/integrations"
	"github.com/hearth-home/hearth-backend-go/internal/integrations/nut"
	"github.com/hearth-home/hearth-backend-go/internal/integrations/openmeteo"
	"github.com/hearth-home/hearth-backend-go/internal/integrations/shellyplug"
	"github.com/hearth-home/hearth-backend-go/internal/integrations/sysmon"
	"github.com/hearth-home/hearth-backend-go/internal/metrics"
	"github.com/hearth-home/hearth-backend-go/internal/websocket"
	"github.com/hearth-home/hearth-backend-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	stateRepo := database.NewEntityStateRepository(db)
	refreshRepo := database.NewRefreshLogRepository(db)

	reg := metrics.New()
	entitySvc := entities.NewService(log)

	// Warm the registry with the last persisted snapshots so the API serves
	// known values before the first refresh lands. Everything starts
	// unavailable until its integration reports in.
	if persisted, err := stateRepo.GetAll(context.Background()); err == nil {
		for i := range persisted {
			persisted[i].Available = false
		}
		entitySvc.Upsert(persisted)
	} else {
		log.WithError(err).Warn("Failed to load persisted entity states")
	}

	wsHub := websocket.NewHub(log, reg)
	go wsHub.Run()

	entitySvc.AddSink(wsHub)
	entitySvc.AddSink(database.NewPersistSink(stateRepo, log))

	manager := integrations.NewManager(integrations.ManagerConfig{
		SetupInitialDelay: config.ParseInterval(cfg.Integrations.Setup.InitialDelay, 5*time.Second),
		SetupMaxDelay:     config.ParseInterval(cfg.Integrations.Setup.MaxDelay, 5*time.Minute),
	}, entitySvc, reg, refreshRepo, wsHub, log)

	registerIntegrations(manager, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	pruner := database.StartPruneSchedule(refreshRepo, cfg.Database.RetentionDays, log)

	router := api.NewRouter(cfg, entitySvc, manager, wsHub, reg, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Starting hearth backend on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}

	pruner.Stop()
	manager.Stop()
	log.Info("Shutdown complete")
}

// registerIntegrations wires every enabled vendor integration into the
// manager. A daemon with nothing enabled still runs; the API just serves an
// empty registry.
func registerIntegrations(manager *integrations.Manager, cfg *config.Config, log *logrus.Logger) {
	ic := cfg.Integrations

	if ic.OpenMeteo.Enabled {
		manager.Register(openmeteo.New(openmeteo.Config{
			BaseURL:      ic.OpenMeteo.BaseURL,
			Latitude:     ic.OpenMeteo.Latitude,
			Longitude:    ic.OpenMeteo.Longitude,
			PollInterval: config.ParseInterval(ic.OpenMeteo.PollInterval, 15*time.Minute),
		}, log))
	}

	if ic.Shelly.Enabled {
		manager.Register(shellyplug.New(shellyplug.Config{
			Hosts:        ic.Shelly.Hosts,
			Discovery:    ic.Shelly.Discovery,
			PollInterval: config.ParseInterval(ic.Shelly.PollInterval, 30*time.Second),
		}, log))
	}

	if ic.NUT.Enabled {
		manager.Register(nut.New(nut.Config{
			Host:         ic.NUT.Host,
			Port:         ic.NUT.Port,
			UPSNames:     ic.NUT.UPSNames,
			PollInterval: config.ParseInterval(ic.NUT.PollInterval, 30*time.Second),
		}, log))
	}

	if ic.SysMon.Enabled {
		manager.Register(sysmon.New(sysmon.Config{
			PollInterval: config.ParseInterval(ic.SysMon.PollInterval, time.Minute),
		}, log))
	}
}
