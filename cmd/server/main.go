package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/qolzam/dbkit/internal/app/user"
	"github.com/qolzam/dbkit/internal/database"
	"github.com/qolzam/dbkit/internal/database/factory"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/observability"
	"github.com/qolzam/dbkit/internal/platform"
	platformconfig "github.com/qolzam/dbkit/internal/platform/config"
	"github.com/qolzam/dbkit/internal/pkg/log"
	"github.com/qolzam/dbkit/internal/server"
)

func main() {
	cfg, err := platformconfig.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load platform config: %v\n", err)
		os.Exit(1)
	}
	if err := log.Configure(cfg.LogSettings()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var opts []database.Option
	serverConfig := server.Config{}
	if cfg.Database.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, database.WithMetrics(observability.NewMetricsCollector(reg)))
		serverConfig.Gatherer = reg
	}

	app := user.AppConfig(interfaces.DatabaseConfig{})
	if cfg.App.ConfigFile != "" {
		if app, err = platformconfig.LoadAppConfig(cfg.App.ConfigFile); err != nil {
			log.Error("Failed to load app config: %v", err)
			os.Exit(1)
		}
	}
	cfg.ApplyTo(app)

	ctx := context.Background()
	pc := platform.NewContext(factory.NewDBFactory(opts...))
	if err := pc.Bootstrap(ctx, app, user.Catalog()); err != nil {
		log.Error("Failed to bootstrap: %v", err)
		os.Exit(1)
	}

	httpApp := server.New(pc, serverConfig)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down %s", cfg.App.Name)
		if err := httpApp.Shutdown(); err != nil {
			log.Error("HTTP shutdown: %s", err.Error())
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting %s on %s (%s database %s)", cfg.App.Name, addr, app.Database.Type, app.Database.Name)
	if err := httpApp.Listen(addr); err != nil {
		log.Error("HTTP server: %s", err.Error())
	}

	if err := pc.Shutdown(ctx); err != nil {
		log.Error("Database shutdown: %s", err.Error())
	}
}
