// Copyright 2026 The AppForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/cluster"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/deployment"
	"github.com/appforge/appforge/internal/observability/logger"
	"github.com/appforge/appforge/internal/observability/metrics"
	"github.com/appforge/appforge/internal/observability/tracing"
	"github.com/appforge/appforge/internal/portforward"
	"github.com/appforge/appforge/internal/snapshot"
	"github.com/appforge/appforge/internal/store/postgres"
	"github.com/appforge/appforge/internal/tenant"
	transportHTTP "github.com/appforge/appforge/internal/transport/http"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting appforge deployment engine")

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(ctx, cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	engineMetrics, err := meter.NewEngineMetrics()
	if err != nil {
		slog.Error("failed to register engine metrics", logger.Error(err))
		os.Exit(1)
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize cluster client
	clientset, err := cluster.NewClientset(cfg.Cluster.KubeconfigPath)
	if err != nil {
		slog.Error("failed to connect to cluster", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("connected to cluster")

	// Initialize repositories
	tenantRepo := postgres.NewTenantRepository(db)
	workspaceRepo := postgres.NewWorkspaceRepository(db)
	recipeRepo := postgres.NewRecipeRepository(db)
	deploymentRepo := postgres.NewDeploymentRepository(db)

	// Initialize cluster adapters
	provisioner := cluster.NewProvisioner(clientset)
	quotaGuard := cluster.NewQuotaGuard(clientset)
	vault := cluster.NewVault(clientset)
	releases := cluster.NewReleaseManager(clientset)

	auditLogger := audit.NewSlogLogger()

	// Port-forward supervisor (local topologies only)
	var supervisor *portforward.Supervisor
	if cfg.PortForward.Enabled {
		allocator := portforward.NewAllocator(cfg.PortForward.PortStart, cfg.PortForward.PortEnd)
		liveness := func(ctx context.Context, deploymentID string) bool {
			d, err := deploymentRepo.GetByID(ctx, deploymentID)
			return err == nil && d.Status == deployment.StatusRunning
		}
		supervisor = portforward.NewSupervisor(
			allocator, cfg.Cluster.KubectlPath, cfg.Cluster.KubeconfigPath,
			liveness, cfg.PortForward.SweepEvery,
		)
		supervisor.SetNotify(func(delta int64) {
			engineMetrics.ActiveForwards.Add(context.Background(), delta)
		})
		supervisor.Start()
		defer supervisor.Stop()
	}

	// Initialize services
	var forwards deployment.PortForwarder
	if supervisor != nil {
		forwards = supervisor
	}
	engine := deployment.NewService(
		deploymentRepo, recipeRepo, workspaceRepo,
		quotaGuard, provisioner, vault, releases, forwards,
		auditLogger, engineMetrics,
		deployment.Config{
			ReadyTimeout:          cfg.Engine.ReadyTimeout,
			DependencyWaitTimeout: cfg.Engine.DependencyWaitTimeout,
			DependencyPollEvery:   cfg.Engine.DependencyPollEvery,
		},
	)
	defer engine.Close()

	tenantService := tenant.NewService(
		tenantRepo, workspaceRepo, provisioner, engine, auditLogger,
		tenant.Quota{CPU: cfg.Quota.CPU, Memory: cfg.Quota.Memory, Storage: cfg.Quota.Storage},
	)

	exporter := snapshot.NewExporter(deploymentRepo, workspaceRepo, recipeRepo, auditLogger)
	importer := snapshot.NewImporter(engine, deploymentRepo, auditLogger)

	// Rate limiter and token issuer
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	tokens := transportHTTP.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		tenantService, engine, recipeRepo,
		exporter, importer, supervisor,
		tokens, auditLogger,
	)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}
