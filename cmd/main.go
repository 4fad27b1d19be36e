package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"labguard/internal/audit"
	"labguard/internal/config"
	"labguard/internal/database"
	"labguard/internal/database/migrations"
	"labguard/internal/middleware"
	"labguard/internal/relations"
	"labguard/internal/service"
	"labguard/internal/telemetry"
	"labguard/internal/validator"
	"labguard/internal/web/api"
)

func main() {
	if err := run(context.Background()); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	cfg := config.NewConfig()

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger := tel.Logger()
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()
	logger := tel.Logger()

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.ConnString()); err != nil {
		logger.Error("failed to initialize database", "error", err)
		return err
	}
	defer db.Close()

	migrator := migrations.NewMigrator(logger, db.Pool)
	if err := migrator.Up(ctx, 0); err != nil {
		logger.Error("failed to run migrations", "error", err)
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	memberships, err := relations.NewClient(logger, cfg.OpenFGA, &db)
	if err != nil {
		logger.Error("failed to initialize relations client", "error", err)
		return err
	}

	auditor := audit.NewAuditor(logger, &db)
	permissionService := service.NewPermissionService(logger, &db, memberships, rdb, &auditor)
	shareService := service.NewShareService(logger, &db, permissionService)
	ruleService := service.NewRuleService(logger, &db, permissionService)
	teamService := service.NewTeamService(logger, &db)

	handler := api.NewHandler(logger, validator.New(), &db,
		permissionService, shareService, ruleService, teamService)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	app.Use(telemetry.FiberMiddleware(cfg.Telemetry.ServiceName))
	app.Use(middleware.Principal(logger, cfg.Auth.JWTSecret))
	app.Use(middleware.RequestLogger(logger))
	handler.RegisterRoutes(app)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("starting HTTP server", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logger.Error("server stopped", "error", err)
			cancel()
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := app.Shutdown(); err != nil {
		logger.Error("failed to shut down server", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
