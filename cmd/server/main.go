package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/activitymap"
	"github.com/goliatone/go-users/mailer"
	"github.com/goliatone/go-users/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger := users.NewZapBase(cfg.Logger.Level, cfg.Logger.Encoding)
	defer zapLogger.Sync()
	logger := users.NewZapLogger(zapLogger)

	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, sqldb, err := openPersistence(appCtx, cfg.Database, logger)
	if err != nil {
		zapLogger.Fatal("database setup failed", zap.Error(err))
	}
	defer sqldb.Close()

	var mail users.Mailer = mailer.LogMailer{Logger: logger}
	if cfg.SMTP.Host != "" {
		smtp, err := mailer.New(cfg.SMTP, mailer.WithLogger(logger))
		if err != nil {
			zapLogger.Fatal("mailer setup failed", zap.Error(err))
		}
		mail = smtp
	}

	service, err := users.NewUserService(db, mail, cfg.Users,
		users.WithServiceLogger(logger),
		users.WithServiceActivitySink(activitymap.NewZapSink(zapLogger)),
	)
	if err != nil {
		zapLogger.Fatal("service setup failed", zap.Error(err))
	}

	sessions, err := web.NewSessionManager(cfg.Session, logger)
	if err != nil {
		zapLogger.Fatal("session setup failed", zap.Error(err))
	}

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      "go-users",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}))
	})
	srv.Router().WithLogger(logger)

	web.Register(srv.Router().Group("/users"), web.NewController(service, sessions))

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address))
		if err := srv.Serve(cfg.Address); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	<-appCtx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
