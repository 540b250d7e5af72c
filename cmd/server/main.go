package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"msgboard/internal/api"
	"msgboard/internal/database"
	"msgboard/pkg/config"
	"msgboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, config.ErrConfigurationMissing) {
			log.Fatalf("SECRET_KEY must be set: %v", err)
		}
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("msgboard", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "configs/server.yaml", "path to the config file")
	envFile := flagSet.String("env-file", ".env", "dotenv file loaded before the environment is read")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	appLogger := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	appLogger.WithField("config", cfg.SanitizeForLogging()).Debug("Configuration loaded")
	if cfg.Auth.RefreshSecretGenerated {
		appLogger.Warning("JWT_REFRESH_SECRET not set, using generated key. Refresh tokens will not survive a restart.")
	}

	if cfg.IsProduction() && !cfg.Auth.CookieSecure {
		appLogger.Warning("auth.cookie_secure is off in release mode, session cookies will travel over plain HTTP")
	}

	gin.SetMode(cfg.Server.Mode)
	ginLog := appLogger.WithComponent("gin").Writer()
	defer ginLog.Close()
	gin.DefaultWriter = ginLog
	gin.DefaultErrorWriter = ginLog

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	appLogger.Info("Database connection successful", "type", cfg.Database.Type)

	if err := database.RunMigrations(db, cfg.Database.Type); err != nil {
		return err
	}
	appLogger.Info("Database initialized successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := api.NewServices(db, appLogger, cfg)
	if err != nil {
		return err
	}
	if err := services.Start(ctx); err != nil {
		return err
	}
	defer services.Stop()

	router, err := api.NewRouter(services, services.Limits())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Infof("Starting server on %s (tls=%t)", srv.Addr, cfg.Server.TLS.Enabled)
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	appLogger.Info("Server stopped")
	return nil
}
