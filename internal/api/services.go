package api

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"msgboard/internal/api/handlers"
	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/middlewares"
	"msgboard/internal/auth"
	"msgboard/internal/database/repositories"
	"msgboard/pkg/config"
	"msgboard/pkg/logger"
)

// Services contains all the dependencies for API handlers
type Services struct {
	DB     *sql.DB
	Logger *logger.Logger
	Config *config.Config

	manager *auth.Manager
	hub     *handlers.Hub
	limits  RouteLimits

	// Repositories
	messageRepository  *repositories.MessageRepository
	auditLogRepository *repositories.AuditLogRepository
}

// NewServices wires the credential store, token codec and session manager
// from config, and the repositories over db.
func NewServices(db *sql.DB, log *logger.Logger, cfg *config.Config) (*Services, error) {
	services := &Services{
		DB:                 db,
		Logger:             log,
		Config:             cfg,
		hub:                handlers.NewHub(log),
		messageRepository:  repositories.NewMessageRepository(db),
		auditLogRepository: repositories.NewAuditLogRepository(db),
	}

	creds, err := auth.NewCredentialStore(cfg.Auth.DemoUsername, cfg.Auth.DemoPassword, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}

	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  []byte(cfg.Auth.SecretKey),
		RefreshSecret: []byte(cfg.Auth.RefreshSecret),
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	services.manager, err = auth.NewManager(auth.ManagerConfig{
		Credentials: creds,
		Codec:       codec,
		AccessTTL:   cfg.Auth.AccessTokenTTL,
		RefreshTTL:  cfg.Auth.RefreshTokenTTL,
		Audit:       &auditTrail{repo: services.auditLogRepository, log: log, now: time.Now},
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}

	if cfg.API.RateLimit > 0 && cfg.API.RateWindow > 0 {
		services.limits.General = middlewares.NewRateLimiter(cfg.API.RateLimit, cfg.API.RateWindow)
	}
	services.limits.Login = middlewares.NewRateLimiter(cfg.API.LoginRateLimit, cfg.API.LoginRateWindow)

	return services, nil
}

// Start seeds the demo messages when configured to.
func (s *Services) Start(ctx context.Context) error {
	s.Logger.Info("Starting API services...")

	if s.Config.Database.SeedDemo {
		seeded, err := s.messageRepository.SeedDemo(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("seed demo messages: %w", err)
		}
		if seeded {
			s.Logger.Info("Demo messages added")
		}
	}

	s.Logger.Info("All API services started successfully")
	return nil
}

// Stop disconnects feed subscribers and stops the rate limiters.
func (s *Services) Stop() {
	s.Logger.Info("Stopping API services...")

	s.hub.Close()
	if s.limits.General != nil {
		s.limits.General.Stop()
	}
	if s.limits.Login != nil {
		s.limits.Login.Stop()
	}

	s.Logger.Info("All API services stopped")
}

// Limits returns the rate limiters the route table installs.
func (s *Services) Limits() RouteLimits {
	return s.limits
}

// Interface implementation methods
func (s *Services) GetLogger() *logger.Logger {
	return s.Logger
}

func (s *Services) GetConfig() *config.Config {
	return s.Config
}

func (s *Services) SessionManager() interfaces.SessionManager {
	return s.manager
}

func (s *Services) MessageStore() interfaces.MessageStore {
	return s.messageRepository
}

func (s *Services) AuditLog() interfaces.AuditLog {
	return s.auditLogRepository
}

func (s *Services) Feed() interfaces.MessageFeed {
	return s.hub
}

func (s *Services) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// failedLoginWindow is how far back a failed login looks for earlier
// failures of the same username.
const failedLoginWindow = 15 * time.Minute

// auditTrail persists auth audit events and mirrors them to the log. A
// failed login also logs how many failures the username had recently.
type auditTrail struct {
	repo *repositories.AuditLogRepository
	log  *logger.Logger
	now  func() time.Time
}

func (a *auditTrail) Record(ctx context.Context, ev auth.AuditEvent) error {
	details := ev.Outcome
	if ev.Details != "" {
		details += " " + ev.Details
	}
	a.log.AuditLogger(ev.Action, ev.Username, "session", details)
	if err := a.repo.Record(ctx, ev); err != nil {
		return err
	}

	if ev.Action == auth.ActionLogin && ev.Outcome == auth.OutcomeFailure {
		n, err := a.repo.CountFailedLogins(ctx, ev.Username, a.now().Add(-failedLoginWindow))
		if err != nil {
			return err
		}
		a.log.Warningf("%d failed logins for %q in the last %s", n, ev.Username, failedLoginWindow)
	}
	return nil
}
