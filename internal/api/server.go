// Package api exposes the HTTP surface: auth, threats, suspects, scans,
// DMCA notices, scheduler control and dashboard stats.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/byerim/brandshield/internal/auth"
	"github.com/byerim/brandshield/internal/config"
	"github.com/byerim/brandshield/internal/detector"
	"github.com/byerim/brandshield/internal/dmca"
	"github.com/byerim/brandshield/internal/notifications"
	"github.com/byerim/brandshield/internal/profilefetch"
	"github.com/byerim/brandshield/internal/reporter"
	"github.com/byerim/brandshield/internal/scanner"
	"github.com/byerim/brandshield/internal/scheduler"
	"github.com/byerim/brandshield/internal/search"
	"github.com/byerim/brandshield/internal/store"
	"github.com/byerim/brandshield/internal/sweeper"
)

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	store  *store.Store
	http   *http.Server
	logger *slog.Logger

	authService *auth.Service
	userStore   auth.UserStore

	scanner   *scanner.Scanner
	scheduler *scheduler.Scheduler
	sweeper   *sweeper.Sweeper
	reporter  *reporter.Reporter
	dmca      *dmca.Generator
	quota     *search.DailyQuota

	notificationService *notifications.Service
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(ctx context.Context, cfg *config.Config, opts ...ServerOption) (*Server, error) {
	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		store:  st,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.userStore = auth.NewPostgresUserStore(st.DB())
	s.authService = auth.NewService(auth.Config{
		JWTSecret:          cfg.Auth.JWTSecret,
		AccessTokenExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
	}, s.userStore, s.logger)

	s.notificationService = notifications.NewService(notifications.Config{
		Slack: notifications.SlackConfig{
			WebhookURL:  cfg.Notifications.Slack.WebhookURL,
			Channel:     cfg.Notifications.Slack.Channel,
			Username:    "Brand Shield",
			IconEmoji:   ":shield:",
			Enabled:     cfg.Notifications.Slack.Enabled,
			MinSeverity: cfg.Notifications.MinSeverity,
		},
		Email: notifications.EmailConfig{
			SMTPHost:    cfg.Notifications.Email.SMTPHost,
			SMTPPort:    cfg.Notifications.Email.SMTPPort,
			Username:    cfg.Notifications.Email.Username,
			Password:    cfg.Notifications.Email.Password,
			From:        cfg.Notifications.Email.From,
			To:          cfg.Notifications.Email.To,
			Enabled:     cfg.Notifications.Email.Enabled,
			MinSeverity: cfg.Notifications.MinSeverity,
		},
	}, s.logger)

	det := detector.New(detector.Weights{
		ProfilePic: cfg.Detection.Weights.ProfilePic,
		Bio:        cfg.Detection.Weights.Bio,
		Username:   cfg.Detection.Weights.Username,
		Content:    cfg.Detection.Weights.Content,
		Name:       cfg.Detection.Weights.Name,
	}, detector.SeverityThresholds{
		Critical: cfg.Detection.CriticalSeverity,
		High:     cfg.Detection.HighSeverity,
		Medium:   cfg.Detection.MediumSeverity,
	})

	provider, err := s.buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fetcher := profilefetch.New(s.logger)

	s.scanner = scanner.New(scanner.Config{
		RateDelay:    cfg.Search.RateDelay,
		ThreatFloor:  cfg.Detection.ThreatFloor,
		SuspectFloor: cfg.Detection.SuspectFloor,
		SingleFlight: cfg.Scan.SingleFlightEnabled(),
	}, st, provider, fetcher, det, cfg.Brands, s.notificationService, s.logger)

	s.sweeper = sweeper.New(st, time.Duration(cfg.Scan.StaleAfterHours)*time.Hour, s.logger)
	s.reporter = reporter.New(st, s.notificationService, cfg.Brands, s.logger)
	s.dmca = dmca.New(st, cfg.DMCA, s.logger)

	s.scheduler = scheduler.New(scheduler.Config{
		ScanInterval:   time.Duration(cfg.Scan.IntervalHours) * time.Hour,
		ReportSchedule: cfg.Scan.ReportSchedule,
		SweepSchedule:  cfg.Scan.SweepSchedule,
	}, s.scanner, s.reporter, s.sweeper, s.logger)

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// buildProvider wires the Google Custom Search client behind the daily
// quota. Missing credentials leave the provider nil; scans then finish
// with zero counters.
func (s *Server) buildProvider(ctx context.Context, cfg *config.Config) (scanner.Provider, error) {
	if cfg.Search.APIKey == "" || cfg.Search.CX == "" {
		s.logger.Warn("search credentials missing, scans will find nothing")
		return nil, nil
	}

	if cfg.Redis.Enabled {
		quota, err := search.NewDailyQuota(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, int64(cfg.Search.MaxDaily))
		if err != nil {
			s.logger.Warn("redis quota unavailable, using in-process counter", "error", err)
			s.quota = search.NewLocalQuota(int64(cfg.Search.MaxDaily))
		} else {
			s.quota = quota
		}
	} else {
		s.quota = search.NewLocalQuota(int64(cfg.Search.MaxDaily))
	}

	provider, err := search.NewGoogleProvider(ctx, cfg.Search.APIKey, cfg.Search.CX, cfg.Search.ResultsPerPage, s.quota)
	if err != nil {
		return nil, fmt.Errorf("initializing search provider: %w", err)
	}
	return provider, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(s.corsMiddleware())
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowOrigin := s.cfg.Server.CORSAllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
		s.logger.Warn("CORS Allow-Origin set to '*' - configure server.cors_allow_origin in production")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authService.Middleware)

			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.getCurrentUser)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Post("/users", s.createUser)
			})

			r.Route("/threats", func(r chi.Router) {
				r.Get("/", s.listThreats)
				r.Get("/{threatID}", s.getThreat)
				r.Patch("/{threatID}/status", s.updateThreatStatus)
				r.Post("/{threatID}/dmca", s.generateDMCANotice)
			})

			r.Route("/suspects", func(r chi.Router) {
				r.Get("/", s.listSuspects)
				r.Get("/{suspectID}", s.getSuspect)
				r.Patch("/{suspectID}/status", s.updateSuspectStatus)
			})

			r.Route("/scans", func(r chi.Router) {
				r.Get("/", s.listScans)
				r.Get("/{scanID}", s.getScan)
				r.Post("/run", s.runScan)
			})

			r.Route("/dmca", func(r chi.Router) {
				r.Get("/", s.listDMCANotices)
				r.Get("/{noticeID}", s.getDMCANotice)
				r.Post("/{noticeID}/sent", s.markDMCANoticeSent)
			})

			r.Route("/scheduler", func(r chi.Router) {
				r.Get("/status", s.schedulerStatus)
				r.Post("/enable", s.enableScheduler)
				r.Post("/disable", s.disableScheduler)
			})

			r.Post("/reports/trigger", s.triggerReport)

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/summary", s.getDashboardSummary)
				r.Get("/stats", s.getStats)
			})
		})
	})
}

// Run starts the scheduler and HTTP listener, shutting both down when
// the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.authService.Bootstrap(ctx, s.cfg.Auth.BootstrapUser, s.cfg.Auth.BootstrapPassword); err != nil {
		s.logger.Error("bootstrap user failed", "error", err)
	}

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.scheduler.Stop()
		if s.quota != nil {
			_ = s.quota.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *apiMeta    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMeta struct {
	Total  int `json:"total,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondJSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *apiMeta) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "db_unavailable", "Database not available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
