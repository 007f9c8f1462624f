package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/dashboard"
	"github.com/clinicdesk/clinicdesk/internal/domain/notes"
	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

const version = "0.1.0"

// Per-tab views idle for longer than tabIdle are dropped.
const (
	tabIdle       = 30 * time.Minute
	sweepInterval = time.Minute
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "clinicdesk",
		Short:        "Clinic practice console",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("api-url", "", "Clinic API base URL (defaults to API_URL)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (defaults to CLINIC_TOKEN)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(appointmentsCmd())
	rootCmd.AddCommand(notesCmd())
	rootCmd.AddCommand(dashboardCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the console BFF server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg == nil || cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if cfg != nil {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
			logger = logger.Level(lvl)
		}
	}
	return logger
}

// server is the wired BFF. It is built separately from runServer so the
// route table can be exercised without listening.
type server struct {
	echo         *echo.Echo
	hub          *websocket.Hub
	center       *notification.Center
	appointments *scheduling.Handler
	notes        *notes.Handler
}

func newServer(cfg *config.Config, logger zerolog.Logger) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", apiclient.RequestIDHeader, notification.ClientIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Session())
	e.Use(middleware.ClientID())

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	// Live notifications
	hub := websocket.NewHub(logger, scheduling.TopicAppointments, scheduling.TopicBlocks, notes.TopicNotes)
	center := notification.NewCenter(hub, 0)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))

	// Clinic API gateways. The client is unbound: each call uses the
	// session the middleware put in the request context.
	api := apiclient.New(cfg.APIURL, apiclient.WithLogger(logger))
	patientRepo := patients.NewRepoHTTP(api)
	apptRepo := scheduling.NewAppointmentRepoHTTP(api)
	noteRepo := notes.NewRepoHTTP(api)

	apptHandler := scheduling.NewHandler(
		func(string) *scheduling.AppointmentsView {
			return scheduling.NewAppointmentsView(apptRepo, patientRepo, center, cfg.DefaultDurationMinutes)
		},
		scheduling.NewBlockService(scheduling.NewBlockRepoHTTP(api), center),
		hub,
	)
	notesHandler := notes.NewHandler(
		func(string) *notes.NotesView {
			return notes.NewNotesView(noteRepo, apptRepo, patientRepo, center)
		},
		hub,
	)
	dashHandler := dashboard.NewHandler(
		dashboard.NewDashboardView(dashboard.NewRepoHTTP(api), center, cfg.UpcomingLimit),
		cfg.DashboardDays,
	)

	apiGroup := e.Group("/api")
	auth.NewSessionHandler(api, func(tab string) {
		apptHandler.Views().Drop(tab)
		notesHandler.Views().Drop(tab)
		center.Drop(tab)
	}).RegisterRoutes(apiGroup)
	notification.NewHandler(center).RegisterRoutes(apiGroup)
	patients.NewHandler(patients.NewService(patientRepo, center)).RegisterRoutes(apiGroup)
	apptHandler.RegisterRoutes(apiGroup)
	notesHandler.RegisterRoutes(apiGroup)
	dashHandler.RegisterRoutes(apiGroup)

	return &server{echo: e, hub: hub, center: center, appointments: apptHandler, notes: notesHandler}
}

// sweepTabs drops idle per-tab views and notification history until ctx
// is done.
func (s *server) sweepTabs(ctx context.Context, logger zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(logger)
		}
	}
}

func (s *server) sweep(logger zerolog.Logger) {
	views := s.appointments.Views().Sweep(tabIdle) + s.notes.Views().Sweep(tabIdle)
	topics := s.center.Sweep(tabIdle)
	if views > 0 || topics > 0 {
		logger.Debug().Int("views", views).Int("topics", topics).Msg("idle tabs swept")
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)

	srv := newServer(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.sweepTabs(ctx, logger)

	// Start server
	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("api_url", cfg.APIURL).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
