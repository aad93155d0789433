package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gluk-w/grbbs/internal/access"
	"github.com/gluk-w/grbbs/internal/auth"
	"github.com/gluk-w/grbbs/internal/bbs"
	"github.com/gluk-w/grbbs/internal/config"
	"github.com/gluk-w/grbbs/internal/database"
	"github.com/gluk-w/grbbs/internal/handlers"
	"github.com/gluk-w/grbbs/internal/logging"
	"github.com/gluk-w/grbbs/internal/middleware"
	"github.com/gluk-w/grbbs/internal/terminal"
	"github.com/gluk-w/grbbs/internal/texts"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// CLI commands: --create-sysop, --reset-password
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--create-sysop":
			runCLICommand("create-sysop")
			return
		case "--reset-password":
			runCLICommand("reset-password")
			return
		}
	}

	config.Load()
	logging.Init()
	defer logging.Shutdown()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	log.Printf("Config: BBSName=%s, AuthDisabled=%v, SpeedProfiles=%v",
		config.Cfg.BBSName, config.Cfg.AuthDisabled, config.Cfg.SpeedProfiles)

	recorder := access.InitGlobal(database.DB, config.Cfg.AccessLogRetentionDays)
	if err := recorder.StartPurgeSchedule(config.Cfg.AccessLogPurgeSchedule); err != nil {
		log.Printf("WARNING: access log purge schedule: %v", err)
	}
	defer recorder.Stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := terminal.NewMetrics(reg)

	catalog := texts.Default()
	notice := func(key string) func(terminal.Identity) string {
		return func(id terminal.Identity) string {
			return "\r\n" + catalog.Render(key, id.MenuMode, nil)
		}
	}

	// Runtime settings saved by a sysop take precedence over the environment.
	rates := terminal.NewRateModel(config.Cfg.SpeedTable())
	defaultSpeed := config.Cfg.DefaultSpeed
	if v, err := database.GetSetting(database.SettingDefaultSpeed); err == nil && rates.Has(v) {
		defaultSpeed = v
	}
	registry := terminal.NewRegistry(terminal.RegistryConfig{
		Ceiling:          database.GetIntSetting(database.SettingMaxConcurrentClients, config.Cfg.MaxConcurrentClients),
		Rates:            rates,
		DefaultSpeed:     defaultSpeed,
		ReadTimeout:      config.Cfg.InputTimeoutDuration(),
		MultilineTimeout: config.Cfg.MultilineTimeoutDuration(),
		CaptureLimit:     config.Cfg.SessionLogMaxBytes,
		EvictNotice:      notice("notice.evicted"),
		KickNotice:       notice("notice.kicked"),
		OnEvict:          handlers.RecordEviction,
		Metrics:          metrics,
	})
	handlers.Registry = registry
	handlers.BBS = bbs.Config{
		BBSName:  config.Cfg.BBSName,
		Registry: registry,
		Texts:    catalog,

		SaveMenuMode: database.UpdateUserMenuMode,
	}
	log.Printf("Terminal registry initialized (ceiling=%d, default_speed=%s, profiles=%v)",
		registry.Ceiling(), registry.DefaultSpeed(), rates.Profiles())

	sessionStore := auth.NewSessionStore()
	handlers.SessionStore = sessionStore

	// Periodically clean up expired sessions
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionStore.Cleanup()
		}
	}()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", handlers.Login)
		r.Post("/auth/guest", handlers.GuestLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessionStore))

			r.Post("/auth/logout", handlers.Logout)
			r.Get("/auth/me", handlers.GetCurrentUser)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireSysop)

				r.Get("/sessions", handlers.ListSessions)
				r.Delete("/sessions/{sessionId}", handlers.KickSession)
				r.Post("/broadcast", handlers.Broadcast)

				r.Get("/settings", handlers.GetSettings)
				r.Put("/settings", handlers.UpdateSettings)

				r.Get("/access-log", handlers.GetAccessLog)

				r.Get("/server-logs", handlers.GetServerLogs)
				r.Delete("/server-logs", handlers.ClearServerLogs)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessionStore))
		r.Get("/ws/terminal", handlers.TerminalWS)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	// Close terminal sessions first so their WebSocket handlers return.
	registry.CloseAll("\r\n" + catalog.Render("notice.shutdown", "1", nil))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func runCLICommand(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	username := fs.String("username", "", "Username")
	password := fs.String("password", "", "Password")
	fs.Parse(os.Args[2:])

	if *username == "" || *password == "" {
		fmt.Fprintf(os.Stderr, "Usage: grbbs --%s --username <user> --password <pass>\n", command)
		os.Exit(1)
	}
	if auth.IsGuestName(*username) {
		fmt.Fprintf(os.Stderr, "%q is reserved for guest logins\n", *username)
		os.Exit(1)
	}

	config.Load()
	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	switch command {
	case "create-sysop":
		user := &database.User{
			Username:     *username,
			PasswordHash: hash,
			Role:         database.RoleSysop,
		}
		if err := database.CreateUser(user); err != nil {
			log.Fatalf("Failed to create sysop: %v", err)
		}
		fmt.Printf("SysOp user '%s' created successfully.\n", *username)

	case "reset-password":
		user, err := database.GetUserByUsername(*username)
		if err != nil {
			log.Fatalf("User '%s' not found", *username)
		}
		if err := database.UpdateUserPassword(user.ID, hash); err != nil {
			log.Fatalf("Failed to update password: %v", err)
		}
		fmt.Printf("Password reset for '%s'.\n", *username)
	}
}
