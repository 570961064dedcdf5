package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/skybridge-ai/compute-plane/internal/compute"
	"github.com/skybridge-ai/compute-plane/internal/config"
	"github.com/skybridge-ai/compute-plane/internal/database"
	"github.com/skybridge-ai/compute-plane/internal/handlers"
	"github.com/skybridge-ai/compute-plane/internal/logging"
	"github.com/skybridge-ai/compute-plane/internal/middleware"
)

func main() {
	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	svc := compute.NewService()
	handlers.Compute = svc
	handlers.Encryptor = svc.Encryptor

	// Background TTL reaper: reclaims expired VMs. Expiry is enforced at the
	// access layer regardless; the reaper only stops the billing.
	var reaper *cron.Cron
	if config.Cfg.ReaperSchedule != "" {
		reaper = cron.New()
		if _, err := reaper.AddFunc(config.Cfg.ReaperSchedule, func() {
			reapExpiredResources(context.Background(), svc)
		}); err != nil {
			log.Fatalf("Reaper schedule %q: %v", config.Cfg.ReaperSchedule, err)
		}
		reaper.Start()
		log.Printf("TTL reaper scheduled (%s)", config.Cfg.ReaperSchedule)
	}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no org identity required)
	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireOrganization)

		r.Get("/compute/resources", handlers.ListResources)
		r.Post("/compute/resources", handlers.ProvisionResource)
		r.Post("/compute/resources/{id}/execute", handlers.ExecuteCommand)
		r.Post("/compute/resources/{id}/transfer", handlers.TransferFile)
		r.Get("/compute/resources/{id}/stream", handlers.StreamCommand)
		r.Delete("/compute/resources/{id}", handlers.TeardownResource)

		r.Get("/integrations/digitalocean", handlers.GetProviderCredential)
		r.Put("/integrations/digitalocean", handlers.SetProviderCredential)

		r.Get("/logs", handlers.GetServerLogs)
		r.Delete("/logs", handlers.ClearServerLogs)
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

	if reaper != nil {
		<-reaper.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
