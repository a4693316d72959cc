package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ThxTiger/roomkiosk/internal/backend"
	"github.com/ThxTiger/roomkiosk/internal/config"
	"github.com/ThxTiger/roomkiosk/internal/identity"
	"github.com/ThxTiger/roomkiosk/internal/metrics"
	"github.com/ThxTiger/roomkiosk/internal/occupancy"
	"github.com/ThxTiger/roomkiosk/internal/repository"
	"github.com/ThxTiger/roomkiosk/internal/service"
	"github.com/ThxTiger/roomkiosk/internal/web"
)

func main() {
	kioskCfg := config.GetKioskConfig()
	instanceID := uuid.NewString()
	log.Printf("Starting roomkiosk controller (instance %s)", instanceID)

	// Initialize the repository using the factory
	repo, err := repository.NewRepository(config.GetRedisConfig())
	if err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}
	if redisRepo, ok := repo.(interface{ Close() error }); ok {
		defer func() {
			if err := redisRepo.Close(); err != nil {
				log.Printf("Error closing Redis connection: %v", err)
			}
		}()
	}

	m := metrics.New()
	client := backend.NewClient(kioskCfg.BackendURL)

	// The web handler is created after the monitor but the device-flow
	// prompt must reach the display, so wire it through a late binding.
	var notifier *web.Notifier
	provider := identity.NewDeviceProvider(config.GetIdentityConfig(), func(userCode, verificationURI string) {
		if notifier != nil {
			notifier.PublishPrompt(userCode, verificationURI)
		}
	})
	verifier := identity.NewVerifier(provider)

	monitor := occupancy.NewMonitor(occupancy.Options{
		Backend:        client,
		Repo:           repo,
		Metrics:        m,
		PollInterval:   kioskCfg.PollInterval,
		CheckInGrace:   kioskCfg.CheckInGrace,
		UpcomingWindow: kioskCfg.UpcomingWindow,
		OnTick: func(slot occupancy.CountdownSlot, text string) {
			if notifier != nil {
				notifier.PublishTick(slot, text)
			}
		},
	})

	kioskService := service.NewKioskService(kioskCfg, client, monitor, verifier, provider, repo, m)
	kioskService.RestoreSession(context.Background())
	webHandler := web.NewHandler(kioskService)
	notifier = webHandler.Notifier()
	kioskService.OnSessionExpired(notifier.PublishSessionExpired)

	router := mux.NewRouter()
	webHandler.SetupRoutes(router)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	// Start the poll loop
	runCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(runCtx)

	server := &http.Server{
		Addr:         ":" + kioskCfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disable write timeout for SSE connections
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		log.Printf("Serving kiosk display API on port %s", kioskCfg.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatalf("Error starting server: %v", err)

	case <-shutdown:
		log.Println("Shutting down controller...")

		// Stop polling and close SSE connections before draining HTTP.
		stopMonitor()
		webHandler.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			log.Fatalf("Error shutting down server: %v", err)
		}

		log.Println("Controller gracefully stopped")
	}
}
