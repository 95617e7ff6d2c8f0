package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/portview/portfolio-backend/internal/api"
	"github.com/portview/portfolio-backend/internal/config"
	"github.com/portview/portfolio-backend/internal/database"
	"github.com/portview/portfolio-backend/internal/plaid"
	"github.com/portview/portfolio-backend/internal/repository"
	"github.com/portview/portfolio-backend/internal/service"
	"github.com/portview/portfolio-backend/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database: %s", cfg.Database.Path)

	// Apply pending migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Credential vault and aggregator client
	credentialVault, err := vault.New(cfg.Vault.Keys)
	if err != nil {
		log.Fatalf("Failed to load credential vault: %v", err)
	}

	plaidClient := plaid.NewAPIClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Environment)

	// Create repositories
	linkedItemRepo := repository.NewLinkedItemRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	holdingRepo := repository.NewHoldingRepository(db)
	attemptRepo := repository.NewLinkAttemptRepository(db)

	// Create services
	systemService := service.NewSystemService(db)
	credentialService := service.NewCredentialService(
		linkedItemRepo,
		credentialVault,
		plaidClient,
	)
	syncService := service.NewSyncService(
		db,
		linkedItemRepo,
		accountRepo,
		holdingRepo,
		credentialService,
		plaidClient,
	)
	linkService := service.NewLinkService(
		plaidClient,
		credentialService,
		syncService,
		attemptRepo,
		cfg.Plaid.Environment,
	)
	portfolioService := service.NewPortfolioService(
		accountRepo,
		holdingRepo,
	)
	refreshService := service.NewRefreshService(
		linkedItemRepo,
		syncService,
	)

	// Create router
	router := api.NewRouter(systemService, linkService, credentialService, syncService, portfolioService, cfg)

	// Scheduled jobs: the daily whole-store refresh and the link attempt
	// expiry sweep. An empty SYNC_SCHEDULE disables the refresh.
	scheduler := cron.New()
	if cfg.Sync.Schedule != "" {
		if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() {
			if err := refreshService.RefreshAll(context.Background()); err != nil {
				log.Printf("Scheduled refresh finished with errors: %v", err)
			}
		}); err != nil {
			log.Fatalf("Failed to schedule refresh job: %v", err)
		}
		log.Printf("Scheduled refresh registered: %s", cfg.Sync.Schedule)
	}
	if _, err := scheduler.AddFunc("@every 15m", func() {
		expired, err := linkService.ExpireStaleAttempts(context.Background())
		if err != nil {
			log.Printf("Link attempt expiry sweep failed: %v", err)
			return
		}
		if expired > 0 {
			log.Printf("Expired %d stale link attempts", expired)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule expiry sweep: %v", err)
	}
	scheduler.Start()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop the scheduler and wait for running jobs
	<-scheduler.Stop().Done()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
