package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/player4sir/movieapp-sub004/internal/api"
	"github.com/player4sir/movieapp-sub004/internal/auth"
	"github.com/player4sir/movieapp-sub004/internal/config"
	"github.com/player4sir/movieapp-sub004/internal/entitlement"
	"github.com/player4sir/movieapp-sub004/internal/proxy"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	log.Println("Starting movieapp delivery server...")

	cfg := config.Load()

	// Capability token issuer - the signing key is immutable after this
	tokenTTL := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	issuer, err := auth.NewIssuer(cfg.TokenSecret, tokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize token issuer: %v", err)
	}
	log.Printf("✓ Token issuer initialized (TTL: %v)", tokenTTL)

	// Domain preference cache and origin fetch engine
	prefs := proxy.NewDomainPrefs()

	secondaryProxy := ""
	if cfg.UseHTTPProxy && cfg.HTTPProxy != "" {
		secondaryProxy = cfg.HTTPProxy
		log.Printf("✓ Secondary hop proxy enabled: %s", secondaryProxy)
	}

	fetcher, err := proxy.NewFetcher(
		secondaryProxy,
		prefs,
		time.Duration(cfg.ManifestTimeoutSeconds)*time.Second,
		time.Duration(cfg.SegmentTimeoutSeconds)*time.Second,
		slog.Default(),
	)
	if err != nil {
		log.Fatalf("Failed to initialize fetch engine: %v", err)
	}
	log.Println("✓ Origin fetch engine initialized")

	proxyHandler := proxy.NewHandler(fetcher, issuer, cfg.PublicBaseURL, slog.Default())

	// Entitlement boundary: replaced by the paywall service in production
	resolver := &entitlement.FreePreviewResolver{FreeEpisodes: cfg.FreePreviewEpisodes}
	log.Printf("✓ Entitlement resolver: first %d episodes free", cfg.FreePreviewEpisodes)

	handler := api.NewHandler(issuer, resolver, cfg.PublicBaseURL, tokenTTL)
	router := api.SetupRoutes(handler, proxyHandler)

	log.Println("✓ REST API enabled at /api/v1")
	log.Println("✓ Streaming proxy enabled at /api/v1/proxy")

	// Extended timeouts: segment fetches from slow origins can take a
	// while and clients stream bodies slowly.
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on %s:%d", cfg.Host, cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
