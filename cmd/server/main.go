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
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coah80/squish/internal/alerts"
	"github.com/coah80/squish/internal/config"
	"github.com/coah80/squish/internal/metrics"
	"github.com/coah80/squish/internal/middleware"
	"github.com/coah80/squish/internal/routes"
	"github.com/coah80/squish/internal/server"
	"github.com/coah80/squish/internal/services"
	"github.com/coah80/squish/internal/util"
)

func main() {
	godotenv.Load()
	config.Load()

	server.PrintBanner()

	if !util.CheckDependencies(config.FFmpegPath, config.FFprobePath) {
		log.Fatal("Missing required dependencies")
	}
	if err := util.EnsureDirs(config.UploadDir, config.OutputDir); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}
	util.ClearDirs(config.UploadDir, config.OutputDir)

	jobs := services.NewRegistry()
	prober := services.FFprobe{Path: config.FFprobePath}
	observer := services.Observers(metrics.JobObserver{}, alerts.Observer{})

	compressor := services.NewCompressor(services.CompressorConfig{
		OutputDir:     config.OutputDir,
		MaxActive:     config.MaxActiveEncodes,
		EncodeTimeout: config.EncodeTimeout,
	}, jobs, prober, services.FFmpeg{Path: config.FFmpegPath}, observer)

	if err := metrics.RegisterJobs(prometheus.DefaultRegisterer, jobs, compressor); err != nil {
		log.Fatalf("Failed to register job metrics: %v", err)
	}

	sweeper := services.NewSweeper(services.SweeperConfig{
		Interval:  config.CleanupInterval,
		Retention: config.JobRetention,
	}, jobs, compressor, observer)
	sweeper.Start()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	middleware.StartRateLimitCleanup(ctx)

	srv := server.New(&routes.Deps{
		Jobs:           jobs,
		Compressor:     compressor,
		Prober:         prober,
		UploadDir:      config.UploadDir,
		MaxUploadSize:  config.MaxUploadSize,
		DiskSpaceMinGB: config.DiskSpaceMinGB,
	})

	go func() {
		fmt.Printf("✓ Listening on :%s (%s)\n", config.Port, config.EnvMode)
		fmt.Printf("  Uploads: %s\n  Outputs: %s\n", config.UploadDir, config.OutputDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()
	alerts.ServerStarted()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	alerts.ServerStopping()
	sweeper.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := compressor.Shutdown(shutdownCtx); err != nil {
		log.Printf("Encoder shutdown: %v", err)
	}
	fmt.Println("Server stopped.")
}
