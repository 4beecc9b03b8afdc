package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/mitemp"
	"github.com/jpalmerr/mitemp/internal/simulator"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// a simulated sensor that wakes up slowly and drops one connection in ten
	sensor := simulator.New(simulator.Config{
		Temperature: 22.0,
		Humidity:    48.0,
		Latency:     2 * time.Second,
		FailureRate: 0.1,
		Logger:      logger,
	})

	p, err := mitemp.New("4C:65:A8:D0:12:34",
		mitemp.WithConnector(sensor),
		mitemp.WithCacheTimeout(30*time.Second),
		mitemp.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create poller", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	// poll faster than the cache expires: most ticks are served from cache
	m, err := mitemp.NewMonitor(p,
		mitemp.WithPollInterval(5*time.Second),
		mitemp.WithPort(8080),
		mitemp.WithTitle("Simulated sensor"),
		mitemp.WithReadingCallback(func(r mitemp.ReadingResult) {
			if r.HasReading && r.Temperature > 23 {
				logger.Info("getting warm", "temperature", r.Temperature)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   mitemp Demo                                         ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Simulated sensor, 30s cache, 5s poll interval       ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		slog.Error("monitor error", "error", err)
		os.Exit(1)
	}
}
