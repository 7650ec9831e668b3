package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/statushub"
)

const (
	demoSetSecret = "demo-set"
	demoGetSecret = "demo-get"
)

func main() {
	sh, err := statushub.New(
		statushub.WithPort(8080),
		statushub.WithTitle("StatusHub Demo"),
		statushub.WithSetSecret(demoSetSecret),
		statushub.WithGetSecret(demoGetSecret),
		statushub.WithAllowedOrigins("http://localhost:8080"),
		statushub.WithHeartbeatInterval(15*time.Second),
		statushub.WithUpdateCallback(func(doc statushub.Document) {
			active := 0
			for _, d := range doc.Devices {
				if d.Using {
					active++
				}
			}
			slog.Info("document updated", "devices", len(doc.Devices), "active", active)
		}),
	)
	if err != nil {
		slog.Error("failed to create statushub", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   StatusHub Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080/?secret=demo-get         ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Devices:                                            ║")
	fmt.Println("  ║   • 3 simulated (legacy and canonical updates)        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// simulated devices report into the hub (see devices.go)
	go RunDeviceSimulator(ctx, "http://localhost:8080", demoSetSecret)

	if err := sh.Start(ctx); err != nil {
		slog.Error("statushub error", "error", err)
		os.Exit(1)
	}
}
