// Standalone device reporter for testing the CLI.
//
// Usage:
//
//	go run ./cmd/statushub serve
//
// Then in another terminal:
//
//	SECRET=default-set-secret go run ./example/cmd/reporter
//
// STATUSHUB_URL overrides the hub address (default http://localhost:3000).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := envOr("STATUSHUB_URL", "http://localhost:3000")
	secret := envOr("SECRET", "default-set-secret")
	host, err := os.Hostname()
	if err != nil {
		host = "reporter"
	}

	fmt.Printf("Reporting device %q to %s\n", host, baseURL)
	fmt.Println("App cycles every 5-20 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	apps := []string{"Editor", "Browser", "Terminal", "Music"}
	client := &http.Client{Timeout: 5 * time.Second}

	for {
		app := apps[rand.Intn(len(apps))]
		using := rand.Intn(3) > 0

		body, _ := json.Marshal(map[string]any{
			"id":       host,
			"app_name": app,
			"using":    using,
		})
		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/status", bytes.NewReader(body))
		if err != nil {
			slog.Error("failed to build request", "error", err)
			os.Exit(1)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Set-Secret", secret)

		resp, err := client.Do(req)
		switch {
		case err != nil:
			slog.Warn("report failed", "error", err)
		case resp.StatusCode != http.StatusOK:
			slog.Warn("report rejected", "status", resp.StatusCode)
			resp.Body.Close()
		default:
			slog.Info("reported", "app", app, "using", using)
			resp.Body.Close()
		}

		time.Sleep(time.Duration(5+rand.Intn(16)) * time.Second)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
