package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// simDevice tracks what a simulated device is doing and when it next changes.
type simDevice struct {
	id           string
	showName     string
	legacy       bool
	appIdx       int
	using        bool
	nextChangeAt time.Time
}

var simApps = []string{"Editor", "Browser", "Terminal", "Music"}

// RunDeviceSimulator reports the state of a few fake devices to the hub at
// baseURL until ctx is cancelled. Each device changes state every 5-20
// seconds; one of them uses the legacy single-device body.
func RunDeviceSimulator(ctx context.Context, baseURL, secret string) {
	devices := []*simDevice{
		{id: "laptop", showName: "Laptop"},
		{id: "desktop", showName: "Desktop"},
		{id: "phone", showName: "Phone", legacy: true},
	}
	client := &http.Client{Timeout: 5 * time.Second}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, d := range devices {
				if now.Before(d.nextChangeAt) {
					continue
				}
				d.using = rand.Intn(3) > 0
				d.appIdx = rand.Intn(len(simApps))
				d.nextChangeAt = now.Add(time.Duration(5+rand.Intn(16)) * time.Second)

				if err := report(ctx, client, baseURL, secret, d); err != nil {
					slog.Warn("report failed", "device", d.id, "error", err)
					continue
				}
				slog.Info("device reported", "device", d.id, "app", simApps[d.appIdx], "using", d.using)
			}
		}
	}
}

func report(ctx context.Context, client *http.Client, baseURL, secret string, d *simDevice) error {
	var body any
	if d.legacy {
		body = map[string]any{
			"id":       d.id,
			"app_name": simApps[d.appIdx],
			"using":    d.using,
		}
	} else {
		body = map[string]any{
			"device": map[string]any{
				d.id: map[string]any{
					"show_name": d.showName,
					"app_name":  simApps[d.appIdx],
					"using":     d.using,
				},
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/status", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Set-Secret", secret)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status " + http.StatusText(e.code)
}
