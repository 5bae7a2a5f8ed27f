package app

import (
	"context"
	"fmt"
	"time"

	"aquanet/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

// Check reports "degraded" when any known network failed its last run or
// history is enabled but unavailable.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	update := s.app.CurrentUpdate()
	failed := 0
	for _, n := range update.Networks {
		if n.Failed() {
			failed++
		}
	}
	status.Components["networks"] = fmt.Sprintf("%d tracked, %d failing", len(update.Networks), failed)
	if failed > 0 {
		status.Status = "degraded"
	}

	switch {
	case s.app.history != nil:
		status.Components["history"] = "ok"
	case s.app.config().DB.Enabled:
		status.Status = "degraded"
		status.Components["history"] = "missing but enabled in config"
	default:
		status.Components["history"] = "disabled"
	}

	if s.app.activeWatcher != nil {
		status.Components["watcher"] = "ok"
	}
	status.Components["heap_mb"] = fmt.Sprintf("%d", util.GetHeapAllocMB())
	return status
}
