package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/config"
)

// Probe reports whether one backend answers.
type Probe = func(ctx context.Context) error

// HealthHandler godoc
// @Summary      Service health
// @Description  Pings every configured backend. Answers 503 when one of them is down.
// @Tags         Health
// @Produce      json
// @Success      200  {object}  api.HealthResponse
// @Failure      503  {object}  api.HealthResponse
// @Router       /health [get]
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	var probes map[string]Probe
	if handlerInstance != nil {
		probes = handlerInstance.probes
	}
	resp := runProbes(r.Context(), probes)
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
		logRH.WithContext(r.Context()).Warn("Health check failed", "checks", resp.Checks)
	}
	writeJsonResponse(w, status, resp)
}

func runProbes(ctx context.Context, probes map[string]Probe) api.HealthResponse {
	resp := api.HealthResponse{Status: "ok"}
	if len(probes) == 0 {
		return resp
	}
	ctx, cancel := context.WithTimeout(ctx, config.HealthProbeTimeout)
	defer cancel()

	resp.Checks = make(map[string]string, len(probes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := "up"
			if err := probe(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			resp.Checks[name] = result
			if result != "up" {
				resp.Status = "degraded"
			}
		}()
	}
	wg.Wait()
	return resp
}
