package observability

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
)

const (
	statusUp       = "up"
	statusDraining = "draining"
)

// ReadinessReport is the readiness body. Orchestrators only read the status code.
type ReadinessReport struct {
	Ready      bool              `json:"ready"`
	Components map[string]string `json:"components"`
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ReadinessReport{Components: map[string]string{"server": statusDraining}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProbeTimeout)
	defer cancel()

	report := s.probe(ctx)
	if !report.Ready {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, report)
}

// probe runs every checker in parallel.
func (s *Server) probe(ctx context.Context) ReadinessReport {
	report := ReadinessReport{Ready: true, Components: make(map[string]string, len(s.checkers))}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// Warn, not Error: the orchestrator retries.
				s.logger.Warn("health probe failed",
					slog.String("dependency", c.Name()),
					slog.Duration("elapsed", time.Since(start)),
					slog.String("error", err.Error()),
				)
				report.Components[c.Name()] = "down: " + err.Error()
				report.Ready = false
				return
			}
			report.Components[c.Name()] = statusUp
		}(checker)
	}

	wg.Wait()
	return report
}
