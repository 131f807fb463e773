package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tkivite/knowledgestore-api/pkg/httputil"
)

// Checker probes a dependency.
type Checker func(ctx context.Context) error

// Status of a component or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the body of the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one checker.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type registration struct {
	check    Checker
	critical bool
}

// Handler serves liveness and readiness probes.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]registration
	timeout time.Duration
}

// NewHandler returns a handler whose readiness checks share a 5s budget.
func NewHandler() *Handler {
	return &Handler{checks: make(map[string]registration), timeout: 5 * time.Second}
}

// Register adds a critical checker. A failing critical checker makes the
// service unready.
func (h *Handler) Register(name string, c Checker) {
	h.register(name, c, true)
}

// RegisterOptional adds a checker whose failure only degrades readiness.
func (h *Handler) RegisterOptional(name string, c Checker) {
	h.register(name, c, false)
}

func (h *Handler) register(name string, c Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registration{check: c, critical: critical}
}

// Liveness always answers 200 while the process is serving.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
}

// Readiness runs every checker concurrently. It answers 503 when a critical
// checker fails and 200 with status "degraded" when only optional ones do.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	regs := make(map[string]registration, len(h.checks))
	for name, reg := range h.checks {
		regs[name] = reg
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(regs))
	)
	for name, reg := range regs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := CheckResult{Status: StatusUp, Critical: reg.critical}
			if err := reg.check(ctx); err != nil {
				res.Status, res.Error = StatusDown, err.Error()
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall, code := StatusUp, http.StatusOK
	for _, res := range results {
		if res.Status != StatusDown {
			continue
		}
		if res.Critical {
			overall, code = StatusDown, http.StatusServiceUnavailable
			break
		}
		overall = StatusDegraded
	}

	httputil.WriteJSON(w, code, Response{Status: overall, Timestamp: time.Now().UTC(), Checks: results})
}
