// Package health tracks the reachability of the directory's dependencies and
// publishes it through the gRPC health service.
package health

import (
	"context"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// ProbeFunc checks one dependency; nil means reachable.
type ProbeFunc func(ctx context.Context) error

// Probe is a named dependency check. A Required probe that crosses the fail
// threshold marks the whole service NOT_SERVING.
type Probe struct {
	Name     string
	Required bool
	Check    ProbeFunc
}

// StatusSetter receives serving status transitions. *health.Server from
// google.golang.org/grpc/health satisfies it.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(probe string, success bool)

// DependencyStatus is the last known state of one probe.
type DependencyStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Required  bool      `json:"required"`
	FailCount int       `json:"failCount"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Checker runs periodic dependency probes.
type Checker struct {
	probes    []Probe
	status    StatusSetter
	mu        sync.Mutex
	state     map[string]*DependencyStatus
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker. status may be nil.
func New(probes []Probe, status StatusSetter, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	state := make(map[string]*DependencyStatus, len(probes))
	for _, p := range probes {
		state[p.Name] = &DependencyStatus{Name: p.Name, Required: p.Required, Healthy: true}
	}
	return &Checker{
		probes: probes,
		status: status,
		state:  state,
		cfg:    cfg,
		logger: logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until quit is signalled.
func (h *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(context.Background())
	for {
		select {
		case <-ticker.C:
			h.CheckAll(context.Background())
		case <-quit:
			return
		}
	}
}

// CheckAll runs every probe concurrently and publishes the overall status.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p.Check(pctx)
			cancel()
			h.observe(p, err)
		}(p)
	}
	wg.Wait()

	if h.status == nil {
		return
	}
	serving := healthpb.HealthCheckResponse_SERVING
	if !h.Healthy() {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.status.SetServingStatus("", serving)
}

func (h *Checker) observe(p Probe, err error) {
	if h.onMetrics != nil {
		h.onMetrics(p.Name, err == nil)
	}

	h.mu.Lock()
	st := h.state[p.Name]
	prev := st.FailCount
	st.CheckedAt = time.Now().UTC()
	if err == nil {
		st.FailCount = 0
		st.Healthy = true
		st.LastError = ""
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Healthy = false
		}
	}
	count := st.FailCount
	h.mu.Unlock()

	if err == nil && prev >= h.cfg.FailThreshold {
		h.logger.Info("health: recovered", zap.String("dependency", p.Name))
	} else if err != nil && count == h.cfg.FailThreshold {
		h.logger.Warn("health: degraded",
			zap.String("dependency", p.Name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	}
}

// Healthy reports whether every required dependency is healthy.
func (h *Checker) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.state {
		if st.Required && !st.Healthy {
			return false
		}
	}
	return true
}

// Snapshot returns the state of every dependency sorted by name.
func (h *Checker) Snapshot() []DependencyStatus {
	h.mu.Lock()
	out := make([]DependencyStatus, 0, len(h.state))
	for _, st := range h.state {
		out = append(out, *st)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HTTPProbe returns a probe that succeeds on any 2xx response, trying HEAD
// before GET.
func HTTPProbe(endpoint string) ProbeFunc {
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err = client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{code: resp.StatusCode}
		}
		return nil
	}
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "unexpected status " + http.StatusText(e.code) }
