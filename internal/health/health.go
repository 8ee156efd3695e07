package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status — состояние зависимости или сервиса целиком.
type Status string

const (
	StatusOK   Status = "ok"
	StatusDown Status = "down"
)

// Probe опрашивает одну зависимость; nil означает, что она жива.
type Probe func() error

// ProbeResult — исход одного опроса.
type ProbeResult struct {
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report — агрегированный ответ /healthz.
type Report struct {
	Status        Status                 `json:"status"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Timestamp     time.Time              `json:"timestamp"`
	Probes        map[string]ProbeResult `json:"probes,omitempty"`
}

// Handler опрашивает зарегистрированные зависимости storefront (postgres,
// redis) и отдаёт агрегированный статус.
type Handler struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	version string
	started time.Time
}

// NewHandler создаёт health handler.
func NewHandler(version string) *Handler {
	return &Handler{
		probes:  make(map[string]Probe),
		version: version,
		started: time.Now(),
	}
}

// Register добавляет опрос зависимости под именем name.
func (h *Handler) Register(name string, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = probe
}

// evaluate прогоняет все опросы и собирает отчёт. Порядок фиксирован по
// имени, чтобы два запроса подряд давали сравнимые ответы.
func (h *Handler) evaluate() Report {
	h.mu.RLock()
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(h.probes))
	for name, probe := range h.probes {
		probes[name] = probe
	}
	h.mu.RUnlock()
	sort.Strings(names)

	report := Report{
		Status:        StatusOK,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now().UTC(),
		Probes:        make(map[string]ProbeResult, len(names)),
	}

	for _, name := range names {
		start := time.Now()
		err := probes[name]()
		result := ProbeResult{
			Status:    StatusOK,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Status = StatusDown
			result.Error = err.Error()
			report.Status = StatusDown
		}
		report.Probes[name] = result
	}
	return report
}

// ServeHTTP отдаёт полный отчёт; 503, если хотя бы одна зависимость лежит.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := h.evaluate()

	code := http.StatusOK
	if report.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// LivenessHandler — liveness probe, всегда 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler — readiness probe: 503, пока хотя бы одна зависимость лежит.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if h.evaluate().Status == StatusDown {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
