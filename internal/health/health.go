// Package health собирает проверки зависимостей леджера в ответы /healthz и /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status: итог проверки или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// DefaultCheckTimeout ограничивает время одной проверки.
const DefaultCheckTimeout = 2 * time.Second

// Checker проверяет одну зависимость; nil значит, что зависимость в порядке.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc позволяет использовать функцию как Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// Result: результат одной проверки.
type Result struct {
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report: тело ответа /healthz.
type Report struct {
	Status        Status            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Service       string            `json:"service,omitempty"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]Result `json:"checks,omitempty"`
}

// Failing возвращает имена проверок, не прошедших успешно, по алфавиту.
func (r Report) Failing() []string {
	var names []string
	for name, res := range r.Checks {
		if res.Status != StatusHealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

type registration struct {
	checker  Checker
	critical bool
}

// Handler держит зарегистрированные проверки и отдаёт их по HTTP.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]registration
	service string
	version string
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

// Option настраивает Handler.
type Option func(*Handler)

// WithTimeout задаёт таймаут одной проверки.
func WithTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(service, version string, opts ...Option) *Handler {
	h := &Handler{
		checks:  make(map[string]registration),
		service: service,
		version: version,
		timeout: DefaultCheckTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// Register добавляет критичную проверку: её отказ делает сервис unhealthy и снимает готовность.
func (h *Handler) Register(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterOptional добавляет проверку, отказ которой только понижает статус до degraded.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.register(name, checker, false)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registration{checker: checker, critical: critical}
}

// Run параллельно выполняет все проверки, каждую со своим таймаутом.
func (h *Handler) Run(ctx context.Context) Report {
	h.mu.RLock()
	checks := make(map[string]registration, len(h.checks))
	for name, reg := range h.checks {
		checks[name] = reg
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(checks))
	)
	for name, reg := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.runOne(ctx, reg)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	now := h.now()
	return Report{
		Status:        overall(results),
		Timestamp:     now.UTC(),
		Service:       h.service,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Checks:        results,
	}
}

func (h *Handler) runOne(ctx context.Context, reg registration) Result {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	began := time.Now()
	err := reg.checker.Check(ctx)
	res := Result{Status: StatusHealthy, Critical: reg.critical, DurationMs: time.Since(began).Milliseconds()}
	if err != nil {
		res.Message = err.Error()
		res.Status = StatusDegraded
		if reg.critical {
			res.Status = StatusUnhealthy
		}
	}
	return res
}

func overall(results map[string]Result) Status {
	status := StatusHealthy
	for _, res := range results {
		switch res.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// ServeHTTP отдаёт полный отчёт; 503 только при отказе критичной проверки.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// LivenessHandler не смотрит на зависимости: процесс жив, пока отвечает.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// ReadinessHandler снимает готовность только при отказе критичной проверки.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Run(r.Context()).Status == StatusUnhealthy {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
