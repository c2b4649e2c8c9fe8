package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// Операции, по которым копится статистика.
const (
	opScenario      = "scenario"
	opCreateAuction = "CreateAuction"
	opCreateLot     = "CreateLot"
	opCreateBid     = "CreateBid"
)

type opSamples struct {
	statuses  map[int]int
	latencies []time.Duration
}

// recorder собирает статусы, задержки и выданные номера со всех воркеров.
type recorder struct {
	mu      sync.Mutex
	ops     map[string]*opSamples
	numbers []int
}

func newRecorder() *recorder {
	return &recorder{ops: make(map[string]*opSamples)}
}

func (r *recorder) observe(op string, status int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples, ok := r.ops[op]
	if !ok {
		samples = &opSamples{statuses: make(map[int]int)}
		r.ops[op] = samples
	}
	samples.statuses[status]++
	samples.latencies = append(samples.latencies, elapsed)
}

func (r *recorder) assigned(number int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers = append(r.numbers, number)
}

type latencyReport struct {
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

type opReport struct {
	Calls     int           `json:"calls"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	ErrorRate float64       `json:"error_rate"`
	Statuses  map[int]int   `json:"statuses"`
	LatencyMs latencyReport `json:"latency_ms"`
}

// numberingReport: номера внутри родителя должны покрывать 1..max ровно по одному разу.
type numberingReport struct {
	Assigned   int   `json:"assigned"`
	MaxNumber  int   `json:"max_number"`
	Duplicates []int `json:"duplicates,omitempty"`
	Gaps       []int `json:"gaps,omitempty"`
}

func (n numberingReport) ok() bool {
	return len(n.Duplicates) == 0 && len(n.Gaps) == 0
}

type report struct {
	RunID           string              `json:"run_id"`
	Mode            loadMode            `json:"mode"`
	StartedAt       time.Time           `json:"started_at"`
	DurationSeconds float64             `json:"duration_seconds"`
	Throughput      float64             `json:"scenarios_per_second"`
	Scenarios       opReport            `json:"scenarios"`
	Operations      map[string]opReport `json:"operations"`
	Numbering       numberingReport     `json:"numbering"`
}

// passed: все сценарии успешны и нумерация без дыр и повторов.
func (r report) passed() bool {
	return r.Scenarios.Failed == 0 && r.Numbering.ok()
}

func (r *recorder) report(started time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := report{
		StartedAt:       started.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Operations:      make(map[string]opReport, len(r.ops)),
		Numbering:       checkNumbering(r.numbers),
	}
	for op, samples := range r.ops {
		summary := samples.summarize()
		if op == opScenario {
			result.Scenarios = summary
			continue
		}
		result.Operations[op] = summary
	}
	if elapsed > 0 {
		result.Throughput = float64(result.Scenarios.Calls) / elapsed.Seconds()
	}
	return result
}

func (s *opSamples) summarize() opReport {
	out := opReport{
		Calls:     len(s.latencies),
		Statuses:  make(map[int]int, len(s.statuses)),
		LatencyMs: summarizeLatencies(s.latencies),
	}
	for status, count := range s.statuses {
		out.Statuses[status] = count
		if status >= 200 && status < 300 {
			out.Succeeded += count
		} else {
			out.Failed += count
		}
	}
	if out.Calls > 0 {
		out.ErrorRate = float64(out.Failed) / float64(out.Calls)
	}
	return out
}

func summarizeLatencies(latencies []time.Duration) latencyReport {
	if len(latencies) == 0 {
		return latencyReport{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	return latencyReport{
		Mean: ms(sum / time.Duration(len(sorted))),
		P50:  ms(nearestRank(sorted, 0.50)),
		P95:  ms(nearestRank(sorted, 0.95)),
		P99:  ms(nearestRank(sorted, 0.99)),
		Max:  ms(sorted[len(sorted)-1]),
	}
}

// nearestRank возвращает наименьшее значение, не меньшее доли q выборки.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func checkNumbering(numbers []int) numberingReport {
	result := numberingReport{Assigned: len(numbers)}
	seen := make(map[int]int, len(numbers))
	for _, n := range numbers {
		seen[n]++
		result.MaxNumber = max(result.MaxNumber, n)
	}
	for n := 1; n <= result.MaxNumber; n++ {
		switch seen[n] {
		case 0:
			result.Gaps = append(result.Gaps, n)
		case 1:
		default:
			result.Duplicates = append(result.Duplicates, n)
		}
	}
	return result
}

func statusLabel(status int) string {
	if status == statusTransport {
		return "transport"
	}
	return strconv.Itoa(status)
}

func formatStatuses(statuses map[int]int) string {
	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%s×%d", statusLabel(code), statuses[code]))
	}
	return strings.Join(parts, " ")
}

func (r report) print(w io.Writer) {
	_, _ = fmt.Fprintf(w, "run %s mode=%s duration=%.2fs throughput=%.1f/s\n",
		r.RunID, r.Mode, r.DurationSeconds, r.Throughput)
	_, _ = fmt.Fprintf(w, "numbering: assigned=%d max=%d duplicates=%v gaps=%v\n\n",
		r.Numbering.Assigned, r.Numbering.MaxNumber, r.Numbering.Duplicates, r.Numbering.Gaps)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "operation\tcalls\tfailed\terror_rate\tp50ms\tp95ms\tp99ms\tmaxms\tstatuses")
	row := func(name string, op opReport) {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			name, op.Calls, op.Failed, op.ErrorRate,
			op.LatencyMs.P50, op.LatencyMs.P95, op.LatencyMs.P99, op.LatencyMs.Max,
			formatStatuses(op.Statuses))
	}
	row(opScenario, r.Scenarios)
	names := make([]string, 0, len(r.Operations))
	for name := range r.Operations {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		row(name, r.Operations[name])
	}
	_ = tw.Flush()
}

// writeReport пишет JSON-отчёт; путь должен оставаться внутри рабочего каталога.
func writeReport(path string, r report) error {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) && (clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))) {
		return fmt.Errorf("report path escapes the working directory: %s", path)
	}
	if clean == "." || strings.HasSuffix(path, string(filepath.Separator)) {
		return errors.New("report path must name a file")
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	// #nosec G306 -- отчёт нагрузочного теста не содержит секретов.
	return os.WriteFile(clean, append(data, '\n'), 0o644)
}
