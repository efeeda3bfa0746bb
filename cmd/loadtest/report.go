package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// scenarioMethod — псевдо-операция, под которой пишется сценарий целиком.
const scenarioMethod = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// sample — один завершённый вызов; code равен HTTP-статусу или transport_error.
type sample struct {
	method  string
	latency time.Duration
	code    string
	ok      bool
}

// collector складывает сырые замеры, агрегирует их только buildReport.
type collector struct {
	mu      sync.Mutex
	samples []sample
}

func newCollector() *collector {
	return &collector{}
}

func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	c.samples = append(c.samples, sample{method: method, latency: latency, code: code, ok: ok})
	c.mu.Unlock()
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	byMethod := make(map[string][]sample)
	for _, s := range c.samples {
		byMethod[s.method] = append(byMethod[s.method], s)
	}
	c.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(byMethod)),
	}
	for method, samples := range byMethod {
		out.Methods[method] = summarize(samples)
	}

	if sc, ok := out.Methods[scenarioMethod]; ok {
		out.TotalScenarios = sc.Calls
		out.SuccessScenarios = sc.Success
		out.FailedScenarios = sc.Failed
		out.ErrorRate = sc.ErrorRate
		out.ScenarioLatencyMs = sc.LatencyMs
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

func summarize(samples []sample) methodReport {
	r := methodReport{Codes: make(map[string]int64)}
	millis := make([]float64, 0, len(samples))
	for _, s := range samples {
		r.Calls++
		if s.ok {
			r.Success++
		} else {
			r.Failed++
		}
		r.Codes[s.code]++
		millis = append(millis, float64(s.latency.Microseconds())/1000)
	}
	r.ErrorRate = ratio(r.Failed, r.Calls)
	r.LatencyMs = buildLatencySummary(millis)
	return r
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile интерполирует линейно между соседними рангами отсортированного среза.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// writeJSONReport пишет отчёт в файл внутри текущего каталога.
func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(raw, '\n'), 0o600)
}

func printReport(w io.Writer, result report, cfg config) {
	sc := result.ScenarioLatencyMs
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		sc.Min, sc.Avg, sc.P50, sc.P95, sc.P99, sc.Max)

	methods := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			methods = append(methods, name)
		}
	}
	if len(methods) == 0 {
		return
	}
	slices.Sort(methods)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range methods {
		m := result.Methods[name]
		fmt.Fprintf(tw, "%s: calls=%d success=%d failed=%d\terror_rate=%.4f\tp95=%.2fms\n",
			name, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95)
	}
	_ = tw.Flush()
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}
