// Package health turns metrics and recent log entries into a health report.
package health

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"registry-federation/internal/logs"
	"registry-federation/internal/metrics"
)

const (
	logWindow            = 100
	fetchFailureLogLimit = 3
)

// Analyzer converts metrics and logs into a health report.
type Analyzer struct {
	metrics *metrics.Registry
	logs    *logs.Buffer
	rules   []Rule
}

func NewAnalyzer(reg *metrics.Registry, buf *logs.Buffer) *Analyzer {
	return &Analyzer{
		metrics: reg,
		logs:    buf,
		rules:   DefaultRules(),
	}
}

// Analyze evaluates metrics and logs and returns a health report.
func (a *Analyzer) Analyze() Report {
	snapshot := a.metrics.Snapshot()

	var (
		signals         = []string{}
		recommendations = []string{}
		status          = StatusOK
	)

	escalate := func(s Status) {
		if s == StatusCritical {
			status = StatusCritical
		} else if s == StatusDegraded && status == StatusOK {
			status = StatusDegraded
		}
	}

	/* ---------- METRICS-BASED RULES ---------- */

	for _, rule := range a.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}
		signals = append(signals, result.Signal)
		recommendations = append(recommendations, result.Recommendation)
		escalate(result.Severity)
	}

	/* ---------- LOG-BASED SIGNALS ---------- */

	var entries []logs.Entry
	if a.logs != nil {
		entries = a.logs.GetLast(logWindow)
	}

	fetchFailures := 0
	panicCount := 0
	for _, entry := range entries {
		if entry.Level == zapcore.WarnLevel &&
			strings.Contains(entry.Message, "peer fetch failed") {
			fetchFailures++
		}
		if entry.Level >= zapcore.ErrorLevel &&
			strings.Contains(entry.Message, "panic") {
			panicCount++
		}
	}

	if fetchFailures >= fetchFailureLogLimit {
		signals = append(signals, "Repeated peer fetch failures detected in logs")
		recommendations = append(recommendations, "Investigate network connectivity to configured peers")
		escalate(StatusDegraded)
	}

	if panicCount > 0 {
		signals = append(signals, "Application panics detected in logs")
		recommendations = append(recommendations, "Inspect stack traces and stabilize error handling")
		escalate(StatusCritical)
	}

	/* ---------- SUMMARY ---------- */

	summary := "System is healthy"
	if status != StatusOK {
		summary = "System health issues detected"
	}

	return Report{
		OverallStatus:   status,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}
