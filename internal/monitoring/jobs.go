package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlesng35/arenahub/pkg/metrics"
)

// JobSummary describes the latest state of a maintenance job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

type jobStore struct {
	mu   sync.Mutex
	jobs map[string]*JobSummary
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*JobSummary)}
}

func (s *jobStore) record(job, result, message string, duration time.Duration, now time.Time) {
	if duration < 0 {
		duration = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		s.jobs[job] = entry
	}
	entry.LastStatus = result
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.LastError = message
	entry.TotalRuns++
	if result == "success" {
		entry.ConsecutiveFailures = 0
		entry.LastSuccessAt = now
	} else {
		entry.ConsecutiveFailures++
	}
}

func (s *jobStore) snapshot() []JobSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobSummary, 0, len(s.jobs))
	for _, entry := range s.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// RecordMaintenanceRun records a maintenance job run on the process-wide
// module. Without one only the Prometheus counter is updated.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	if module := CurrentModule(); module != nil {
		module.RecordMaintenanceRun(job, result, message, duration)
		return
	}
	job, result = jobLabels(job, result)
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
}

// RecordMaintenanceRun records the outcome of a maintenance job run.
func (m *Module) RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	job, result = jobLabels(job, result)
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
	if m != nil {
		m.jobs.record(job, result, strings.TrimSpace(message), duration, time.Now())
	}
}

// Jobs returns the job state recorded on this module.
func (m *Module) Jobs() []JobSummary {
	if m == nil {
		return nil
	}
	return m.jobs.snapshot()
}

func jobLabels(job, result string) (string, string) {
	job = normalizeLabel(job)
	if job == "" {
		job = "unknown"
	}
	result = normalizeLabel(result)
	if result == "" {
		result = "unknown"
	}
	return job, result
}

func normalizeLabel(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
