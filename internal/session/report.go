package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/JakeFAU/site-downloader/internal/status"
)

// Report is the structured record written to the site's reports directory.
type Report struct {
	SessionID          string         `json:"session_id"`
	TotalRequests      int            `json:"total_requests"`
	SuccessfulRequests int            `json:"successful_requests"`
	FailedRequests     int            `json:"failed_requests"`
	TotalAttempts      int            `json:"total_attempts"`
	TotalBytes         int64          `json:"total_bytes"`
	StatusCodes        map[string]int `json:"status_codes"`
	SuccessRate        float64        `json:"success_rate"`
	DurationSeconds    float64        `json:"duration_seconds"`
	Timestamp          time.Time      `json:"timestamp"`
	MemorySamples      []MemorySample `json:"memory_samples,omitempty"`
}

// NewReport converts a snapshot into its on-disk form.
func NewReport(stats Stats, at time.Time) Report {
	return Report{
		SessionID:          stats.SessionID,
		TotalRequests:      stats.TotalRequests,
		SuccessfulRequests: stats.SuccessfulRequests,
		FailedRequests:     stats.FailedRequests,
		TotalAttempts:      stats.TotalAttempts,
		TotalBytes:         stats.TotalBytes,
		StatusCodes:        stats.StatusCodes,
		SuccessRate:        stats.SuccessRate,
		DurationSeconds:    stats.DurationSeconds,
		Timestamp:          at,
		MemorySamples:      stats.MemorySamples,
	}
}

// WriteReport writes the report as indented JSON under dir and returns its
// path. The name carries the session ID so runs within the same second keep
// separate files.
func WriteReport(dir string, report Report) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create reports dir %s: %w", dir, err)
	}
	name := "status_codes_" + report.Timestamp.Format("20060102150405")
	if report.SessionID != "" {
		name += "_" + report.SessionID
	}
	name += ".json"
	path := filepath.Join(dir, name)
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

// WriteSummary prints the colored per-status summary shown at the end of a run.
func WriteSummary(w io.Writer, stats Stats) error {
	if _, err := fmt.Fprintf(w, "\nHTTP Status Code Summary (%d/%d succeeded, %.1f%%):\n",
		stats.SuccessfulRequests, stats.TotalRequests, stats.SuccessRate*100); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	for _, key := range sortedKeys(stats.StatusCodes) {
		label := "no response"
		if code, err := strconv.Atoi(key); err == nil {
			label = status.Format(code)
		}
		if _, err := fmt.Fprintf(w, "  %s: %d requests\n", label, stats.StatusCodes[key]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// sortedKeys orders numeric codes ascending with the error bucket last.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// HeapInUse returns the bytes of allocated heap objects.
func HeapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
