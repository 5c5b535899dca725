package api

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// The backend has answered with a few envelope shapes over time. Each
// response type gets exactly one normalizer here so nothing past the adapter
// has to guess.

// unwrap returns the value under the first of keys when raw is a JSON object
// carrying it, otherwise raw itself.
func unwrap(raw []byte, keys ...string) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return trimmed
	}
	for _, key := range keys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		inner = bytes.TrimSpace(inner)
		if len(inner) > 0 && (inner[0] == '{' || inner[0] == '[') {
			return inner
		}
	}
	return trimmed
}

func normalizeJob(raw []byte) (JobStatus, error) {
	var wire struct {
		JobStatus
		JobID string `json:"job_id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(unwrap(raw, "job", "data"), &wire); err != nil {
		return JobStatus{}, fmt.Errorf("decode job: %w", err)
	}
	job := wire.JobStatus
	if job.ID == "" {
		job.ID = wire.JobID
	}
	if job.Status == "" {
		job.Status = wire.State
	}
	job.Status = strings.ToLower(strings.TrimSpace(job.Status))
	if job.Status == "canceled" {
		job.Status = JobCancelled
	}
	if job.ID == "" {
		return JobStatus{}, fmt.Errorf("decode job: missing id")
	}
	return job, nil
}

func normalizeClips(raw []byte) ([]Clip, error) {
	var clips []Clip
	if err := json.Unmarshal(unwrap(raw, "clips", "results", "data"), &clips); err != nil {
		return nil, fmt.Errorf("decode clips: %w", err)
	}
	return clips, nil
}

func normalizeQueueStats(raw []byte) (QueueStats, error) {
	var wire struct {
		QueueStats
		Queued  *int `json:"queued"`
		Running *int `json:"running"`
		Workers *struct {
			Active int `json:"active"`
			Total  int `json:"total"`
		} `json:"workers"`
	}
	if err := json.Unmarshal(unwrap(raw, "queue", "stats", "data"), &wire); err != nil {
		return QueueStats{}, fmt.Errorf("decode queue stats: %w", err)
	}
	stats := wire.QueueStats
	if wire.Queued != nil && stats.Pending == 0 {
		stats.Pending = *wire.Queued
	}
	if wire.Running != nil && stats.Processing == 0 {
		stats.Processing = *wire.Running
	}
	if wire.Workers != nil && stats.TotalWorkers == 0 {
		stats.ActiveWorkers = wire.Workers.Active
		stats.TotalWorkers = wire.Workers.Total
	}
	return stats, nil
}

func normalizeAgents(raw []byte) ([]Agent, error) {
	body := unwrap(raw, "agents", "data")
	if len(body) > 0 && body[0] == '{' {
		body = unwrap(body, "status", "items")
	}
	var agents []Agent
	if err := json.Unmarshal(body, &agents); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return agents, nil
}

// NormalizeJob exposes the job normalizer for payloads that arrive outside
// the HTTP client, such as real-time frames.
func NormalizeJob(raw []byte) (JobStatus, error) { return normalizeJob(raw) }

// NormalizeQueueStats exposes the queue stats normalizer for real-time frames.
func NormalizeQueueStats(raw []byte) (QueueStats, error) { return normalizeQueueStats(raw) }
