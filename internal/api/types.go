package api

import (
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Job lifecycle states reported by the backend.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// JobStatus is the normalized view of a processing job.
type JobStatus struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Intent    string  `json:"intent,omitempty"`
	Progress  float64 `json:"progress"`
	Stage     string  `json:"stage,omitempty"`
	Message   string  `json:"message,omitempty"`
	Error     string  `json:"error,omitempty"`
	ClipCount int     `json:"clip_count,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// Terminal reports whether the job has stopped changing.
func (j JobStatus) Terminal() bool {
	switch strings.ToLower(j.Status) {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Succeeded reports whether the job completed successfully.
func (j JobStatus) Succeeded() bool {
	return strings.EqualFold(j.Status, JobCompleted)
}

// ParsedUpdatedAt returns UpdatedAt as a time when it parses.
func (j JobStatus) ParsedUpdatedAt() time.Time {
	return parseTime(j.UpdatedAt)
}

// Clip is one generated output segment of a job.
type Clip struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	Score        float64 `json:"score,omitempty"`
	URL          string  `json:"url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
}

// Duration returns the clip length.
func (c Clip) Duration() time.Duration {
	if c.EndTime <= c.StartTime {
		return 0
	}
	return time.Duration((c.EndTime - c.StartTime) * float64(time.Second))
}

// QueueStats aggregates the backend queue and worker pool.
type QueueStats struct {
	Pending       int `json:"pending"`
	Processing    int `json:"processing"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	ActiveWorkers int `json:"active_workers"`
	TotalWorkers  int `json:"total_workers"`
}

// Total returns the number of jobs the queue knows about.
func (q QueueStats) Total() int {
	return q.Pending + q.Processing + q.Completed + q.Failed
}

// Agent describes one backend processing agent.
type Agent struct {
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities,omitempty"`
	LastSeen     string   `json:"last_seen,omitempty"`
}

// Healthy reports whether the agent is available for work.
func (a Agent) Healthy() bool {
	switch strings.ToLower(a.Status) {
	case "online", "idle", "busy", "healthy", "ready":
		return true
	}
	return false
}

// CreateJobRequest starts processing either an uploaded file or a remote URL.
type CreateJobRequest struct {
	Intent   string         `json:"intent"`
	UploadID string         `json:"upload_id,omitempty"`
	VideoURL string         `json:"video_url,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// InitUploadRequest opens a chunked upload session.
type InitUploadRequest struct {
	FileName    string `json:"filename"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type,omitempty"`
	ChunkSize   int64  `json:"chunk_size"`
}

// UploadSession is returned by the upload init endpoint.
type UploadSession struct {
	UploadID    string `json:"upload_id"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`
}

// ChunkReceipt acknowledges one uploaded chunk.
type ChunkReceipt struct {
	UploadID string `json:"upload_id"`
	Index    int    `json:"index"`
	Received int64  `json:"received"`
}

// UploadResult is returned once an upload is finalized.
type UploadResult struct {
	UploadID string `json:"upload_id"`
	FileID   string `json:"file_id"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(timestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
