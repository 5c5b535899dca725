package api

import (
	"testing"
	"time"
)

func TestNormalizeJob_Shapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want JobStatus
	}{
		{"flat", `{"id":"j1","status":"completed"}`, JobStatus{ID: "j1", Status: JobCompleted}},
		{"job envelope", `{"job":{"id":"j1","status":"failed","error":"boom"}}`, JobStatus{ID: "j1", Status: JobFailed, Error: "boom"}},
		{"data envelope with aliases", `{"data":{"job_id":"j2","state":"Canceled"}}`, JobStatus{ID: "j2", Status: JobCancelled}},
		{"websocket frame", `{"type":"job_status","job_id":"j3","status":"processing","progress":10}`, JobStatus{ID: "j3", Status: JobProcessing, Progress: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeJob([]byte(tc.raw))
			if err != nil {
				t.Fatalf("normalizeJob returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("normalizeJob = %#v, want %#v", got, tc.want)
			}
		})
	}

	if _, err := normalizeJob([]byte(`{"status":"queued"}`)); err == nil {
		t.Fatal("normalizeJob without id returned nil error")
	}
}

func TestNormalizeQueueStats_LegacyAliases(t *testing.T) {
	got, err := normalizeQueueStats([]byte(`{"queue":{"queued":4,"running":2,"workers":{"active":1,"total":3}}}`))
	if err != nil {
		t.Fatalf("normalizeQueueStats returned error: %v", err)
	}
	want := QueueStats{Pending: 4, Processing: 2, ActiveWorkers: 1, TotalWorkers: 3}
	if got != want {
		t.Fatalf("normalizeQueueStats = %#v, want %#v", got, want)
	}
	if got.Total() != 6 {
		t.Fatalf("Total = %d, want 6", got.Total())
	}
}

func TestNormalizeAgents_Shapes(t *testing.T) {
	for _, raw := range []string{
		`[{"name":"a","status":"idle"}]`,
		`{"agents":[{"name":"a","status":"idle"}]}`,
		`{"agents":{"status":[{"name":"a","status":"idle"}]}}`,
	} {
		agents, err := normalizeAgents([]byte(raw))
		if err != nil {
			t.Fatalf("normalizeAgents(%s) returned error: %v", raw, err)
		}
		if len(agents) != 1 || agents[0].Name != "a" {
			t.Fatalf("normalizeAgents(%s) = %#v", raw, agents)
		}
	}
}

func TestJobStatusHelpers(t *testing.T) {
	if (JobStatus{Status: JobProcessing}).Terminal() {
		t.Fatal("processing should not be terminal")
	}
	for _, s := range []string{JobCompleted, JobFailed, JobCancelled} {
		if !(JobStatus{Status: s}).Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if (Clip{StartTime: 5, EndTime: 2}).Duration() != 0 {
		t.Fatal("inverted clip should have zero duration")
	}
	got := (JobStatus{UpdatedAt: "2025-12-13 10:11:12"}).ParsedUpdatedAt()
	if got.Year() != 2025 || got.Month() != time.December {
		t.Fatalf("ParsedUpdatedAt = %v", got)
	}
}
