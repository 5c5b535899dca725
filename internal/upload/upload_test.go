package upload

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/logging"
)

func TestValidateFile_SizeBoundaries(t *testing.T) {
	limits := Limits{MaxSize: 1000, WarnSize: 900}
	tests := []struct {
		name      string
		size      int64
		wantValid bool
		wantErr   string
		warnings  int
	}{
		{"empty", 0, false, "too small", 0},
		{"one byte", 1, true, "", 0},
		{"exactly max", 1000, true, "", 1},
		{"one over max", 1001, false, "too large", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := limits.ValidateFile(FileInfo{Name: "clip.mp4", Size: tt.size})
			if got.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (%q)", got.Valid, tt.wantValid, got.Error)
			}
			if tt.wantErr != "" && !strings.Contains(got.Error, tt.wantErr) {
				t.Fatalf("Error = %q, want to contain %q", got.Error, tt.wantErr)
			}
			if len(got.Warnings) != tt.warnings {
				t.Fatalf("Warnings = %v, want %d", got.Warnings, tt.warnings)
			}
		})
	}
}

func TestValidateFile_Extensions(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"talk.MP4", true},
		{"talk.webm", true},
		{"talk.avi", true},
		{"notes.txt", false},
		{"noext", false},
		{"", false},
	}
	for _, tt := range tests {
		got := ValidateFile(FileInfo{Name: tt.name, Size: 10})
		if got.Valid != tt.valid {
			t.Errorf("ValidateFile(%q).Valid = %v, want %v (%q)", tt.name, got.Valid, tt.valid, got.Error)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in       string
		valid    bool
		warnings int
	}{
		{"https://example.com/video.mp4", true, 0},
		{"http://example.com/v", true, 1},
		{"ftp://example.com/v.mp4", false, 0},
		{"not a url", false, 0},
		{"", false, 0},
		{"  https://example.com/v  ", true, 0},
	}
	for _, tt := range tests {
		got := ValidateURL(tt.in)
		if got.Valid != tt.valid || len(got.Warnings) != tt.warnings {
			t.Errorf("ValidateURL(%q) = %#v, want valid=%v warnings=%d", tt.in, got, tt.valid, tt.warnings)
		}
	}
}

type fakeUploadAPI struct {
	mu        sync.Mutex
	initReq   api.InitUploadRequest
	chunks    [][]byte
	failFirst error
	failed    bool
	finalized string
	// sessionChunk overrides the chunk size echoed by InitUpload.
	sessionChunk int64
}

func (f *fakeUploadAPI) InitUpload(_ context.Context, req api.InitUploadRequest) (api.UploadSession, error) {
	f.initReq = req
	chunk := req.ChunkSize
	if f.sessionChunk != 0 {
		chunk = f.sessionChunk
	}
	return api.UploadSession{UploadID: "up-1", ChunkSize: chunk}, nil
}

func (f *fakeUploadAPI) UploadChunk(_ context.Context, id string, index int, data []byte) (api.ChunkReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst != nil && !f.failed {
		f.failed = true
		return api.ChunkReceipt{}, f.failFirst
	}
	f.chunks = append(f.chunks, bytes.Clone(data))
	return api.ChunkReceipt{UploadID: id, Index: index, Received: int64(len(data))}, nil
}

func (f *fakeUploadAPI) FinalizeUpload(_ context.Context, id string) (api.UploadResult, error) {
	f.finalized = id
	return api.UploadResult{FileID: "file-9", Size: 0}, nil
}

func writeTemp(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploader_ChunksAndFinalizes(t *testing.T) {
	size := int(minChunkSize)*2 + 10
	path := writeTemp(t, "talk.mp4", size)
	fake := &fakeUploadAPI{}
	u := NewUploader(fake, Options{ChunkSize: minChunkSize, Logger: logging.Discard()})

	var progress []int64
	res, err := u.Upload(context.Background(), path, func(sent, total int64) {
		if total != int64(size) {
			t.Errorf("total = %d, want %d", total, size)
		}
		progress = append(progress, sent)
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.FileID != "file-9" || res.UploadID != "up-1" || fake.finalized != "up-1" {
		t.Fatalf("result = %#v finalized=%q", res, fake.finalized)
	}
	if len(fake.chunks) != 3 || len(fake.chunks[2]) != 10 {
		t.Fatalf("chunks = %d (last %d bytes), want 3 with a 10 byte tail", len(fake.chunks), len(fake.chunks[len(fake.chunks)-1]))
	}
	if fake.initReq.FileName != "talk.mp4" || fake.initReq.FileSize != int64(size) {
		t.Fatalf("init request = %#v", fake.initReq)
	}
	if progress[0] != 0 || progress[len(progress)-1] != int64(size) {
		t.Fatalf("progress = %v", progress)
	}
}

func TestUploader_BoundsServerChunkSize(t *testing.T) {
	tests := []struct {
		name       string
		server     int64
		fileSize   int
		wantChunks []int
	}{
		{name: "huge request capped at file", server: 1 << 40, fileSize: 100, wantChunks: []int{100}},
		{name: "tiny request raised to minimum", server: 10, fileSize: int(minChunkSize) + 5, wantChunks: []int{int(minChunkSize), 5}},
		{name: "non-positive uses client size", server: -1, fileSize: int(minChunkSize) + 1, wantChunks: []int{int(minChunkSize), 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "talk.mp4", tt.fileSize)
			fake := &fakeUploadAPI{sessionChunk: tt.server}
			u := NewUploader(fake, Options{ChunkSize: minChunkSize, Logger: logging.Discard()})
			if _, err := u.Upload(context.Background(), path, nil); err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if len(fake.chunks) != len(tt.wantChunks) {
				t.Fatalf("chunks = %d, want %d", len(fake.chunks), len(tt.wantChunks))
			}
			for i, want := range tt.wantChunks {
				if len(fake.chunks[i]) != want {
					t.Errorf("chunk %d = %d bytes, want %d", i, len(fake.chunks[i]), want)
				}
			}
		})
	}
}

func TestUploader_RejectsInvalidBeforeRequest(t *testing.T) {
	path := writeTemp(t, "empty.mp4", 0)
	fake := &fakeUploadAPI{}
	u := NewUploader(fake, Options{Logger: logging.Discard()})

	_, err := u.Upload(context.Background(), path, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) || !strings.Contains(ve.Result.Error, "too small") {
		t.Fatalf("err = %v, want size-too-small validation error", err)
	}
	if fake.initReq.FileName != "" {
		t.Fatal("init was called for an invalid file")
	}
}

func TestUploader_RetriesServerErrors(t *testing.T) {
	path := writeTemp(t, "talk.mp4", 100)
	fake := &fakeUploadAPI{failFirst: &api.StatusError{Code: http.StatusBadGateway}}
	u := NewUploader(fake, Options{ChunkRetries: 2, RetryDelay: time.Millisecond, Logger: logging.Discard()})

	if _, err := u.Upload(context.Background(), path, nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(fake.chunks) != 1 {
		t.Fatalf("chunks = %d, want 1 after retry", len(fake.chunks))
	}
}

func TestUploader_DoesNotRetryClientErrors(t *testing.T) {
	path := writeTemp(t, "talk.mp4", 100)
	fake := &fakeUploadAPI{failFirst: &api.StatusError{Code: http.StatusRequestEntityTooLarge}}
	u := NewUploader(fake, Options{ChunkRetries: 2, RetryDelay: time.Millisecond, Logger: logging.Discard()})

	_, err := u.Upload(context.Background(), path, nil)
	if !api.IsStatus(err, http.StatusRequestEntityTooLarge) {
		t.Fatalf("err = %v, want 413", err)
	}
}
