package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/logging"
)

// ValidationError wraps a failed pre-upload validation.
type ValidationError struct {
	Result Result
}

func (e *ValidationError) Error() string { return "validate upload: " + e.Result.Error }

// Progress reports bytes sent so far out of total.
type Progress func(sent, total int64)

// Options configure an Uploader. Zero values use defaults.
type Options struct {
	ChunkSize    int64
	Limits       Limits
	ChunkRetries int
	RetryDelay   time.Duration
	Logger       *log.Logger
}

// Uploader sends local files through the init, chunk, finalize contract.
type Uploader struct {
	api        api.UploadAPI
	chunkSize  int64
	limits     Limits
	retries    int
	retryDelay time.Duration
	logger     *log.Logger
}

// NewUploader returns an Uploader using client.
func NewUploader(client api.UploadAPI, opts Options) *Uploader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkSize < minChunkSize {
		opts.ChunkSize = minChunkSize
	}
	if opts.ChunkRetries < 0 {
		opts.ChunkRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &Uploader{
		api:        client,
		chunkSize:  opts.ChunkSize,
		limits:     opts.Limits,
		retries:    opts.ChunkRetries,
		retryDelay: opts.RetryDelay,
		logger:     logging.Component(opts.Logger, "upload"),
	}
}

// sessionChunkSize bounds the chunk size the server asked for to
// [minChunkSize, MaxSize], and never beyond the file itself.
func (u *Uploader) sessionChunkSize(requested, fileSize int64) int64 {
	size := requested
	if size <= 0 {
		size = u.chunkSize
	}
	size = max(size, minChunkSize)
	size = min(size, u.limits.withDefaults().MaxSize)
	if fileSize > 0 {
		size = min(size, fileSize)
	}
	return size
}

// Upload validates path and uploads it in chunks. onProgress may be nil.
// Validation failures are returned as *ValidationError before any request.
func (u *Uploader) Upload(ctx context.Context, path string, onProgress Progress) (api.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return api.UploadResult{}, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return api.UploadResult{}, fmt.Errorf("stat upload: %w", err)
	}
	if info.IsDir() {
		return api.UploadResult{}, fmt.Errorf("upload %s: is a directory", path)
	}

	name := filepath.Base(path)
	res := u.limits.ValidateFile(FileInfo{Name: name, Size: info.Size()})
	if !res.Valid {
		return api.UploadResult{}, &ValidationError{Result: res}
	}
	for _, w := range res.Warnings {
		u.logger.Warn("upload warning", "file", name, "warning", w)
	}

	session, err := u.api.InitUpload(ctx, api.InitUploadRequest{
		FileName:    name,
		FileSize:    info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		ChunkSize:   u.chunkSize,
	})
	if err != nil {
		return api.UploadResult{}, fmt.Errorf("init upload: %w", err)
	}
	total := info.Size()
	chunkSize := u.sessionChunkSize(session.ChunkSize, total)
	u.logger.Debug("upload session opened", "upload_id", session.UploadID, "chunk_size", chunkSize)

	var sent int64
	if onProgress != nil {
		onProgress(0, total)
	}

	buf := make([]byte, chunkSize)
	for index := 0; ; index++ {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			if err := u.sendChunk(ctx, session.UploadID, index, buf[:n]); err != nil {
				return api.UploadResult{}, err
			}
			sent += int64(n)
			if onProgress != nil {
				onProgress(sent, total)
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return api.UploadResult{}, fmt.Errorf("read upload: %w", readErr)
		}
	}

	result, err := u.api.FinalizeUpload(ctx, session.UploadID)
	if err != nil {
		return api.UploadResult{}, fmt.Errorf("finalize upload: %w", err)
	}
	if result.UploadID == "" {
		result.UploadID = session.UploadID
	}
	return result, nil
}

func (u *Uploader) sendChunk(ctx context.Context, uploadID string, index int, data []byte) error {
	var err error
	for attempt := 0; attempt <= u.retries; attempt++ {
		if attempt > 0 {
			u.logger.Warn("retrying chunk", "upload_id", uploadID, "index", index, "attempt", attempt, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.retryDelay):
			}
		}
		_, err = u.api.UploadChunk(ctx, uploadID, index, data)
		if err == nil || !retryable(ctx, err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("upload chunk %d: %w", index, err)
	}
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, api.ErrCircuitOpen) {
		return false
	}
	var se *api.StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	return true
}
