// Package upload validates local files and URLs before they are sent to the
// clip service and performs chunked uploads.
package upload

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	defaultMaxSize   int64 = 2 << 30
	defaultWarnSize  int64 = 500 << 20
	defaultChunkSize int64 = 5 << 20
	minChunkSize     int64 = 64 << 10
)

var defaultExtensions = []string{".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v"}

// FileInfo describes a candidate upload.
type FileInfo struct {
	Name string
	Size int64
}

// Result is the outcome of a validation. Error is empty when Valid.
type Result struct {
	Valid    bool
	Error    string
	Warnings []string
}

func invalid(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Limits bound what ValidateFile accepts. Zero values use defaults.
type Limits struct {
	MaxSize    int64
	WarnSize   int64
	Extensions []string
}

func (l Limits) withDefaults() Limits {
	if l.MaxSize <= 0 {
		l.MaxSize = defaultMaxSize
	}
	if l.WarnSize <= 0 {
		l.WarnSize = defaultWarnSize
	}
	if len(l.Extensions) == 0 {
		l.Extensions = defaultExtensions
	}
	return l
}

// ValidateFile checks info against the default limits.
func ValidateFile(info FileInfo) Result {
	return Limits{}.ValidateFile(info)
}

// ValidateFile rejects empty or oversized files and unsupported extensions.
// A file of exactly MaxSize is accepted.
func (l Limits) ValidateFile(info FileInfo) Result {
	l = l.withDefaults()

	if strings.TrimSpace(info.Name) == "" {
		return invalid("file name is required")
	}
	ext := strings.ToLower(filepath.Ext(info.Name))
	if !slices.Contains(l.Extensions, ext) {
		return invalid("unsupported file type %q (allowed: %s)", ext, strings.Join(l.Extensions, ", "))
	}
	if info.Size <= 0 {
		return invalid("file size too small: %d bytes", info.Size)
	}
	if info.Size > l.MaxSize {
		return invalid("file size too large: %s exceeds %s", formatBytes(info.Size), formatBytes(l.MaxSize))
	}

	res := Result{Valid: true}
	if info.Size > l.WarnSize {
		res.Warnings = append(res.Warnings, fmt.Sprintf("large file (%s); upload may take a while", formatBytes(info.Size)))
	}
	if ext == ".avi" {
		res.Warnings = append(res.Warnings, "avi files are transcoded before processing")
	}
	return res
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateURL accepts absolute http and https URLs.
func ValidateURL(raw string) Result {
	raw = strings.TrimSpace(raw)
	if err := validate.Var(raw, "required,url"); err != nil {
		return invalid("invalid video url %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("invalid video url %q: %v", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return invalid("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return invalid("video url %q has no host", raw)
	}

	res := Result{Valid: true}
	if strings.EqualFold(u.Scheme, "http") {
		res.Warnings = append(res.Warnings, "url is not encrypted (http)")
	}
	return res
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
