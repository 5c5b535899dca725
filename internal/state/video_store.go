package state

import (
	"slices"

	"github.com/charmbracelet/log"

	"github.com/five82/reel/internal/api"
)

// VideoSource identifies the video being processed: a local file or a URL.
type VideoSource struct {
	Name string
	Path string
	URL  string
	Size int64
}

// IsZero reports whether no video is selected.
func (v VideoSource) IsZero() bool { return v == VideoSource{} }

// VideoState tracks the current video through upload and processing.
type VideoState struct {
	Current            VideoSource
	IsUploading        bool
	UploadProgress     float64
	UploadError        string
	JobID              string
	IsProcessing       bool
	ProcessingProgress float64
	ProcessingStage    string
	ProcessingError    string
	Clips              []api.Clip
}

// VideoStore owns VideoState. Nothing in it is persisted.
type VideoStore struct {
	*Store[VideoState]
}

// NewVideoStore creates an empty VideoStore.
func NewVideoStore(logger *log.Logger) *VideoStore {
	return &VideoStore{Store: NewStore("video", VideoState{}, nil, logger)}
}

// SetCurrentVideo selects src and clears upload and processing results
// from any previous video.
func (s *VideoStore) SetCurrentVideo(src VideoSource) {
	s.SetState(func(st *VideoState) {
		*st = VideoState{Current: src}
	})
}

func (s *VideoStore) SetUploading(uploading bool) {
	s.SetState(func(st *VideoState) {
		st.IsUploading = uploading
		if uploading {
			st.UploadProgress = 0
			st.UploadError = ""
		}
	})
}

// SetUploadProgress records upload progress as a percentage clamped to 0–100.
func (s *VideoStore) SetUploadProgress(pct float64) {
	s.SetState(func(st *VideoState) { st.UploadProgress = clampPercent(pct) })
}

// SetUploadError records an upload failure and stops the upload.
func (s *VideoStore) SetUploadError(msg string) {
	s.SetState(func(st *VideoState) {
		st.UploadError = msg
		if msg != "" {
			st.IsUploading = false
		}
	})
}

func (s *VideoStore) SetJobID(id string) {
	s.SetState(func(st *VideoState) { st.JobID = id })
}

// SetIsProcessing toggles processing. Starting resets progress and error;
// clips are left alone so results set just before stopping survive.
func (s *VideoStore) SetIsProcessing(processing bool) {
	s.SetState(func(st *VideoState) {
		st.IsProcessing = processing
		if processing {
			st.ProcessingProgress = 0
			st.ProcessingStage = ""
			st.ProcessingError = ""
		}
	})
}

// UpdateProcessingProgress records progress and, when non-empty, the stage.
func (s *VideoStore) UpdateProcessingProgress(pct float64, stage string) {
	s.SetState(func(st *VideoState) {
		st.ProcessingProgress = clampPercent(pct)
		if stage != "" {
			st.ProcessingStage = stage
		}
	})
}

// SetProcessingError records a processing failure and ends processing in
// the same change.
func (s *VideoStore) SetProcessingError(msg string) {
	s.SetState(func(st *VideoState) {
		st.ProcessingError = msg
		if msg != "" {
			st.IsProcessing = false
		}
	})
}

func (s *VideoStore) SetClips(clips []api.Clip) {
	s.SetState(func(st *VideoState) { st.Clips = slices.Clone(clips) })
}

// Reset clears everything.
func (s *VideoStore) Reset() {
	s.SetState(func(st *VideoState) { *st = VideoState{} })
}

func clampPercent(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
