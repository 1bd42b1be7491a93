package ttsjob

import "time"

// Status is the lifecycle state of a synthesis job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Terminal reports whether the job can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// SegmentTiming records one segment's synthesis cost.
type SegmentTiming struct {
	Index int    `json:"index"`
	Text  string `json:"text"`

	// WallMs is the wall-clock synthesis time attributed to the segment.
	// Segments synthesized in one batch call share its wall time evenly,
	// so WallMs (and the RTF derived from it) is an approximation there.
	WallMs          float64 `json:"wall_ms"`
	DurationSeconds float64 `json:"duration_seconds"`

	// RTF is wall time over audio duration. Below 1.0 means faster than
	// real time.
	RTF float64 `json:"rtf"`
}

// Timing breaks a completed job's wall time into stages.
type Timing struct {
	QueueMs     float64         `json:"queue_ms"`
	LoadMs      float64         `json:"load_ms"`
	SynthesisMs float64         `json:"synthesis_ms"`
	ConcatMs    float64         `json:"concat_ms"`
	TotalMs     float64         `json:"total_ms"`
	Segments    []SegmentTiming `json:"segments,omitempty"`
}

// Result holds a completed job's audio.
type Result struct {
	WAV         []byte
	AudioBase64 string
	AudioSize   int
}

// Job is one synthesis request tracked by the Manager.
type Job struct {
	ID        string
	Status    Status
	Text      string
	Voice     string
	CreatedAt time.Time

	Result *Result
	Err    string
	Timing Timing
}

// Snapshot is the client-facing projection of a job's current state.
type Snapshot struct {
	JobID       string  `json:"job_id"`
	Status      Status  `json:"status"`
	AudioBase64 string  `json:"audio_base64,omitempty"`
	AudioSize   int     `json:"audio_size,omitempty"`
	Error       string  `json:"error,omitempty"`
	Timing      *Timing `json:"timing,omitempty"`
}
