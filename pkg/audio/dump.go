package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Dumper persists audit WAVs (wake windows, finalized utterances, enrollment
// samples) under a single directory. A disabled Dumper drops every Save
// without touching the filesystem, so production can switch dumps off with
// no behavior change elsewhere.
//
// The zero value is a disabled Dumper.
type Dumper struct {
	dir     string
	enabled bool
}

// NewDumper returns a Dumper writing into dir. When enabled is false the
// returned Dumper discards all saves.
func NewDumper(dir string, enabled bool) *Dumper {
	return &Dumper{dir: dir, enabled: enabled}
}

// Enabled reports whether saves are persisted.
func (d *Dumper) Enabled() bool { return d != nil && d.enabled }

// Save writes samples as a 16 kHz mono 16-bit WAV named
// <prefix>_<yyyyMMdd_HHmmss_mmm>.wav and returns the full path. When the
// Dumper is disabled it returns an empty path and no error.
func (d *Dumper) Save(prefix string, samples []float32) (string, error) {
	if !d.Enabled() {
		return "", nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("audio: create dump dir: %w", err)
	}
	path := filepath.Join(d.dir, prefix+"_"+Timestamp(time.Now())+".wav")
	if err := os.WriteFile(path, EncodeWAV16(samples, PipelineRate), 0o644); err != nil {
		return "", fmt.Errorf("audio: write dump: %w", err)
	}
	return path, nil
}

// SaveWAV writes samples to path as a 16 kHz mono 16-bit WAV, creating the
// parent directory if needed.
func SaveWAV(path string, samples []float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audio: create dir: %w", err)
	}
	if err := os.WriteFile(path, EncodeWAV16(samples, PipelineRate), 0o644); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	return nil
}

// Timestamp formats t as yyyyMMdd_HHmmss_mmm for audit filenames.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/1e6)
}
