package ttsjob

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/triamed/voicefront/pkg/audio"
)

// ConcatConfig tunes the WAV joiner.
type ConcatConfig struct {
	// PauseHardMs is inserted after a sentence-final segment, PauseSoftMs
	// after every other segment.
	PauseHardMs int
	PauseSoftMs int

	// CrossfadeMs is the linear crossfade applied at each boundary.
	// Crossfading requires 16-bit PCM; other widths concatenate plainly.
	CrossfadeMs int
}

func (c *ConcatConfig) normalize() {
	if c.PauseHardMs <= 0 {
		c.PauseHardMs = 200
	}
	if c.PauseSoftMs <= 0 {
		c.PauseSoftMs = 120
	}
	if c.CrossfadeMs <= 0 {
		c.CrossfadeMs = 60
	}
}

// ConcatWAVs joins segment WAVs into one container: a pause from pausesMs is
// inserted at each boundary, then the running tail is crossfaded with the
// next segment's head. Segments whose format differs from the first are
// appended without crossfade. pausesMs has len(wavs)-1 entries.
func ConcatWAVs(wavs [][]byte, pausesMs []int, crossfadeMs int) ([]byte, error) {
	if len(wavs) == 0 {
		return nil, fmt.Errorf("ttsjob: no segments to concatenate")
	}

	format, out, err := audio.DecodeWAV(wavs[0])
	if err != nil {
		return nil, fmt.Errorf("ttsjob: decode first segment: %w", err)
	}
	out = append([]byte(nil), out...)

	for i := 1; i < len(wavs); i++ {
		f, pcm, err := audio.DecodeWAV(wavs[i])
		if err != nil {
			return nil, fmt.Errorf("ttsjob: decode segment %d: %w", i, err)
		}

		if i-1 < len(pausesMs) && pausesMs[i-1] > 0 {
			out = append(out, silenceFrames(format, pausesMs[i-1])...)
		}

		if f != format {
			slog.Warn("segment wav format mismatch, skipping crossfade",
				"segment", i, "first", format, "got", f)
			out = append(out, pcm...)
			continue
		}

		tail, head := crossfade(out, pcm, format, crossfadeMs)
		out = append(tail, head...)
	}

	return audio.WriteWAV(format, out), nil
}

// WAVDurationSeconds returns the playback length of a WAV container.
func WAVDurationSeconds(wav []byte) (float64, error) {
	f, pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return 0, err
	}
	frames := len(pcm) / f.BytesPerFrame()
	return float64(frames) / float64(f.SampleRate), nil
}

func silenceFrames(f audio.Format, ms int) []byte {
	frames := f.SampleRate * ms / 1000
	return make([]byte, frames*f.BytesPerFrame())
}

// crossfade mixes the last fade window of a with the first fade window of b
// using linear weights, consuming one window's worth of samples at the
// boundary. It returns a with the mixed window appended and b with its head
// removed. Inputs shorter than the window, non-16-bit PCM, or a
// non-positive fade leave both unchanged.
func crossfade(a, b []byte, f audio.Format, fadeMs int) ([]byte, []byte) {
	if fadeMs <= 0 || f.BitsPerSample != 16 {
		return a, b
	}
	fadeFrames := f.SampleRate * fadeMs / 1000
	fadeBytes := fadeFrames * f.BytesPerFrame()
	if fadeBytes <= 0 || len(a) < fadeBytes || len(b) < fadeBytes {
		return a, b
	}

	n := fadeBytes / 2
	mixed := make([]byte, fadeBytes)
	aTail := a[len(a)-fadeBytes:]
	bHead := b[:fadeBytes]
	for i := 0; i < n; i++ {
		sa := int16(binary.LittleEndian.Uint16(aTail[i*2:]))
		sb := int16(binary.LittleEndian.Uint16(bHead[i*2:]))

		wa, wb := 0.0, 1.0
		if n > 1 {
			wa = float64(n-1-i) / float64(n-1)
			wb = float64(i) / float64(n-1)
		}
		v := int(float64(sa)*wa + float64(sb)*wb)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(mixed[i*2:], uint16(int16(v)))
	}

	out := append(a[:len(a)-fadeBytes], mixed...)
	return out, b[fadeBytes:]
}
