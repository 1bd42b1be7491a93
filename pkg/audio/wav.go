// Package audio decodes and encodes the WAV payloads flowing through the
// voice pipeline.
//
// Ingress chunks arrive as WAV containers of arbitrary sample rate, channel
// count, and PCM width; [DecodeToMono16k] converts them to the pipeline's
// canonical form: 16 kHz mono float32 samples in [-1, 1]. Egress WAVs for
// model ingestion and audit dumps are written with [EncodeWAV16]: 16 kHz
// mono signed 16-bit little-endian PCM with no normalization, so the
// measured peak of the signal survives the round trip.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PipelineRate is the canonical sample rate of all audio inside a session.
const PipelineRate = 16000

// Format describes the PCM layout of a WAV payload.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BytesPerFrame returns the byte size of one multi-channel sample frame.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// DecodeWAV parses a RIFF/WAVE container and returns its format and raw PCM
// payload. Only uncompressed PCM (format tag 1, widths 8/16/32) is accepted.
func DecodeWAV(data []byte) (Format, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, fmt.Errorf("audio: not a RIFF/WAVE container")
	}

	var f Format
	var pcm []byte
	sawFmt := false

	// Chunk walk. Chunks are word-aligned; a malformed size past the buffer
	// ends the walk with an error.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return Format{}, nil, fmt.Errorf("audio: chunk %q exceeds container", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return Format{}, nil, fmt.Errorf("audio: unsupported format tag %d (PCM only)", audioFormat)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			sawFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // pad byte
		}
	}

	if !sawFmt {
		return Format{}, nil, fmt.Errorf("audio: missing fmt chunk")
	}
	if pcm == nil {
		return Format{}, nil, fmt.Errorf("audio: missing data chunk")
	}
	if f.Channels <= 0 || f.SampleRate <= 0 {
		return Format{}, nil, fmt.Errorf("audio: invalid format %dHz/%dch", f.SampleRate, f.Channels)
	}
	switch f.BitsPerSample {
	case 8, 16, 32:
	default:
		return Format{}, nil, fmt.Errorf("audio: unsupported sample width %d bits", f.BitsPerSample)
	}
	return f, pcm, nil
}

// ToFloat32Mono converts raw PCM to float32 samples in [-1, 1] and downmixes
// multi-channel audio by channel mean. uint8 samples use offset-binary with
// a 128 bias; int16 and int32 divide by their full-scale constants.
func ToFloat32Mono(f Format, pcm []byte) ([]float32, error) {
	frameBytes := f.BytesPerFrame()
	if frameBytes == 0 || len(pcm)%frameBytes != 0 {
		return nil, fmt.Errorf("audio: PCM length %d not aligned to %d-byte frames", len(pcm), frameBytes)
	}
	frames := len(pcm) / frameBytes
	out := make([]float32, frames)

	sampleBytes := f.BitsPerSample / 8
	for i := range frames {
		var sum float64
		base := i * frameBytes
		for ch := range f.Channels {
			off := base + ch*sampleBytes
			switch f.BitsPerSample {
			case 8:
				sum += (float64(pcm[off]) - 128) / 128
			case 16:
				s := int16(binary.LittleEndian.Uint16(pcm[off:]))
				sum += float64(s) / 32768.0
			case 32:
				s := int32(binary.LittleEndian.Uint32(pcm[off:]))
				sum += float64(s) / 2147483648.0
			}
		}
		out[i] = float32(sum / float64(f.Channels))
	}
	return out, nil
}

// DecodeToMono16k decodes a WAV container into the pipeline's canonical
// 16 kHz mono float32 form.
func DecodeToMono16k(data []byte) ([]float32, error) {
	f, pcm, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	samples, err := ToFloat32Mono(f, pcm)
	if err != nil {
		return nil, err
	}
	return Resample(samples, f.SampleRate, PipelineRate), nil
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Returns the input unchanged when the rates match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// EncodeWAV16 writes float32 samples as a mono 16-bit little-endian PCM WAV.
// Samples are clamped to [-1, 1] and scaled by 32767. No normalization or
// gain is applied.
func EncodeWAV16(samples []float32, sampleRate int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(math.Round(float64(clamp(s)) * 32767))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return WriteWAV(Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}, pcm)
}

// WriteWAV wraps raw PCM bytes in a RIFF/WAVE container with the given format.
func WriteWAV(f Format, pcm []byte) []byte {
	blockAlign := f.BytesPerFrame()
	byteRate := f.SampleRate * blockAlign

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(f.BitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
