package audio

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"not riff", make([]byte, 64)},
		{"truncated chunk", WriteWAV(Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, make([]byte, 32))[:40]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tc.data); err == nil {
				t.Fatalf("DecodeWAV(%q) succeeded, want error", tc.name)
			}
		})
	}
}

func TestDecodeWAVRejectsUnsupportedWidth(t *testing.T) {
	wav := WriteWAV(Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, make([]byte, 8))
	wav[34] = 24 // fake a 24-bit width
	if _, _, err := DecodeWAV(wav); err == nil {
		t.Fatal("expected error for 24-bit PCM")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1, 0.123, -0.987}
	wav := EncodeWAV16(in, PipelineRate)

	out, err := DecodeToMono16k(wav)
	if err != nil {
		t.Fatalf("DecodeToMono16k: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d samples, want %d", len(out), len(in))
	}
	for i := range in {
		// The only loss allowed is the round(x*32767) quantization step.
		want := float32(math.Round(float64(in[i])*32767)) / 32768.0
		if math.Abs(float64(out[i]-want)) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], want)
		}
	}
}

func TestEncodeWAV16ClampsWithoutNormalizing(t *testing.T) {
	wav := EncodeWAV16([]float32{2.0, -2.0, 0.25}, PipelineRate)
	out, err := DecodeToMono16k(wav)
	if err != nil {
		t.Fatalf("DecodeToMono16k: %v", err)
	}
	if out[0] < 0.99 || out[1] > -0.99 {
		t.Errorf("out-of-range samples not clamped to full scale: %v", out[:2])
	}
	// A quiet sample must stay quiet: no AGC, no peak normalization.
	if math.Abs(float64(out[2]-0.25)) > 0.001 {
		t.Errorf("quiet sample rescaled: got %v, want 0.25", out[2])
	}
}

func TestToFloat32MonoDownmixesByMean(t *testing.T) {
	// Stereo 16-bit: L=16384 (0.5), R=-16384 (-0.5) must average to 0.
	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	out, err := ToFloat32Mono(Format{SampleRate: 16000, Channels: 2, BitsPerSample: 16}, pcm)
	if err != nil {
		t.Fatalf("ToFloat32Mono: %v", err)
	}
	if len(out) != 1 || math.Abs(float64(out[0])) > 1e-6 {
		t.Fatalf("downmix got %v, want [0]", out)
	}
}

func TestToFloat32MonoUint8Bias(t *testing.T) {
	out, err := ToFloat32Mono(Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}, []byte{128, 255, 0})
	if err != nil {
		t.Fatalf("ToFloat32Mono: %v", err)
	}
	if out[0] != 0 {
		t.Errorf("bias sample: got %v, want 0", out[0])
	}
	if out[1] <= 0 || out[2] >= 0 {
		t.Errorf("uint8 polarity wrong: %v", out)
	}
}

func TestResample(t *testing.T) {
	src := make([]float32, 8000)
	for i := range src {
		src[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 8000))
	}

	up := Resample(src, 8000, 16000)
	if got, want := len(up), 16000; got != want {
		t.Errorf("upsample length: got %d, want %d", got, want)
	}
	down := Resample(src, 8000, 4000)
	if got, want := len(down), 4000; got != want {
		t.Errorf("downsample length: got %d, want %d", got, want)
	}
	same := Resample(src, 8000, 8000)
	if &same[0] != &src[0] {
		t.Error("equal-rate resample should return the input unchanged")
	}
}

func TestDumperDisabledWritesNothing(t *testing.T) {
	d := NewDumper(t.TempDir(), false)
	path, err := d.Save("kws", []float32{0.1, 0.2})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path != "" {
		t.Errorf("disabled dumper returned path %q", path)
	}
}

func TestDumperFilename(t *testing.T) {
	d := NewDumper(t.TempDir(), true)
	path, err := d.Save("final", make([]float32, 160))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.Contains(path, "final_") || !strings.HasSuffix(path, ".wav") {
		t.Errorf("unexpected dump path %q", path)
	}
}

func TestTimestampFormat(t *testing.T) {
	ts := Timestamp(time.Date(2026, 8, 25, 13, 4, 5, 42_000_000, time.UTC))
	if ts != "20260825_130405_042" {
		t.Errorf("Timestamp = %q, want 20260825_130405_042", ts)
	}
}
