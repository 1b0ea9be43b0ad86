package audioconv

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, path string, rate, channels int, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func sineInts(rate, channels int, seconds, freq float64) []int {
	frames := int(float64(rate) * seconds)
	out := make([]int, 0, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(12000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			out = append(out, v)
		}
	}
	return out
}

func TestDecodeFileStereoWAVDownmixAndResample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 44100, 2, sineInts(44100, 2, 0.25, 440))

	got, err := DecodeFile(path, 16000)
	require.NoError(t, err)

	want := int(0.25 * 16000)
	assert.InDelta(t, want, len(got), 2)

	var peak int16
	for _, s := range got {
		if s > peak {
			peak = s
		}
	}
	assert.Greater(t, peak, int16(8000), "signal should survive downmix and resample")
}

func TestDecodeWAVMonoSameRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	src := sineInts(16000, 1, 0.1, 200)
	writeWAV(t, path, 16000, 1, src)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := DecodeWAV(f, 16000)
	require.NoError(t, err)
	require.Len(t, got, len(src))
	for i := range src {
		assert.InDelta(t, src[i], got[i], 1, "sample %d", i)
	}
}

func TestDecodeFileSniffsRIFFWithoutExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mystery.dat")
	writeWAV(t, path, 16000, 1, sineInts(16000, 1, 0.05, 200))

	got, err := DecodeFile(path, 16000)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestDecodeFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.dat")
	require.NoError(t, os.WriteFile(path, []byte("not audio at all"), 0o644))

	_, err := DecodeFile(path, 16000)
	assert.ErrorContains(t, err, "unsupported audio format")
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "nope.wav"), 16000)
	assert.Error(t, err)
}

func TestDownmix(t *testing.T) {
	in := []float32{0.2, 0.4, -0.5, -0.1}
	out := Downmix(in, 2)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.3, out[0], 1e-6)
	assert.InDelta(t, -0.3, out[1], 1e-6)

	mono := []float32{0.1, 0.2}
	assert.Equal(t, mono, Downmix(mono, 1))
}

func TestResampleLengths(t *testing.T) {
	in := make([]float32, 16000)
	assert.Len(t, Resample(in, 16000, 48000), 48000)
	assert.Len(t, Resample(in, 16000, 8000), 8000)
	assert.Len(t, Resample(in, 16000, 16000), 16000)
	assert.Empty(t, Resample(nil, 16000, 8000))
}

func TestResampleInterpolates(t *testing.T) {
	in := []float32{0, 1}
	out := Resample(in, 1, 4)
	require.Len(t, out, 8)
	assert.InDelta(t, 0.25, out[1], 1e-6)
	assert.InDelta(t, 0.5, out[2], 1e-6)
	// past the last source sample the tail holds its value
	assert.InDelta(t, 1.0, out[7], 1e-6)
}

func TestClamp16(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), Clamp16(1e9))
	assert.Equal(t, int16(math.MinInt16), Clamp16(-1e9))
	assert.Equal(t, int16(100), Clamp16(99.7))
	assert.Equal(t, int16(-100), Clamp16(-99.7))
}

func TestInt16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 12000, -12000, math.MaxInt16, math.MinInt16}
	out := ToInt16(ToFloat32(in))
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1, "sample %d", i)
	}
}
