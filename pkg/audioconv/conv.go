// Package audioconv decodes common audio containers into mono 16-bit PCM at a
// caller-chosen sample rate, ready to be written to a playback stream.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const opusRate = 48000

// DecodeFile reads a .wav, .mp3 or .ogg/.oga file and returns mono int16
// samples at targetRate. Files with an unknown extension are sniffed by their
// magic bytes. Ogg containers are tried as Vorbis first, then as Opus.
func DecodeFile(path string, targetRate int) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return DecodeWAV(f, targetRate)
	case ".mp3":
		return decodeMP3(f, targetRate)
	case ".ogg", ".oga":
		return decodeOgg(f, targetRate)
	default:
		br := bufio.NewReader(f)
		magic, _ := br.Peek(4)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		switch string(magic) {
		case "RIFF":
			return DecodeWAV(f, targetRate)
		case "OggS":
			return decodeOgg(f, targetRate)
		}
		return nil, fmt.Errorf("unsupported audio format: %s", path)
	}
}

// DecodeWAV decodes a RIFF/WAVE stream (any bit depth go-audio handles) into
// mono int16 samples at targetRate.
func DecodeWAV(r io.ReadSeeker, targetRate int) ([]int16, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav stream")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav stream")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	x := intsToFloat32(pb.Data, depth)

	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}
	return finish(x, channels, rate, targetRate), nil
}

func decodeMP3(r io.Reader, targetRate int) ([]int16, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	// go-mp3 always emits interleaved stereo
	x := ToFloat32(ints)
	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	return finish(x, 2, rate, targetRate), nil
}

func decodeOgg(f *os.File, targetRate int) ([]int16, error) {
	if out, err := decodeVorbis(f, targetRate); err == nil {
		return out, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	out, err := decodeOpus(f, targetRate)
	if err != nil {
		return nil, fmt.Errorf("ogg container is neither vorbis nor opus: %w", err)
	}
	return out, nil
}

func decodeVorbis(r io.Reader, targetRate int) ([]int16, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid vorbis stream")
	}
	return finish(pcm, format.Channels, format.SampleRate, targetRate), nil
}

func decodeOpus(rs io.ReadSeeker, targetRate int) ([]int16, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var pcm []float32
	buf := make([]int16, opusRate*channels/2) // ~0.5s per read
	for {
		n, err := dec.Read(buf) // n = samples per channel
		if n > 0 {
			pcm = append(pcm, ToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm) == 0 {
		return nil, errors.New("empty opus stream")
	}
	return finish(pcm, channels, opusRate, targetRate), nil
}

// finish runs the common tail of every decoder: downmix, resample, quantize.
func finish(x []float32, channels, rate, targetRate int) []int16 {
	if channels > 1 {
		x = Downmix(x, channels)
	}
	if rate != targetRate {
		x = Resample(x, rate, targetRate)
	}
	return ToInt16(x)
}

// Downmix averages interleaved multi-channel samples into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts between sample rates by linear interpolation. Good enough
// for speech and cue sounds; music keeps its native rate elsewhere.
func Resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}

// ToFloat32 maps int16 samples onto [-1, 1).
func ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// ToInt16 quantizes float samples back to 16-bit PCM.
func ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		out[i] = Clamp16(float64(v) * 32767.0)
	}
	return out
}

// Clamp16 rounds v to the nearest integer and clamps it to int16 bounds.
func Clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		f := float64(v) * scale
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = float32(f)
	}
	return out
}
