package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Source is a mono 16 kHz capture stream delivering half-second frames.
type Source struct {
	name   string
	stream *portaudio.Stream
	buf    []int16
}

// OpenSource opens and starts a capture stream on the named backend device,
// delivering the half-second frames the listener consumes.
func OpenSource(name string) (*Source, error) {
	return OpenSourceFrames(name, FrameSamples)
}

// OpenSourceFrames opens a capture stream with a caller-chosen frame size.
// The voice amplifier uses small frames to keep its pass-through latency
// down.
func OpenSourceFrames(name string, frames int) (*Source, error) {
	dev, err := findDevice(name, true)
	if err != nil {
		return nil, err
	}
	buf := make([]int16, frames)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultHighInputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: frames,
	}, buf)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start capture %q: %w", dev.Name, err)
	}
	return &Source{name: name, stream: stream, buf: buf}, nil
}

// Read blocks until the next frame is captured and returns a copy of it.
// An input overflow only means samples were dropped while we were busy, so
// the frame is still returned.
func (s *Source) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

// Flush drops whatever the device buffered while the assistant was talking
// so the next Read hears only what follows.
func (s *Source) Flush() error {
	if err := s.stream.Abort(); err != nil {
		return fmt.Errorf("flush capture: %w", err)
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("restart capture: %w", err)
	}
	return nil
}

// Name returns the backend identifier the source was opened with.
func (s *Source) Name() string { return s.name }

func (s *Source) Close() error {
	s.stream.Abort()
	return s.stream.Close()
}
