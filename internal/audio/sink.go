package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// sinkFrames is the playback chunk size in frames. Small enough that gain
// changes land within a tenth of a second at music rates.
const sinkFrames = 2048

// Sink is a playback stream at an arbitrary rate and channel count. Music
// plays at the file's native stereo rate; speech and cues are mono 16 kHz.
type Sink struct {
	name     string
	channels int
	stream   *portaudio.Stream
	buf      []int16
}

// OpenSink opens and starts a playback stream on the named backend device.
func OpenSink(name string, rate, channels int) (*Sink, error) {
	dev, err := findDevice(name, false)
	if err != nil {
		return nil, err
	}
	buf := make([]int16, sinkFrames*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: sinkFrames,
	}, buf)
	if err != nil {
		return nil, fmt.Errorf("open playback %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start playback %q: %w", dev.Name, err)
	}
	return &Sink{name: name, channels: channels, stream: stream, buf: buf}, nil
}

// Write plays pcm to completion, blocking until the device accepted it all.
// The final chunk is padded with silence. Underflows are not errors; the
// device just went briefly hungry between chunks.
func (s *Sink) Write(pcm []int16) error {
	for off := 0; off < len(pcm); off += len(s.buf) {
		n := copy(s.buf, pcm[off:])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return fmt.Errorf("write playback: %w", err)
		}
	}
	return nil
}

// Name returns the backend identifier the sink was opened with.
func (s *Sink) Name() string { return s.name }

func (s *Sink) Close() error {
	s.stream.Stop()
	return s.stream.Close()
}
