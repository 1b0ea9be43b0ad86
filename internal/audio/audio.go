// Package audio owns the capture and playback endpoints: portaudio stream
// wrappers, the RMS loudness estimator and the registry of configured
// devices.
package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate is the capture rate shared by the recognizer and the
	// loudness gate.
	SampleRate = 16000

	// FrameDuration is how much audio one state-machine iteration consumes.
	FrameDuration = 500 * time.Millisecond

	// FrameSamples is FrameDuration worth of mono samples.
	FrameSamples = SampleRate / 2

	// CalibrateDuration is the ambient-noise bootstrap recording length.
	CalibrateDuration = 3 * time.Second
)

// Init must be called once before any stream is opened.
func Init() error {
	return portaudio.Initialize()
}

// Terminate releases the audio backend. Streams must be closed first.
func Terminate() {
	portaudio.Terminate()
}

// findDevice resolves a backend identifier to a portaudio device, matching
// exactly first and then by case-insensitive substring. An empty name means
// the system default for the wanted direction.
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	usable := func(d *portaudio.DeviceInfo) bool {
		if input {
			return d.MaxInputChannels > 0
		}
		return d.MaxOutputChannels > 0
	}
	for _, d := range devices {
		if usable(d) && d.Name == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if usable(d) && strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
			return d, nil
		}
	}
	direction := "playback"
	if input {
		direction = "capture"
	}
	return nil, fmt.Errorf("no %s device matches %q", direction, name)
}
