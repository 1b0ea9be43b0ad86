package dispatch

import (
	log "log/slog"
	"sync/atomic"

	"friday/internal/audio"
)

// ampFrames keeps the microphone-to-loudspeaker latency around 60 ms.
const ampFrames = 1024

func (d *Dispatcher) handleAmp(action string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch action {
	case "enable":
		if d.amp != nil {
			select {
			case <-d.amp.done:
				// previous worker died on its own
				d.amp = nil
			default:
				return
			}
		}
		w := newWorker()
		d.amp = w
		capture, playback := d.reg.ActiveCapture(), d.reg.ActivePlayback()
		go func() {
			defer close(w.done)
			if err := d.ampRun(capture, playback, &w.stop); err != nil {
				log.Error("Voice amplifier failed", "err", err)
			}
		}()
		d.speaker.Say("Voice amplifier on.")
	case "disable":
		d.stopAmpLocked()
	default:
		log.Warn("Unknown voice amplifier action", "action", action)
	}
}

func (d *Dispatcher) stopAmpLocked() {
	if d.amp == nil {
		return
	}
	d.amp.halt()
	d.amp = nil
}

// passThrough copies microphone frames straight to the loudspeaker until
// stopped. It owns both endpoints; the caller snapshotted the active device
// names at start.
func passThrough(capture, playback string, stop *atomic.Bool) error {
	src, err := audio.OpenSourceFrames(capture, ampFrames)
	if err != nil {
		return err
	}
	defer src.Close()
	sink, err := audio.OpenSink(playback, audio.SampleRate, 1)
	if err != nil {
		return err
	}
	defer sink.Close()

	for !stop.Load() {
		frame, err := src.Read()
		if err != nil {
			return err
		}
		if err := sink.Write(frame); err != nil {
			return err
		}
	}
	return nil
}
