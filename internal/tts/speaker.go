// Package tts renders text to speech. An espeak-ng subprocess synthesizes
// WAV, which is decoded and written to the assistant's playback device, so
// speech obeys the same device selection and volume as everything else.
package tts

import (
	"bytes"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"sync/atomic"

	"friday/pkg/audioconv"
)

// Sink is the playback endpoint speech is written to.
type Sink interface {
	Write(pcm []int16) error
}

// Ducker lowers competing audio while a line plays and restores it after.
type Ducker interface {
	Duck()
	Restore()
}

// Speaker owns the playback queue. A single worker renders and plays one
// entry at a time, so speech never overlaps itself and nothing else writes
// the sink concurrently.
type Speaker struct {
	bin   string
	voice string
	sink  Sink
	rate  int
	duck  Ducker

	queue    chan item
	done     chan struct{}
	speaking atomic.Bool
}

// item is one queue entry: a line to synthesize, or ready PCM such as the
// acknowledgement cue.
type item struct {
	text string
	pcm  []int16
}

// NewSpeaker starts the speech worker. duck may be nil when there is
// nothing to fade.
func NewSpeaker(bin, voice string, sink Sink, rate int, duck Ducker) *Speaker {
	s := &Speaker{
		bin:   bin,
		voice: voice,
		sink:  sink,
		rate:  rate,
		duck:  duck,
		queue: make(chan item, 16),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

// Say enqueues a line. A full queue drops the line instead of stalling the
// caller; the dispatcher must never block on speech.
func (s *Speaker) Say(text string) {
	if text == "" {
		return
	}
	select {
	case s.queue <- item{text: text}:
	default:
		log.Warn("Speech queue full, dropping line", "text", text)
	}
}

// Play enqueues already-decoded PCM. It shares the speech queue, so cues
// and spoken lines come out in order and never write the sink at once.
func (s *Speaker) Play(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	select {
	case s.queue <- item{pcm: pcm}:
	default:
		log.Warn("Speech queue full, dropping cue")
	}
}

// Speaking reports whether a line is being rendered or played right now.
// The listener checks it to avoid transcribing the assistant's own voice.
func (s *Speaker) Speaking() bool {
	return s.speaking.Load()
}

// Close drains queued speech, waits for the last line to finish and stops
// the worker.
func (s *Speaker) Close() {
	close(s.queue)
	<-s.done
}

func (s *Speaker) worker() {
	defer close(s.done)
	for it := range s.queue {
		s.speaking.Store(true)
		if s.duck != nil {
			s.duck.Duck()
		}
		if err := s.play(it); err != nil {
			log.Error("Speech failed", "err", err)
		}
		if s.duck != nil {
			s.duck.Restore()
		}
		s.speaking.Store(false)
	}
}

func (s *Speaker) play(it item) error {
	if it.pcm != nil {
		return s.sink.Write(it.pcm)
	}
	return s.speak(it.text)
}

// speak renders one line to a temporary WAV and plays it to the sink.
func (s *Speaker) speak(text string) error {
	f, err := os.CreateTemp("", "friday-tts-*.wav")
	if err != nil {
		return err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	cmd := exec.Command(s.bin, "-v", s.voice, "-w", path, text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", s.bin, err, bytes.TrimSpace(out))
	}

	pcm, err := audioconv.DecodeFile(path, s.rate)
	if err != nil {
		return fmt.Errorf("decode speech: %w", err)
	}
	return s.sink.Write(pcm)
}
