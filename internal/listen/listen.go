// Package listen runs the four-state loop at the heart of the assistant:
// wait for sound, listen for the wake phrase, record the command, dispatch
// it. Loudness against the ambient baseline decides when someone is talking;
// silence or a stalled transcript decides when they stopped.
package listen

import (
	"context"
	log "log/slog"
	"strings"
	"time"

	"friday/internal/audio"
	"friday/internal/catalog"
)

// State of the listening loop.
type State int

const (
	// Silence waits for a loud frame.
	Silence State = iota
	// WakewordListen transcribes until the utterance ends, then looks for
	// a wake or goodbye phrase.
	WakewordListen
	// CommandRecording transcribes until the utterance ends and takes the
	// whole transcript as the command.
	CommandRecording
	// ProcessCommand matches and dispatches one command, then falls back
	// to Silence.
	ProcessCommand
)

const (
	// TalkingOffset sits on top of the ambient baseline; frames at or
	// above baseline+offset count as speech. Normalized RMS units.
	TalkingOffset = 0.015

	// timeoutFrames of quiet or transcript stasis end an utterance. At
	// half a second a frame that is two seconds of not talking.
	timeoutFrames = 4

	chatTimeout = 60 * time.Second
)

// Default spoken responses.
const (
	DefaultFarewell = "Goodbye sir."
	DefaultApology  = "I'm sorry but I'm currently unavailable boss."
)

// Source yields capture frames. *audio.Source satisfies it.
type Source interface {
	Read() ([]int16, error)
	Flush() error
	Close() error
}

// Recognizer is the incremental speech-to-text contract.
type Recognizer interface {
	Accept(frame []int16)
	Partial() string
	Final() string
	Reset()
}

// Speaker voices responses. Speaking reports whether the assistant is
// talking right now, so the loop can drop frames of its own voice.
type Speaker interface {
	Say(text string)
	Speaking() bool
}

// Publisher sends matched command payloads onto the bus.
type Publisher interface {
	Publish(topic, payload string)
}

// Chat is the conversational fallback for transcripts that match nothing.
type Chat interface {
	Chat(ctx context.Context, text string) (string, error)
}

type Deps struct {
	Source     Source
	Reopen     func() (Source, error)
	Recognizer Recognizer
	Speaker    Speaker
	Publisher  Publisher
	Chat       Chat
	Catalog    *catalog.Catalog

	// Acknowledge is called when a bare wake phrase arms the assistant.
	// Optional.
	Acknowledge func()
}

type Config struct {
	WakePhrases    []string
	GoodbyePhrases []string
	Ignore         []string

	// Baseline is the ambient RMS from startup calibration.
	Baseline float64

	Farewell string
	Apology  string
}

type Listener struct {
	src  Source
	deps Deps
	cfg  Config

	threshold float64

	state            State
	nextAfterSilence State
	timeouts         int
	lastPartial      int
}

func New(deps Deps, cfg Config) *Listener {
	if cfg.Farewell == "" {
		cfg.Farewell = DefaultFarewell
	}
	if cfg.Apology == "" {
		cfg.Apology = DefaultApology
	}
	return &Listener{
		src:              deps.Source,
		deps:             deps,
		cfg:              cfg,
		threshold:        cfg.Baseline + TalkingOffset,
		state:            Silence,
		nextAfterSilence: WakewordListen,
	}
}

// State returns the loop's current state.
func (l *Listener) State() State { return l.state }

// Run drives the loop until a goodbye phrase, context cancellation or an
// unrecoverable capture failure. A goodbye or cancellation returns nil.
func (l *Listener) Run(ctx context.Context) error {
	log.Info("Listening", "threshold", l.threshold)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := l.src.Read()
		if err != nil {
			if err := l.reopen(); err != nil {
				return err
			}
			// Whatever the dead handle fed the recognizer cannot be
			// trusted; drop the utterance and start over.
			if l.state != Silence {
				l.deps.Recognizer.Reset()
				l.backToSilence(WakewordListen)
			}
			continue
		}
		if l.deps.Speaker.Speaking() {
			// own voice, not the user's
			continue
		}

		loud := audio.RMS(frame) >= l.threshold

		switch l.state {
		case Silence:
			if loud {
				l.deps.Recognizer.Accept(frame)
				l.state = l.nextAfterSilence
				l.timeouts = 0
				l.lastPartial = 0
			}
		case WakewordListen, CommandRecording:
			l.deps.Recognizer.Accept(frame)
			partial := l.deps.Recognizer.Partial()
			grew := len(partial) > l.lastPartial
			l.lastPartial = len(partial)
			if loud && grew {
				l.timeouts = 0
			} else {
				l.timeouts++
			}
			if l.timeouts < timeoutFrames {
				continue
			}

			final := strings.TrimSpace(l.deps.Recognizer.Final())
			log.Debug("Utterance finalized", "state", l.state, "text", final)
			if l.state == WakewordListen {
				if l.evaluateWake(ctx, final) {
					return nil
				}
			} else {
				l.process(ctx, final)
				l.backToSilence(WakewordListen)
			}
		}
	}
}

// reopen replaces a broken capture handle.
func (l *Listener) reopen() error {
	log.Warn("Capture failed, reopening")
	l.src.Close()
	src, err := l.deps.Reopen()
	if err != nil {
		log.Error("Cannot reopen capture", "err", err)
		return err
	}
	l.src = src
	return nil
}

// evaluateWake inspects a finalized idle-state transcript. Goodbye ends the
// session; a bare wake phrase arms command recording; a wake phrase with a
// trailing command dispatches it straight away. Reports whether the session
// is over.
func (l *Listener) evaluateWake(ctx context.Context, final string) bool {
	for _, phrase := range l.cfg.GoodbyePhrases {
		if final == phrase {
			l.deps.Speaker.Say(l.cfg.Farewell)
			log.Info("Goodbye", "phrase", phrase)
			return true
		}
	}

	for _, phrase := range l.cfg.WakePhrases {
		idx := strings.Index(final, phrase)
		if idx < 0 {
			continue
		}
		tail := strings.TrimLeft(final[idx+len(phrase):], " ")
		if tail == "" {
			log.Info("Wake phrase heard", "phrase", phrase)
			if l.deps.Acknowledge != nil {
				l.deps.Acknowledge()
			}
			l.backToSilence(CommandRecording)
			return false
		}
		l.process(ctx, tail)
		l.backToSilence(WakewordListen)
		return false
	}

	l.backToSilence(WakewordListen)
	return false
}

// process dispatches one spoken command: catalog match first, then the
// ignore list, then the conversational fallback.
func (l *Listener) process(ctx context.Context, text string) {
	l.state = ProcessCommand
	if text == "" {
		return
	}

	if row, ok := l.deps.Catalog.Match(text); ok {
		value := catalog.ExtractValue(row, text)
		payload := catalog.FillTemplate(row, value, time.Now())
		log.Info("Command matched", "text", text, "topic", row.Topic, "payload", payload)
		l.deps.Publisher.Publish(row.Topic, payload)
		return
	}

	for _, phrase := range l.cfg.Ignore {
		if text == phrase {
			log.Debug("Ignored", "text", text)
			return
		}
	}

	log.Info("No command matched, asking the model", "text", text)
	cctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()
	reply, err := l.deps.Chat.Chat(cctx, text)
	if err != nil {
		log.Warn("Chat failed", "err", err)
		l.deps.Speaker.Say(l.cfg.Apology)
		return
	}
	l.deps.Speaker.Say(reply)
}

// backToSilence flushes the tail of the utterance, and whatever of the
// assistant's own speech the microphone picked up, then re-arms the loop.
func (l *Listener) backToSilence(next State) {
	if err := l.src.Flush(); err != nil {
		log.Warn("Capture flush failed", "err", err)
	}
	l.state = Silence
	l.nextAfterSilence = next
	l.timeouts = 0
	l.lastPartial = 0
}
