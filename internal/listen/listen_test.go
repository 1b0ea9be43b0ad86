package listen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friday/internal/catalog"
)

const catFixture = `{
  "types": {
    "boolean": {
      "actions": {
        "enable": {
          "action_words": ["turn on the %device_name%"],
          "action_command": "{\"device\":\"%device_name%\",\"action\":\"enable\"}"
        }
      }
    },
    "getter": {
      "actions": {
        "get": {
          "action_words": ["what %device_name% is it"],
          "action_command": "{\"device\":\"%device_name%\",\"action\":\"get\"}"
        }
      }
    }
  },
  "devices": {
    "map": { "type": "boolean", "topic": "hud" },
    "time": { "type": "getter", "topic": "friday" }
  }
}`

var errCaptureGone = errors.New("capture gone")

func loudFrame() []int16 {
	f := make([]int16, 160)
	for i := range f {
		f[i] = 5000
	}
	return f
}

func quietFrame() []int16 { return make([]int16, 160) }

// utterance is one loud frame to leave Silence plus enough quiet frames to
// hit the end-of-speech timeout.
func utterance() [][]int16 {
	frames := [][]int16{loudFrame()}
	for i := 0; i < timeoutFrames; i++ {
		frames = append(frames, quietFrame())
	}
	return frames
}

type fakeSource struct {
	frames  [][]int16
	idx     int
	flushes int
	closed  bool
}

func (s *fakeSource) Read() ([]int16, error) {
	if s.idx >= len(s.frames) {
		return nil, errCaptureGone
	}
	f := s.frames[s.idx]
	s.idx++
	return f, nil
}

func (s *fakeSource) Flush() error { s.flushes++; return nil }
func (s *fakeSource) Close() error { s.closed = true; return nil }

type fakeRec struct {
	finals     []string
	accepts    int
	finalCalls int
	resets     int
}

func (r *fakeRec) Accept([]int16)  { r.accepts++ }
func (r *fakeRec) Partial() string { return "" }
func (r *fakeRec) Final() string {
	r.finalCalls++
	if len(r.finals) == 0 {
		return ""
	}
	f := r.finals[0]
	r.finals = r.finals[1:]
	return f
}
func (r *fakeRec) Reset() { r.resets++ }

type fakeSpeaker struct {
	lines    []string
	speaking bool
}

func (s *fakeSpeaker) Say(text string) { s.lines = append(s.lines, text) }
func (s *fakeSpeaker) Speaking() bool  { return s.speaking }

type published struct{ topic, payload string }

type fakePub struct{ msgs []published }

func (p *fakePub) Publish(topic, payload string) {
	p.msgs = append(p.msgs, published{topic, payload})
}

type fakeChat struct {
	texts []string
	reply string
	err   error
}

func (c *fakeChat) Chat(_ context.Context, text string) (string, error) {
	c.texts = append(c.texts, text)
	return c.reply, c.err
}

type fixture struct {
	src     *fakeSource
	rec     *fakeRec
	speaker *fakeSpeaker
	pub     *fakePub
	chat    *fakeChat
	acks    int
	l       *Listener
}

func newFixture(t *testing.T, frames [][]int16, finals []string) *fixture {
	t.Helper()
	cat, err := catalog.Parse([]byte(catFixture))
	require.NoError(t, err)

	f := &fixture{
		src:     &fakeSource{frames: frames},
		rec:     &fakeRec{finals: finals},
		speaker: &fakeSpeaker{},
		pub:     &fakePub{},
		chat:    &fakeChat{reply: "As you wish."},
	}
	f.l = New(Deps{
		Source:      f.src,
		Reopen:      func() (Source, error) { return nil, errCaptureGone },
		Recognizer:  f.rec,
		Speaker:     f.speaker,
		Publisher:   f.pub,
		Chat:        f.chat,
		Catalog:     cat,
		Acknowledge: func() { f.acks++ },
	}, Config{
		WakePhrases:    []string{"hey friday", "friday"},
		GoodbyePhrases: []string{"good bye", "goodbye"},
		Ignore:         []string{"huh"},
		Baseline:       0.01,
	})
	return f
}

func TestAllSilenceStaysInSilence(t *testing.T) {
	var frames [][]int16
	for i := 0; i < 10; i++ {
		frames = append(frames, quietFrame())
	}
	f := newFixture(t, frames, nil)

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)
	assert.Equal(t, Silence, f.l.State())
	assert.Zero(t, f.rec.accepts)
	assert.Zero(t, f.rec.finalCalls)
	assert.Empty(t, f.pub.msgs)
}

func TestWakeAndCommandInOneUtterance(t *testing.T) {
	f := newFixture(t, utterance(), []string{"hey friday turn on the map"})

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)

	require.Len(t, f.pub.msgs, 1)
	assert.Equal(t, "hud", f.pub.msgs[0].topic)
	assert.Equal(t, `{"device":"map","action":"enable"}`, f.pub.msgs[0].payload)

	assert.Equal(t, Silence, f.l.State(), "dispatch always falls back to Silence")
	assert.Equal(t, 1, f.src.flushes, "capture is flushed after dispatch")
	assert.Zero(t, f.acks, "wake-with-tail skips the acknowledgement")
	assert.Empty(t, f.chat.texts)
}

func TestWakeThenCommandTwoUtterances(t *testing.T) {
	frames := append(utterance(), utterance()...)
	f := newFixture(t, frames, []string{"hey friday", "what time is it"})

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)

	assert.Equal(t, 1, f.acks, "bare wake phrase is acknowledged")
	require.Len(t, f.pub.msgs, 1)
	assert.Equal(t, "friday", f.pub.msgs[0].topic)
	assert.Equal(t, `{"device":"time","action":"get"}`, f.pub.msgs[0].payload)
	assert.Equal(t, 2, f.src.flushes)
}

func TestWakePhraseTailWhitespaceOnlyArmsRecording(t *testing.T) {
	f := newFixture(t, utterance(), []string{"hey friday   "})

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)
	assert.Equal(t, 1, f.acks)
	assert.Empty(t, f.pub.msgs)
}

func TestChatFallback(t *testing.T) {
	f := newFixture(t, utterance(), []string{"hey friday tell me a joke about silicon"})

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)

	assert.Empty(t, f.pub.msgs)
	assert.Equal(t, []string{"tell me a joke about silicon"}, f.chat.texts)
	assert.Equal(t, []string{"As you wish."}, f.speaker.lines)
}

func TestChatFailureSpeaksApology(t *testing.T) {
	f := newFixture(t, utterance(), []string{"hey friday tell me a joke"})
	f.chat.err = errors.New("host unreachable")

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)
	assert.Equal(t, []string{DefaultApology}, f.speaker.lines)
}

func TestIgnoreListSilencesChat(t *testing.T) {
	f := newFixture(t, utterance(), []string{"hey friday huh"})

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)
	assert.Empty(t, f.chat.texts)
	assert.Empty(t, f.pub.msgs)
	assert.Empty(t, f.speaker.lines)
}

func TestGoodbyeEndsTheSession(t *testing.T) {
	f := newFixture(t, utterance(), []string{"good bye"})

	err := f.l.Run(context.Background())
	assert.NoError(t, err, "goodbye is a clean shutdown")
	assert.Equal(t, []string{DefaultFarewell}, f.speaker.lines)
}

func TestGoodbyeNeedsExactEquality(t *testing.T) {
	f := newFixture(t, utterance(), []string{"good bye everyone"})

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone, "extra words must not terminate the session")
	assert.Empty(t, f.speaker.lines)
}

func TestUnrelatedUtteranceReturnsToSilence(t *testing.T) {
	frames := append(utterance(), utterance()...)
	f := newFixture(t, frames, []string{"static on the line", "hey friday turn on the map"})

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)
	require.Len(t, f.pub.msgs, 1, "the loop keeps listening after a non-wake utterance")
	assert.Equal(t, "hud", f.pub.msgs[0].topic)
}

func TestOwnSpeechIsDiscarded(t *testing.T) {
	frames := [][]int16{loudFrame(), loudFrame(), loudFrame()}
	f := newFixture(t, frames, nil)
	f.speaker.speaking = true

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)
	assert.Zero(t, f.rec.accepts)
	assert.Equal(t, Silence, f.l.State())
}

func TestCaptureFailureMidUtteranceStartsOver(t *testing.T) {
	// The capture dies while an utterance is in flight. The loop must
	// reopen, drop the half-heard transcript and go back to waiting.
	f := newFixture(t, [][]int16{loudFrame(), loudFrame()}, []string{"hey friday turn on the map"})
	reopened := &fakeSource{frames: [][]int16{quietFrame(), quietFrame()}}
	reopens := 0
	f.l.deps.Reopen = func() (Source, error) {
		reopens++
		if reopens == 1 {
			return reopened, nil
		}
		return nil, errCaptureGone
	}

	err := f.l.Run(context.Background())
	assert.ErrorIs(t, err, errCaptureGone)

	assert.Equal(t, 1, f.rec.resets, "stale transcript is discarded")
	assert.Zero(t, f.rec.finalCalls, "the interrupted utterance is never finalized")
	assert.Empty(t, f.pub.msgs)
	assert.Equal(t, 1, reopened.flushes, "the fresh handle is flushed before listening resumes")
	assert.True(t, f.src.closed, "the dead handle is closed")
	assert.Equal(t, Silence, f.l.State())
}

func TestContextCancellationStopsCleanly(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, f.l.Run(ctx))
}
