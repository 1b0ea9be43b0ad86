package tts

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEspeak builds a stand-in synthesizer: a script that copies a premade
// WAV to the -w target, matching espeak-ng's argument order.
func fakeEspeak(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake synthesizer script needs a POSIX shell")
	}
	dir := t.TempDir()

	premade := filepath.Join(dir, "premade.wav")
	f, err := os.Create(premade)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	samples := make([]int, 1600)
	for i := range samples {
		samples[i] = int(8000 * math.Sin(float64(i)/10))
	}
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	script := filepath.Join(dir, "espeak-fake")
	body := "#!/bin/sh\ncp \"" + premade + "\" \"$4\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

type recordingSink struct {
	mu       sync.Mutex
	writes   [][]int16
	notify   chan struct{}
	observed func()
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 16)}
}

func (r *recordingSink) Write(pcm []int16) error {
	if r.observed != nil {
		r.observed()
	}
	out := make([]int16, len(pcm))
	copy(out, pcm)
	r.mu.Lock()
	r.writes = append(r.writes, out)
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for playback")
	}
}

type fakeDucker struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDucker) Duck() {
	d.mu.Lock()
	d.calls = append(d.calls, "duck")
	d.mu.Unlock()
}

func (d *fakeDucker) Restore() {
	d.mu.Lock()
	d.calls = append(d.calls, "restore")
	d.mu.Unlock()
}

func TestSpeakerPlaysQueuedLines(t *testing.T) {
	sink := newRecordingSink()
	s := NewSpeaker(fakeEspeak(t), "en-us", sink, 16000, nil)

	s.Say("hello boss")
	s.Say("second line")
	waitFor(t, sink.notify)
	waitFor(t, sink.notify)
	s.Close()

	assert.Equal(t, 2, sink.count())
	assert.NotEmpty(t, sink.writes[0])
}

func TestSpeakerIgnoresEmptyLines(t *testing.T) {
	sink := newRecordingSink()
	s := NewSpeaker(fakeEspeak(t), "en-us", sink, 16000, nil)

	s.Say("")
	s.Close()

	assert.Zero(t, sink.count())
}

func TestSpeakingFlagDuringPlayback(t *testing.T) {
	sink := newRecordingSink()
	var s *Speaker
	var sawSpeaking bool
	sink.observed = func() { sawSpeaking = s.Speaking() }
	s = NewSpeaker(fakeEspeak(t), "en-us", sink, 16000, nil)

	s.Say("hello")
	waitFor(t, sink.notify)
	s.Close()

	assert.True(t, sawSpeaking, "Speaking() should be true while the sink plays")
	assert.False(t, s.Speaking())
}

func TestSpeakerDucksAroundPlayback(t *testing.T) {
	sink := newRecordingSink()
	duck := &fakeDucker{}
	s := NewSpeaker(fakeEspeak(t), "en-us", sink, 16000, duck)

	s.Say("hello")
	waitFor(t, sink.notify)
	s.Close()

	assert.Equal(t, []string{"duck", "restore"}, duck.calls)
}

func TestSpeakerCloseDrainsQueue(t *testing.T) {
	sink := newRecordingSink()
	s := NewSpeaker(fakeEspeak(t), "en-us", sink, 16000, nil)

	for i := 0; i < 5; i++ {
		s.Say("line")
	}
	s.Close()

	assert.Equal(t, 5, sink.count())
}

func TestPlayQueuesRawPCM(t *testing.T) {
	sink := newRecordingSink()
	s := NewSpeaker(fakeEspeak(t), "en-us", sink, 16000, nil)

	cue := []int16{1, -1, 2, -2}
	s.Play(cue)
	s.Play(nil)
	waitFor(t, sink.notify)
	s.Close()

	require.Equal(t, 1, sink.count())
	assert.Equal(t, cue, sink.writes[0])
}

func TestCuesAndSpeechShareOneWriter(t *testing.T) {
	// The acknowledgement cue fires on the listener goroutine while lines
	// come from the dispatcher; the sink must only ever see one writer.
	sink := newRecordingSink()
	var inFlight, overlapped atomic.Int32
	sink.observed = func() {
		if inFlight.Add(1) > 1 {
			overlapped.Add(1)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	}
	s := NewSpeaker(fakeEspeak(t), "en-us", sink, 16000, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			s.Say("line")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			s.Play([]int16{1, 2, 3})
		}
	}()
	wg.Wait()
	s.Close()

	assert.Zero(t, overlapped.Load())
	assert.Equal(t, 10, sink.count())
}

func TestSpeakerSynthFailureIsNonFatal(t *testing.T) {
	sink := newRecordingSink()
	s := NewSpeaker("/nonexistent/espeak", "en-us", sink, 16000, nil)

	s.Say("hello")
	s.Close()

	assert.Zero(t, sink.count())
}
