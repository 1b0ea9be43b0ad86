package dispatch

import (
	"fmt"
	"io/fs"
	log "log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/faiface/beep/flac"

	"friday/internal/audio"
	"friday/internal/catalog"
	"friday/pkg/audioconv"
)

// maxPlaylist caps how many tracks one play request gathers.
const maxPlaylist = 100

// worker is one background playback job. There is at most one music worker
// and one voice-amplifier worker alive at a time; a replacement is only
// started after the previous one was signalled and joined.
type worker struct {
	stop atomic.Bool
	done chan struct{}
}

func newWorker() *worker { return &worker{done: make(chan struct{})} }

// halt signals the worker and waits for it to exit.
func (w *worker) halt() {
	w.stop.Store(true)
	<-w.done
}

func (d *Dispatcher) handleMusic(action, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch action {
	case "play":
		d.stopMusicLocked()
		d.playlist = BuildPlaylist(d.musicDir, value)
		if len(d.playlist) == 0 {
			d.speaker.Say(fmt.Sprintf("Sorry sir, I found no music matching %s.", value))
			return
		}
		d.track = 0
		d.startMusicLocked()
	case "stop":
		d.stopMusicLocked()
	case "next", "previous":
		if len(d.playlist) == 0 {
			return
		}
		d.stopMusicLocked()
		if action == "next" {
			d.track = (d.track + 1) % len(d.playlist)
		} else {
			d.track = (d.track - 1 + len(d.playlist)) % len(d.playlist)
		}
		d.startMusicLocked()
	default:
		log.Warn("Unknown music action", "action", action)
	}
}

func (d *Dispatcher) startMusicLocked() {
	path := d.playlist[d.track]
	w := newWorker()
	d.music = w
	pub := d.pub
	log.Info("Playing", "track", path)
	go func() {
		defer close(w.done)
		if err := d.play(path, &w.stop); err != nil {
			log.Error("Music playback failed", "track", path, "err", err)
		}
		// End of stream, or a broken track, moves on to the next one.
		// A deliberate stop does not. The skip goes through the broker
		// so the worker never calls its own dispatcher.
		if !w.stop.Load() && pub != nil {
			pub.Publish(pub.Topic(), `{"device": "music", "action": "next"}`)
		}
	}()
}

func (d *Dispatcher) stopMusicLocked() {
	if d.music == nil {
		return
	}
	d.music.halt()
	d.music = nil
}

// BuildPlaylist walks dir for FLAC files whose name matches query, spaces
// standing in for any run of characters. Matching ignores case; the result
// is sorted and capped at maxPlaylist entries.
func BuildPlaylist(dir, query string) []string {
	pattern := "*" + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(query)), " ", "*") + "*.flac"
	var out []string
	filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if catalog.WildcardMatch(pattern, strings.ToLower(entry.Name())) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	if len(out) > maxPlaylist {
		out = out[:maxPlaylist]
	}
	return out
}

// playFlac decodes one track onto a freshly opened sink on the active
// playback device, applying the shared gain sample by sample. Returns nil on
// a clean end of stream or a stop signal.
func (d *Dispatcher) playFlac(path string, stop *atomic.Bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	streamer, format, err := flac.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()

	channels := format.NumChannels
	if channels > 2 {
		channels = 2
	}
	sink, err := audio.OpenSink(d.reg.ActivePlayback(), int(format.SampleRate), channels)
	if err != nil {
		return err
	}
	defer sink.Close()

	frames := make([][2]float64, 2048)
	pcm := make([]int16, 0, len(frames)*channels)
	for !stop.Load() {
		n, ok := streamer.Stream(frames)
		if n == 0 {
			if !ok {
				return streamer.Err()
			}
			continue
		}
		gain := d.gain.Get()
		pcm = pcm[:0]
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				pcm = append(pcm, scale(frames[i][c], gain))
			}
		}
		if err := sink.Write(pcm); err != nil {
			return err
		}
	}
	return nil
}

// scale converts one decoded sample to output PCM at the given gain,
// clamping at the 16-bit bounds.
func scale(sample, gain float64) int16 {
	return audioconv.Clamp16(sample * gain * 32767.0)
}
