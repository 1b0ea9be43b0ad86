// Package notify renders short attention cues, like the chime acknowledging
// a wake phrase. Playback goes through the speech worker so cues never fight
// a spoken line for the device.
package notify

import (
	log "log/slog"
	"math"

	"friday/pkg/audioconv"
)

// Render decodes the cue file at path, falling back to a built-in two-note
// tone when path is empty or undecodable. Cue problems are logged and
// swallowed; a missing chime must never take the assistant down.
func Render(path string, rate int) []int16 {
	if path != "" {
		pcm, err := audioconv.DecodeFile(path, rate)
		if err == nil {
			return pcm
		}
		log.Warn("Cue sound unavailable, using built-in tone", "path", path, "err", err)
	}
	return tone(rate)
}

// tone synthesizes 200 ms of a rising two-note chime with a linear
// attack/release so it does not click.
func tone(rate int) []int16 {
	n := rate / 5
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ramp := n / 10
	for i := range out {
		freq := 660.0
		if i > n/2 {
			freq = 880.0
		}
		env := 1.0
		if ramp > 0 {
			if i < ramp {
				env = float64(i) / float64(ramp)
			} else if n-1-i < ramp {
				env = float64(n-1-i) / float64(ramp)
			}
		}
		out[i] = int16(9000 * env * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}
