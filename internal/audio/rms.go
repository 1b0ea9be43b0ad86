package audio

import (
	"fmt"
	"math"
	"time"
)

// RMS computes the root-mean-square loudness of a frame with samples
// normalized to [-1, 1). An empty frame has zero energy.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// Calibrate records for dur and returns the RMS over everything captured.
// The result is the ambient baseline the talking threshold sits on top of.
func Calibrate(src *Source, dur time.Duration) (float64, error) {
	frames := int(dur / FrameDuration)
	if frames < 1 {
		frames = 1
	}
	all := make([]int16, 0, frames*FrameSamples)
	for i := 0; i < frames; i++ {
		f, err := src.Read()
		if err != nil {
			return 0, fmt.Errorf("calibrate: %w", err)
		}
		all = append(all, f...)
	}
	return RMS(all), nil
}
