package audio

import (
	"sync"

	"friday/internal/catalog"
)

// Registry holds the configured audio devices, the currently active backend
// names and the ambient baseline. The dispatcher mutates the active names;
// workers snapshot them at start.
type Registry struct {
	mu       sync.RWMutex
	capture  []catalog.AudioDevice
	playback []catalog.AudioDevice

	activeCapture  string
	activePlayback string
	baseline       float64
}

// NewRegistry seeds the registry from the catalog. The first declared device
// of each direction starts active; with none declared the empty name selects
// the system default.
func NewRegistry(cat *catalog.Catalog) *Registry {
	r := &Registry{
		capture:  cat.CaptureDevices,
		playback: cat.PlaybackDevices,
	}
	if len(r.capture) > 0 {
		r.activeCapture = r.capture[0].Backend
	}
	if len(r.playback) > 0 {
		r.activePlayback = r.playback[0].Backend
	}
	return r
}

// FindCapture looks a capture device up by its spoken name or alias.
func (r *Registry) FindCapture(spoken string) (catalog.AudioDevice, bool) {
	return find(r.capture, spoken)
}

// FindPlayback looks a playback device up by its spoken name or alias.
func (r *Registry) FindPlayback(spoken string) (catalog.AudioDevice, bool) {
	return find(r.playback, spoken)
}

func find(devices []catalog.AudioDevice, spoken string) (catalog.AudioDevice, bool) {
	for _, d := range devices {
		if d.Matches(spoken) {
			return d, true
		}
	}
	return catalog.AudioDevice{}, false
}

func (r *Registry) ActiveCapture() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCapture
}

func (r *Registry) ActivePlayback() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activePlayback
}

func (r *Registry) SetActiveCapture(backend string) {
	r.mu.Lock()
	r.activeCapture = backend
	r.mu.Unlock()
}

func (r *Registry) SetActivePlayback(backend string) {
	r.mu.Lock()
	r.activePlayback = backend
	r.mu.Unlock()
}

// Baseline returns the ambient RMS measured at startup.
func (r *Registry) Baseline() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseline
}

func (r *Registry) SetBaseline(v float64) {
	r.mu.Lock()
	r.baseline = v
	r.mu.Unlock()
}
