// Package dispatch routes command payloads to their handlers. It owns the
// music and voice-amplifier workers, the playback gain and the playlist; the
// bus feeds it incoming payloads and matched spoken commands loop back to it
// through the broker.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"friday/internal/audio"
	"friday/internal/catalog"
	"friday/pkg/wordnum"
)

// Speaker is the spoken-feedback sink. It must never call back into the
// dispatcher.
type Speaker interface {
	Say(text string)
}

// Publisher sends payloads back onto the bus. Topic is the assistant's own
// channel, where internal commands loop around through the broker.
type Publisher interface {
	Publish(topic, payload string)
	Topic() string
}

// Chat is the LLM path behind the viewing handler.
type Chat interface {
	ChatImage(ctx context.Context, text string, jpeg []byte) (string, error)
}

// Payload is the wire shape of a bus command. Extra fields, like the
// datetime getter actions inject, are ignored.
type Payload struct {
	Device string `json:"device"`
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

type Deps struct {
	Registry    *audio.Registry
	Speaker     Speaker
	Chat        Chat
	Gain        *Gain
	MusicDir    string
	ShutdownCmd string
}

type Dispatcher struct {
	reg         *audio.Registry
	speaker     Speaker
	chat        Chat
	gain        *Gain
	musicDir    string
	shutdownCmd string

	mu       sync.Mutex
	pub      Publisher
	music    *worker
	amp      *worker
	playlist []string
	track    int

	// playback entry points, swappable for tests
	play   func(path string, stop *atomic.Bool) error
	ampRun func(capture, playback string, stop *atomic.Bool) error
}

func New(d Deps) *Dispatcher {
	disp := &Dispatcher{
		reg:         d.Registry,
		speaker:     d.Speaker,
		chat:        d.Chat,
		gain:        d.Gain,
		musicDir:    d.MusicDir,
		shutdownCmd: d.ShutdownCmd,
	}
	disp.play = disp.playFlac
	disp.ampRun = passThrough
	return disp
}

// BindBus gives the dispatcher its way back onto the bus. Until it is called
// end-of-stream notifications are dropped.
func (d *Dispatcher) BindBus(p Publisher) {
	d.mu.Lock()
	d.pub = p
	d.mu.Unlock()
}

// HandleRaw consumes one bus payload. The bus serializes calls, so handlers
// never race each other.
func (d *Dispatcher) HandleRaw(payload []byte) {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("Malformed bus payload", "payload", string(payload), "err", err)
		return
	}
	d.Dispatch(p)
}

func (d *Dispatcher) Dispatch(p Payload) {
	log.Debug("Dispatching", "device", p.Device, "action", p.Action, "value", p.Value)

	switch {
	case p.Device == catalog.PlaybackDeviceType:
		d.setPlayback(p.Value)
	case p.Device == catalog.CaptureDeviceType:
		d.setCapture(p.Value)
	case p.Device == "text to speech":
		d.speaker.Say(p.Value)
	case p.Device == "time":
		d.speaker.Say(fmt.Sprintf(pick(timePhrases), time.Now().Format("3:04 PM")))
	case p.Device == "date":
		d.speaker.Say(fmt.Sprintf(pick(datePhrases), time.Now().Format("Monday, January 2")))
	case p.Device == "music":
		d.handleMusic(p.Action, p.Value)
	case p.Device == "voice amplifier":
		d.handleAmp(p.Action)
	case strings.HasPrefix(p.Device, "shutdown"):
		d.shutdown()
	case p.Device == "viewing":
		d.viewing(p.Value)
	case p.Device == "volume":
		d.setVolume(p.Value)
	default:
		log.Warn("Unknown device token", "device", p.Device)
	}
}

// Shutdown stops any running workers. Called once when the daemon exits.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopMusicLocked()
	d.stopAmpLocked()
}

// The date and time getters answer through speech rather than as bus
// payloads, matching how they are asked.
var timePhrases = []string{
	"It is %s, sir.",
	"The time is %s.",
	"Right now it is %s, boss.",
}

var datePhrases = []string{
	"Today is %s, sir.",
	"It is %s.",
	"The date is %s, boss.",
}

func pick(phrases []string) string {
	return phrases[rand.Intn(len(phrases))]
}

func (d *Dispatcher) setPlayback(name string) {
	dev, ok := d.reg.FindPlayback(name)
	if !ok {
		d.speaker.Say(fmt.Sprintf("Sorry sir, a playback device called %s was not found.", name))
		return
	}
	d.reg.SetActivePlayback(dev.Backend)
	log.Info("Playback device switched", "name", dev.Name, "backend", dev.Backend)
	d.speaker.Say(fmt.Sprintf("Playback device set to %s.", dev.Name))
}

func (d *Dispatcher) setCapture(name string) {
	dev, ok := d.reg.FindCapture(name)
	if !ok {
		d.speaker.Say(fmt.Sprintf("Sorry sir, a capture device called %s was not found.", name))
		return
	}
	d.reg.SetActiveCapture(dev.Backend)
	log.Info("Capture device switched", "name", dev.Name, "backend", dev.Backend)
	d.speaker.Say(fmt.Sprintf("Capture device set to %s.", dev.Name))
}

func (d *Dispatcher) setVolume(value string) {
	v := wordnum.Parse(value)
	if v < 0 || v > 2 {
		d.speaker.Say("Sorry sir, the volume has to be between zero and two.")
		return
	}
	d.gain.Set(v)
	log.Info("Volume set", "gain", v)
}

func (d *Dispatcher) shutdown() {
	d.speaker.Say("Shutting down. Goodbye sir.")
	log.Info("Running shutdown command", "cmd", d.shutdownCmd)
	if err := exec.Command("sh", "-c", d.shutdownCmd).Run(); err != nil {
		log.Error("Shutdown command failed", "cmd", d.shutdownCmd, "err", err)
	}
}

func (d *Dispatcher) viewing(path string) {
	if d.chat == nil {
		return
	}
	img, err := os.ReadFile(path)
	if err != nil {
		log.Error("Cannot read image", "path", path, "err", err)
		d.speaker.Say("Sorry sir, I could not read that picture.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	reply, err := d.chat.ChatImage(ctx, "Describe briefly what I am looking at.", img)
	if err != nil {
		log.Error("Image description failed", "err", err)
		d.speaker.Say("I'm sorry but I'm currently unavailable boss.")
		return
	}
	d.speaker.Say(reply)
}
