// Package catalog compiles the declarative command configuration into the
// flat table the listener matches final transcripts against.
//
// The configuration groups action types (verbs and their spoken forms),
// devices (each bound to a type and a bus topic) and audio devices. Compiling
// expands every (sub-action, action word, device, spoken name) combination
// into one Command row. Parsing walks the JSON in declaration order, so the
// same file always compiles to the same table in the same order.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Audio device type literals as they appear in the configuration. The same
// strings double as dispatcher device tokens for switching the active device.
const (
	CaptureDeviceType  = "audio capture device"
	PlaybackDeviceType = "audio playback device"
)

// MaxCommands caps the compiled table size.
const MaxCommands = 512

// SubAction is one verb of an action type: its spoken templates and the
// payload template published when a spoken form matches.
type SubAction struct {
	Name        string
	ActionWords []string
	Command     string
}

type ActionType struct {
	Name    string
	Actions []SubAction
}

// Device is a controllable endpoint. Type names an ActionType; Topic is the
// bus channel its payloads are published on.
type Device struct {
	Name    string
	Type    string
	Aliases []string
	Unit    string
	Topic   string
}

// AudioDevice maps a spoken name onto a backend identifier for the capture
// or playback side.
type AudioDevice struct {
	Name    string
	Type    string
	Aliases []string
	Backend string
}

// Matches reports whether spoken equals the device's name or one of its
// aliases, ignoring case.
func (d AudioDevice) Matches(spoken string) bool {
	if strings.EqualFold(d.Name, spoken) {
		return true
	}
	for _, a := range d.Aliases {
		if strings.EqualFold(a, spoken) {
			return true
		}
	}
	return false
}

// Command is one compiled row. Wildcard is matched against the spoken
// command, Extract recovers the value, Template becomes the published
// payload.
type Command struct {
	Wildcard string
	Extract  string
	Template string
	Topic    string
}

type Catalog struct {
	Types           []ActionType
	Devices         []Device
	Commands        []Command
	CaptureDevices  []AudioDevice
	PlaybackDevices []AudioDevice
}

// Load reads and compiles the configuration file at path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse builds and compiles a Catalog from raw JSON.
func Parse(raw []byte) (*Catalog, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("not valid JSON")
	}
	root := gjson.ParseBytes(raw)

	var cat Catalog
	if err := cat.parseTypes(root.Get("types")); err != nil {
		return nil, err
	}
	if err := cat.parseDevices(root.Get("devices")); err != nil {
		return nil, err
	}
	if err := cat.parseAudioDevices(root.Get("audio devices")); err != nil {
		return nil, err
	}
	if err := cat.compile(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) parseTypes(types gjson.Result) error {
	if !types.Exists() {
		return errors.New(`missing required section "types"`)
	}
	var err error
	types.ForEach(func(key, val gjson.Result) bool {
		at := ActionType{Name: key.String()}
		actions := val.Get("actions")
		if !actions.Exists() {
			err = fmt.Errorf(`type %q: missing required field "actions"`, at.Name)
			return false
		}
		actions.ForEach(func(aname, aval gjson.Result) bool {
			sub := SubAction{Name: aname.String()}
			words := aval.Get("action_words")
			if !words.Exists() {
				err = fmt.Errorf(`action %q of type %q: missing required field "action_words"`, sub.Name, at.Name)
				return false
			}
			for _, w := range words.Array() {
				sub.ActionWords = append(sub.ActionWords, w.String())
			}
			command := aval.Get("action_command")
			if !command.Exists() {
				err = fmt.Errorf(`action %q of type %q: missing required field "action_command"`, sub.Name, at.Name)
				return false
			}
			sub.Command = command.String()
			at.Actions = append(at.Actions, sub)
			return true
		})
		if err != nil {
			return false
		}
		c.Types = append(c.Types, at)
		return true
	})
	return err
}

func (c *Catalog) parseDevices(devices gjson.Result) error {
	var err error
	devices.ForEach(func(key, val gjson.Result) bool {
		d := Device{Name: key.String()}
		typ := val.Get("type")
		if !typ.Exists() {
			err = fmt.Errorf(`device %q: missing required field "type"`, d.Name)
			return false
		}
		d.Type = typ.String()
		if !c.hasType(d.Type) {
			err = fmt.Errorf("device %q: unknown type %q", d.Name, d.Type)
			return false
		}
		topic := val.Get("topic")
		if !topic.Exists() {
			err = fmt.Errorf(`device %q: missing required field "topic"`, d.Name)
			return false
		}
		d.Topic = topic.String()
		for _, a := range val.Get("aliases").Array() {
			d.Aliases = append(d.Aliases, a.String())
		}
		d.Unit = val.Get("unit").String()
		c.Devices = append(c.Devices, d)
		return true
	})
	return err
}

func (c *Catalog) parseAudioDevices(audio gjson.Result) error {
	var err error
	audio.ForEach(func(key, val gjson.Result) bool {
		ad := AudioDevice{Name: key.String()}
		typ := val.Get("type")
		if !typ.Exists() {
			err = fmt.Errorf(`audio device %q: missing required field "type"`, ad.Name)
			return false
		}
		ad.Type = typ.String()
		backend := val.Get("device")
		if !backend.Exists() {
			err = fmt.Errorf(`audio device %q: missing required field "device"`, ad.Name)
			return false
		}
		ad.Backend = backend.String()
		for _, a := range val.Get("aliases").Array() {
			ad.Aliases = append(ad.Aliases, a.String())
		}
		switch ad.Type {
		case CaptureDeviceType:
			c.CaptureDevices = append(c.CaptureDevices, ad)
		case PlaybackDeviceType:
			c.PlaybackDevices = append(c.PlaybackDevices, ad)
		default:
			err = fmt.Errorf("audio device %q: unknown type %q", ad.Name, ad.Type)
			return false
		}
		return true
	})
	return err
}

func (c *Catalog) hasType(name string) bool {
	for _, t := range c.Types {
		if t.Name == name {
			return true
		}
	}
	return false
}
