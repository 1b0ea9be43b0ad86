package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Placeholder markers recognized in action-word and command templates.
// DeviceMarker and ValueMarker are resolved at compile and match time;
// DatetimeMarker survives compilation and is resolved when the payload is
// filled at dispatch time.
const (
	DeviceMarker   = "%device_name%"
	ValueMarker    = "%value%"
	DatetimeMarker = "%datetime%"
)

const datetimeLayout = "20060102_150405"

// compile expands every (action word, device, spoken name) combination into
// one Command row. Spoken patterns are expanded once for the canonical
// device name and once per alias; the payload template always binds the
// canonical name, since subscribers key on it.
func (c *Catalog) compile() error {
	for _, at := range c.Types {
		for _, sub := range at.Actions {
			for _, tmpl := range sub.ActionWords {
				for _, dev := range c.Devices {
					if dev.Type != at.Name {
						continue
					}
					template := ReplaceWithValues(sub.Command, dev.Name, ValueMarker)
					for _, spoken := range append([]string{dev.Name}, dev.Aliases...) {
						c.Commands = append(c.Commands, Command{
							Wildcard: ReplaceWithValues(tmpl, spoken, "*"),
							Extract:  ReplaceWithValues(tmpl, spoken, ValueMarker),
							Template: template,
							Topic:    dev.Topic,
						})
						if len(c.Commands) > MaxCommands {
							return fmt.Errorf("command table exceeds %d rows", MaxCommands)
						}
					}
				}
			}
		}
	}
	return nil
}

// ReplaceWithValues substitutes DeviceMarker and ValueMarker in a single
// left-to-right scan. Substituted text is never rescanned, and
// DatetimeMarker passes through untouched.
func ReplaceWithValues(tmpl, device, value string) string {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		if tmpl[i] == '%' {
			rest := tmpl[i:]
			if strings.HasPrefix(rest, DeviceMarker) {
				b.WriteString(device)
				i += len(DeviceMarker)
				continue
			}
			if strings.HasPrefix(rest, ValueMarker) {
				b.WriteString(value)
				i += len(ValueMarker)
				continue
			}
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}

// FillTemplate produces the final payload for a matched row: the captured
// value replaces ValueMarker and DatetimeMarker becomes the local timestamp.
func FillTemplate(row Command, value string, now time.Time) string {
	var b strings.Builder
	tmpl := row.Template
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		if tmpl[i] == '%' {
			rest := tmpl[i:]
			if strings.HasPrefix(rest, ValueMarker) {
				b.WriteString(value)
				i += len(ValueMarker)
				continue
			}
			if strings.HasPrefix(rest, DatetimeMarker) {
				b.WriteString(now.Format(datetimeLayout))
				i += len(DatetimeMarker)
				continue
			}
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}
