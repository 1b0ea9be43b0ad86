// Package bus connects the assistant to the MQTT broker. The daemon owns a
// single subscription on its own name; everything it says to devices goes
// out as topic publishes.
package bus

import (
	"fmt"
	log "log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const subscribeTimeout = 10 * time.Second

// Handler consumes one incoming payload. The client serializes message
// callbacks, so a handler never races itself.
type Handler func(payload []byte)

type Bus struct {
	client mqtt.Client
	topic  string
}

// Connect dials the broker at addr (host:port), subscribes to the
// assistant's own topic and feeds incoming payloads to handler. The
// subscription is re-established on every reconnect; only the first one
// failing is fatal.
func Connect(addr, name string, handler Handler) (*Bus, error) {
	first := make(chan error, 1)
	var once sync.Once

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + addr).
		SetClientID(name).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("Broker connection lost", "err", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info("Connected to broker", "addr", addr)
			token := c.Subscribe(name, 0, func(_ mqtt.Client, m mqtt.Message) {
				handler(m.Payload())
			})
			token.Wait()
			err := token.Error()
			if err != nil {
				log.Error("Subscribe failed", "topic", name, "err", err)
			}
			once.Do(func() { first <- err })
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", addr, token.Error())
	}

	select {
	case err := <-first:
		if err != nil {
			client.Disconnect(0)
			return nil, fmt.Errorf("subscribe %q: %w", name, err)
		}
	case <-time.After(subscribeTimeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("subscribe %q: timeout", name)
	}

	log.Info("Listening on bus", "topic", name)
	return &Bus{client: client, topic: name}, nil
}

// Publish sends payload on topic at QoS 0. Failures are logged and dropped;
// a missed device command is recoverable by saying it again.
func (b *Bus) Publish(topic, payload string) {
	token := b.client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Error("Publish failed", "topic", topic, "err", err)
	}
}

// Topic returns the assistant's own topic, where internal commands loop
// back through the broker.
func (b *Bus) Topic() string { return b.topic }

// Close disconnects after a short drain.
func (b *Bus) Close() {
	b.client.Disconnect(250)
}
