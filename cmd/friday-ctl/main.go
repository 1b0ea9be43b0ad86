// friday-ctl publishes a single command payload to the assistant's bus
// topic, for driving the dispatcher from scripts and for testing devices
// without talking.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	cli "github.com/spf13/pflag"
)

func main() {
	broker := cli.StringP("broker", "b", "localhost:1883", "Broker address (host:port)")
	topic := cli.StringP("topic", "t", "friday", "Topic to publish on")
	device := cli.StringP("device", "d", "", "Target device token")
	action := cli.StringP("action", "a", "", "Action verb")
	value := cli.StringP("value", "v", "", "Optional value")
	cli.Parse()

	if *device == "" || *action == "" {
		fmt.Fprintln(os.Stderr, "friday-ctl: --device and --action are required")
		cli.PrintDefaults()
		os.Exit(1)
	}

	payload, err := json.Marshal(struct {
		Device string `json:"device"`
		Action string `json:"action"`
		Value  string `json:"value,omitempty"`
	}{*device, *action, *value})
	if err != nil {
		fmt.Fprintln(os.Stderr, "friday-ctl:", err)
		os.Exit(1)
	}

	client := mqtt.NewClient(mqtt.NewClientOptions().
		AddBroker("tcp://" + *broker).
		SetClientID("friday-ctl"))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Fprintln(os.Stderr, "friday-ctl: connect:", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	if token := client.Publish(*topic, 0, false, payload); token.Wait() && token.Error() != nil {
		fmt.Fprintln(os.Stderr, "friday-ctl: publish:", token.Error())
		os.Exit(1)
	}
}
