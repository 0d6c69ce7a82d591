package cmd

import (
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelsson/mqttcore/internal/mqtt"
)

var subscribeCmd = &cobra.Command{
	Use:   "sub",
	Short: "Subscribe to MQTT topics and print received messages",
	Run: func(cmd *cobra.Command, args []string) {
		runSubscribe(args)
	},
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("at least one topic filter is required")
		}
		if SubQoS < 0 || SubQoS > 2 {
			return fmt.Errorf("--qos must be between 0 and 2, got %d", SubQoS)
		}
		return nil
	},
}

func runSubscribe(filters []string) {
	client := mqtt.New(mqtt.TCPDialer(fmt.Sprintf("%s:%s", MQTTBroker, mqtt.UnencryptedPortTCP)),
		mqtt.WithConnectOptions(mqtt.ClientName(clientName()), mqtt.CleanSession(true)))
	defer client.Shutdown()

	subs := make([]mqtt.SubscribeTo, len(filters))
	for i, f := range filters {
		subs[i] = mqtt.SubscribeTo{TopicFilter: f, QoS: mqtt.QoS(SubQoS)}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	subscribed := false
	for {
		select {
		case e := <-client.Events():
			switch e.Kind {
			case mqtt.EventConnected:
				if !subscribed {
					subscribed = true
					if _, err := client.Subscribe(subs); err != nil {
						log.Fatalf("subscribe failed: %s", err)
					}
				}
			case mqtt.EventDisconnected:
				if e.Err != nil {
					if _, fatal := e.Err.(*mqtt.FatalConnectError); fatal {
						log.Fatal(e.Err)
					}
					log.Warnf("connection lost, reconnecting: %s", e.Err)
					subscribed = false
				}
			case mqtt.EventMessage:
				fmt.Printf("%s: %s\n", e.Message.Topic, string(e.Message.Payload))
			}
		case <-interrupt:
			return
		}
	}
}

// SubQoS is the maximum QoS requested for each subscribed topic filter.
var SubQoS int

func init() {
	RootCmd.AddCommand(subscribeCmd)
	flags := subscribeCmd.Flags()
	flags.IntVarP(&SubQoS, "qos", "q", 0, "maximum quality of service 0-2 to request")
}
