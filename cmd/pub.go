package cmd

import (
	"encoding/csv"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelsson/mqttcore/internal/mqtt"
)

var publishCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish a MQTT message",
	Run: func(cmd *cobra.Command, args []string) {
		runPublish()
	},
	Args: func(cmd *cobra.Command, args []string) error {
		if QoS < 0 || QoS > 2 {
			return fmt.Errorf("--qos must be between 0 and 2, got %d", QoS)
		}
		if KeepAliveSeconds < 0 {
			return fmt.Errorf("--keep_alive cannot be negative")
		}
		if FileName == "" && (Topic == "" || Message == "") {
			return fmt.Errorf("either --file, or both --topic and --message, must be given")
		}
		return nil
	},
}

func clientName() string {
	if MQTTClientName == "" {
		MQTTClientName = mqtt.RandomClientID()
		log.Infof("Using generated client ID %s", MQTTClientName)
	}
	return MQTTClientName
}

func connectOptions() []mqtt.ConnectOption {
	opts := []mqtt.ConnectOption{
		mqtt.ClientName(clientName()),
		mqtt.CleanSession(true),
		mqtt.KeepAliveSeconds(KeepAliveSeconds),
	}
	if WillTopic != "" {
		opts = append(opts,
			mqtt.WillTopic(WillTopic),
			mqtt.WillMessage([]byte(WillMessage)),
			mqtt.WillQoS(WillQoS),
			mqtt.WillRetain(WillRetain),
		)
	}
	return opts
}

// readPublications returns the single --topic/--message publication, or
// every row of --file if one was given.
func readPublications() ([]mqtt.Publication, error) {
	if FileName == "" {
		return []mqtt.Publication{{Topic: Topic, Payload: []byte(Message), QoS: mqtt.QoS(QoS), Retain: Retain}}, nil
	}

	f, err := os.Open(FileName)
	if err != nil {
		return nil, fmt.Errorf("cannot open file %s: %w", FileName, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s as CSV: %w", FileName, err)
	}

	pubs := make([]mqtt.Publication, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			return nil, fmt.Errorf("expected <topic>,<message> per CSV row, got %v", r)
		}
		pubs = append(pubs, mqtt.Publication{Topic: r[0], Payload: []byte(r[1]), QoS: mqtt.QoS(QoS)})
	}
	return pubs, nil
}

func runPublish() {
	pubs, err := readPublications()
	if err != nil {
		log.Fatal(err)
	}

	client := mqtt.New(mqtt.TCPDialer(fmt.Sprintf("%s:%s", MQTTBroker, mqtt.UnencryptedPortTCP)),
		mqtt.WithConnectOptions(connectOptions()...))
	defer client.Shutdown()

	waitForConnection(client)

	var dones []<-chan error
	for _, p := range pubs {
		done, err := client.Publish(p)
		if err != nil {
			log.Fatalf("publish to %s failed: %s", p.Topic, err)
		}
		dones = append(dones, done)
	}
	for i, done := range dones {
		if err := <-done; err != nil {
			log.Errorf("publish %d failed: %s", i, err)
		}
	}
}

// waitForConnection blocks until the client reports its first successful
// connection, or exits the process if the broker fatally refuses it.
func waitForConnection(client *mqtt.Client) {
	for e := range client.Events() {
		switch e.Kind {
		case mqtt.EventConnected:
			return
		case mqtt.EventDisconnected:
			if e.Err != nil {
				if _, fatal := e.Err.(*mqtt.FatalConnectError); fatal {
					log.Fatal(e.Err)
				}
				log.Warnf("connect attempt failed, retrying: %s", e.Err)
			}
		}
	}
}

// MQTTBroker is the MQTT host to dial, on the standard unencrypted port.
var MQTTBroker string

// MQTTClientName is the MQTT client name - a short UUID by default.
var MQTTClientName string

// Topic is the MQTT topic to publish to.
var Topic string

// Message is the MQTT message text to publish.
var Message string

// KeepAliveSeconds is the MQTT keep-alive period in seconds.
var KeepAliveSeconds int

// QoS is the quality of service to publish at.
var QoS int

// FileName is a CSV file of <topic>,<message> rows to publish instead of a single --topic/--message.
var FileName string

// Retain indicates if the published message should be retained.
var Retain bool

// WillMessage is the message to send on an unclean disconnect.
var WillMessage string

// WillTopic is the topic for the will message; empty disables the will.
var WillTopic string

// WillQoS is the QoS for delivery of the will message.
var WillQoS int

// WillRetain is the retain flag for the will message.
var WillRetain bool

func init() {
	RootCmd.AddCommand(publishCmd)
	flags := publishCmd.Flags()

	flags.StringVarP(&MQTTBroker, "broker", "b", "localhost", "the MQTT broker host to connect to")
	flags.StringVarP(&MQTTClientName, "client", "c", "", "the MQTT client name to use - default is a short UUID")
	flags.StringVarP(&FileName, "file", "f", "", "file with CSV <topic>,<message> lines to publish")
	flags.IntVarP(&KeepAliveSeconds, "keep_alive", "", 10, "number of seconds to keep the connection alive")
	flags.StringVarP(&Message, "message", "m", "", "the message to send")
	flags.StringVarP(&Topic, "topic", "t", "", "the MQTT topic to send the message to")
	flags.IntVarP(&QoS, "qos", "q", 0, "quality of service 0-2")
	flags.BoolVarP(&Retain, "retain", "r", false, "whether the message should be retained")
	flags.StringVarP(&WillMessage, "wmessage", "", "", "the will message to send on an unclean disconnect")
	flags.IntVarP(&WillQoS, "wqos", "", 0, "quality of service 0-2 for the will message")
	flags.BoolVarP(&WillRetain, "wretain", "", false, "whether the will message should be retained")
	flags.StringVarP(&WillTopic, "wtopic", "", "", "the topic for the will message; empty disables the will")
}
