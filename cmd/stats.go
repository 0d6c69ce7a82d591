package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelsson/mqttcore/internal/metrics"
	"github.com/joelsson/mqttcore/internal/mqtt"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Measure QoS 1 publish acknowledgement latency and render a histogram",
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
	Args: func(cmd *cobra.Command, args []string) error {
		if StatsSampleCount <= 0 {
			return fmt.Errorf("--samples must be positive, got %d", StatsSampleCount)
		}
		return nil
	},
}

// StatsSampleCount is how many QoS 1 publishes to measure.
var StatsSampleCount int

// StatsOutputFile is the histogram file to write; its extension (.svg,
// .pdf, .png) selects the rendering backend.
var StatsOutputFile string

// StatsBins is the number of histogram buckets.
var StatsBins int

// StatsTopic is the topic latency probes are published to.
var StatsTopic string

func init() {
	RootCmd.AddCommand(statsCmd)
	flags := statsCmd.Flags()
	flags.IntVarP(&StatsSampleCount, "samples", "n", 100, "number of QoS 1 publishes to measure")
	flags.StringVarP(&StatsOutputFile, "out", "o", "latency.svg", "histogram output file (.svg, .pdf or .png)")
	flags.IntVarP(&StatsBins, "bins", "", 16, "number of histogram buckets")
	flags.StringVarP(&StatsTopic, "topic", "t", "mqttcore/stats", "the topic to publish latency probes to")
}

func runStats() {
	client := mqtt.New(mqtt.TCPDialer(fmt.Sprintf("%s:%s", MQTTBroker, mqtt.UnencryptedPortTCP)),
		mqtt.WithConnectOptions(mqtt.ClientName(clientName()), mqtt.CleanSession(true)))
	defer client.Shutdown()

	waitForConnection(client)

	recorder := metrics.NewRecorder()
	for i := 0; i < StatsSampleCount; i++ {
		start := time.Now()
		done, err := client.Publish(mqtt.Publication{Topic: StatsTopic, Payload: []byte("ping"), QoS: mqtt.AtLeastOnce})
		if err != nil {
			log.Warnf("probe %d failed to queue: %s", i, err)
			continue
		}
		if err := <-done; err != nil {
			log.Warnf("probe %d failed: %s", i, err)
			continue
		}
		recorder.Record(time.Since(start))
	}

	if recorder.Len() == 0 {
		log.Fatal("no successful probes to summarize")
	}
	if err := metrics.RenderLatencyHistogram(recorder.Snapshot(), StatsBins, StatsOutputFile); err != nil {
		log.Fatalf("rendering histogram: %s", err)
	}
	fmt.Printf("wrote %s from %d samples\n", StatsOutputFile, recorder.Len())
}
