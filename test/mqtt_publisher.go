package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Envelope mirrors the JSON meshtasticd publishes on msh/<region>/2/json/...
type Envelope struct {
	From      uint32         `json:"from"`
	To        uint32         `json:"to"`
	ID        uint32         `json:"id"`
	Channel   int            `json:"channel"`
	Sender    string         `json:"sender"`
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

// SimNode is one simulated radio
type SimNode struct {
	Num      uint32
	Interval time.Duration
	Kind     string
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	username := flag.String("username", "", "MQTT username")
	password := flag.String("password", "", "MQTT password")
	root := flag.String("root", "msh/EU_868", "topic root")
	mode := flag.String("mode", "continuous", "run mode: single, batch, continuous")
	flag.Parse()

	opts := paho.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("mesh-sim-%d", time.Now().Unix()))
	if *username != "" {
		opts.SetUsername(*username)
		opts.SetPassword(*password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		fmt.Printf("connection lost: %v\n", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Printf("failed to connect to MQTT broker: %v\n", token.Error())
		os.Exit(1)
	}
	fmt.Printf("connected to MQTT broker: %s\n", *broker)

	gateway := uint32(0xabcd0001)
	topic := fmt.Sprintf("%s/2/json/LongFast/!%08x", *root, gateway)

	switch *mode {
	case "single":
		publish(client, topic, envelope(gateway, "telemetry", environmentPayload()))
		client.Disconnect(250)
	case "batch":
		publishBatch(client, topic)
	case "continuous":
		publishContinuous(client, topic)
	default:
		fmt.Println("unknown mode, use single, batch or continuous")
		os.Exit(1)
	}
}

// publishBatch sends one message of every shape the service understands
func publishBatch(client paho.Client, topic string) {
	node := uint32(0xabcd0002)
	messages := []Envelope{
		envelope(node, "telemetry", environmentPayload()),
		envelope(node, "telemetry", devicePayload()),
		envelope(node, "telemetry", map[string]any{"pm10": 4, "pm25": 7, "pm100": 9}),
		envelope(node, "telemetry", map[string]any{"uptime_seconds": 3600, "freemem_bytes": 1 << 20, "load1": 50}),
		envelope(node, "position", positionPayload()),
		envelope(node, "nodeinfo", map[string]any{"longname": "sim node", "shortname": "SIM"}),
	}
	for _, msg := range messages {
		publish(client, topic, msg)
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("batch publish done")
	client.Disconnect(250)
}

func publishContinuous(client paho.Client, topic string) {
	sims := []SimNode{
		{Num: 0xabcd0001, Interval: 5 * time.Second, Kind: "environment"},
		{Num: 0xabcd0002, Interval: 8 * time.Second, Kind: "device"},
		{Num: 0xabcd0003, Interval: 10 * time.Second, Kind: "position"},
	}

	for _, sim := range sims {
		go func(n SimNode) {
			for {
				switch n.Kind {
				case "environment":
					publish(client, topic, envelope(n.Num, "telemetry", environmentPayload()))
				case "device":
					publish(client, topic, envelope(n.Num, "telemetry", devicePayload()))
				case "position":
					publish(client, topic, envelope(n.Num, "position", positionPayload()))
				}
				time.Sleep(n.Interval)
			}
		}(sim)
		fmt.Printf("node !%08x publishes %s every %v\n", sim.Num, sim.Kind, sim.Interval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("disconnecting...")
	client.Disconnect(250)
}

func envelope(from uint32, msgType string, payload map[string]any) Envelope {
	return Envelope{
		From:      from,
		To:        0xffffffff,
		ID:        rand.Uint32(),
		Sender:    fmt.Sprintf("!%08x", from),
		Timestamp: time.Now().Unix(),
		Type:      msgType,
		Payload:   payload,
	}
}

func round1(v float64) float64 {
	return float64(int(v*10)) / 10
}

func environmentPayload() map[string]any {
	return map[string]any{
		"temperature":         round1(25.0 + (rand.Float64()*10 - 5)),
		"relative_humidity":   round1(40.0 + rand.Float64()*40),
		"barometric_pressure": round1(1000 + rand.Float64()*30),
		"gas_resistance":      round1(50 + rand.Float64()*100),
	}
}

func devicePayload() map[string]any {
	return map[string]any{
		"battery_level":       rand.Intn(101),
		"voltage":             round1(3.3 + rand.Float64()),
		"channel_utilization": round1(rand.Float64() * 20),
		"air_util_tx":         round1(rand.Float64() * 5),
		"uptime_seconds":      rand.Intn(86400),
	}
}

func positionPayload() map[string]any {
	return map[string]any{
		"latitude_i":     377749000 + rand.Intn(10000),
		"longitude_i":    -1224194000 + rand.Intn(10000),
		"altitude":       rand.Intn(100),
		"PDOP":           100 + rand.Intn(200),
		"ground_track":   rand.Intn(3600000),
		"sats_in_view":   4 + rand.Intn(10),
		"precision_bits": 32,
	}
}

func publish(client paho.Client, topic string, msg Envelope) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		fmt.Printf("JSON encoding failed: %v\n", err)
		return
	}

	token := client.Publish(topic, 0, false, jsonData)
	token.Wait()

	if token.Error() != nil {
		fmt.Printf("publish failed: %v\n", token.Error())
	} else {
		fmt.Printf("[%s] published %s: %s\n", time.Now().Format("15:04:05"), topic, string(jsonData))
	}
}
