package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/iotdash/dashboard-engine/internal/config"
	"github.com/iotdash/dashboard-engine/internal/domain"
)

type payload struct {
	DeviceID  string           `json:"device_id"`
	Telemetry map[string]any   `json:"telemetry"`
	Timestamp domain.Timestamp `json:"timestamp"`
}

var states = []string{"RUNNING", "RUNNING", "RUNNING", "IDLE", "FAULT"}

func main() {
	rand.Seed(time.Now().UnixNano())
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	opts := mqtt.NewClientOptions().AddBroker(config.MQTTBroker())
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	for i := 0; i < 200; i++ {
		for d := 1; d <= 3; d++ {
			telemetry := map[string]any{
				"temperature": 20 + rand.Float64()*15,
				"pressure":    1.0 + rand.Float64()*0.4,
				"rpm":         1000 + rand.Float64()*500,
			}
			// every few cycles one device also reports its inferred state
			if i%5 == 0 {
				telemetry["_machine_state"] = states[rand.Intn(len(states))]
				telemetry["_state_confidence"] = 60 + rand.Float64()*40
			}
			p := payload{
				DeviceID:  fmt.Sprintf("machine-%03d", d),
				Telemetry: telemetry,
				Timestamp: domain.Now(),
			}
			raw, _ := json.Marshal(p)
			token := client.Publish(config.MQTTTopic(), 0, false, raw)
			token.Wait()
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Info().Msg("simulation done")
}
