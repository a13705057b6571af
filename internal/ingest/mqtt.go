// Package ingest consumes device payloads straight from an MQTT broker and
// synthesizes the same telemetry_update messages the websocket feed carries,
// so both transports share one ingestion path.
package ingest

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/metrics"
)

// devicePayload is what devices publish: the same shape the backend accepts
// on its telemetry endpoint.
type devicePayload struct {
	DeviceID  string           `json:"device_id"`
	Telemetry map[string]any   `json:"telemetry"`
	Timestamp domain.Timestamp `json:"timestamp"`
}

// Sink receives each synthesized message plus its encoded frame.
type Sink func(env *domain.Envelope, raw []byte)

type MQTTSource struct {
	client mqtt.Client
	topic  string
	sink   Sink
	log    zerolog.Logger
}

func NewMQTTSource(broker, topic string, log zerolog.Logger, sink Sink) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTSource{
		client: client,
		topic:  topic,
		sink:   sink,
		log:    log.With().Str("component", "ingest").Str("topic", topic).Logger(),
	}, nil
}

func (s *MQTTSource) Start() error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var payload devicePayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			metrics.DecodeFailures.Inc()
			s.log.Warn().Err(err).Msg("dropping malformed payload")
			return
		}
		if payload.DeviceID == "" {
			metrics.DecodeFailures.Inc()
			s.log.Warn().Msg("dropping payload without device_id")
			return
		}
		if payload.Timestamp == 0 {
			payload.Timestamp = domain.Now()
		}
		env := &domain.Envelope{
			Type:      domain.MsgTelemetryUpdate,
			DeviceID:  payload.DeviceID,
			Telemetry: payload.Telemetry,
			Timestamp: payload.Timestamp,
		}
		raw, err := json.Marshal(env)
		if err != nil {
			s.log.Error().Err(err).Msg("re-encode failed")
			return
		}
		metrics.MessagesReceived.WithLabelValues(env.Type).Inc()
		s.sink(env, raw)
	}
	if token := s.client.Subscribe(s.topic, 0, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe: %w", token.Error())
	}
	s.log.Info().Msg("mqtt ingest running")
	return nil
}

func (s *MQTTSource) Stop() {
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.log.Warn().Err(token.Error()).Msg("unsubscribe failed")
	}
	s.client.Disconnect(250)
}
