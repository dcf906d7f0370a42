package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/JoelGonzalez08/TerraWeb/internal/config"
	"github.com/JoelGonzalez08/TerraWeb/internal/live"
	"github.com/JoelGonzalez08/TerraWeb/internal/store"
)

// payload is what field sensors publish on terraweb/sensors/<id>/measurements.
type payload struct {
	Metric     string     `json:"metric"`
	Value      float64    `json:"value"`
	RecordedAt *time.Time `json:"recorded_at"`
}

// Subscriber persists measurements arriving over MQTT and fans them out to
// live dashboard clients.
type Subscriber struct {
	client       mqtt.Client
	topic        string
	measurements store.MeasurementStore
	sensors      store.SensorStore
	hub          *live.Hub
}

func NewSubscriber(cfg config.MQTTConfig, measurements store.MeasurementStore, sensors store.SensorStore, hub *live.Hub) (*Subscriber, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	s := &Subscriber{
		topic:        cfg.Topic,
		measurements: measurements,
		sensors:      sensors,
		hub:          hub,
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(cfg.Topic, 1, s.handle); token.Wait() && token.Error() != nil {
			slog.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", token.Error())
		} else {
			slog.Info("subscribed to measurement topic", "topic", cfg.Topic)
		}
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return s, nil
}

func (s *Subscriber) Close() {
	s.client.Disconnect(250)
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	sensorID, err := sensorIDFromTopic(msg.Topic())
	if err != nil {
		slog.Warn("dropping measurement with bad topic", "topic", msg.Topic())
		return
	}
	var p payload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil || p.Metric == "" {
		slog.Warn("dropping malformed measurement", "topic", msg.Topic(), "error", err)
		return
	}
	recordedAt := time.Now().UTC()
	if p.RecordedAt != nil {
		recordedAt = p.RecordedAt.UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m := store.Measurement{SensorID: sensorID, Metric: p.Metric, Value: p.Value, RecordedAt: recordedAt}
	if err := s.measurements.CreateMeasurement(ctx, &m); err != nil {
		slog.Error("failed to persist measurement", "sensor", sensorID, "error", err)
		return
	}
	if err := s.sensors.TouchSensor(ctx, sensorID, recordedAt); err != nil {
		slog.Warn("failed to touch sensor", "sensor", sensorID, "error", err)
	}
	s.hub.Broadcast(m)
}

// sensorIDFromTopic extracts the uuid segment of
// <prefix>/sensors/<id>/measurements.
func sensorIDFromTopic(topic string) (uuid.UUID, error) {
	parts := strings.Split(topic, "/")
	for i, part := range parts {
		if part == "sensors" && i+1 < len(parts) {
			return uuid.Parse(parts[i+1])
		}
	}
	return uuid.Nil, fmt.Errorf("no sensor id in topic %q", topic)
}
