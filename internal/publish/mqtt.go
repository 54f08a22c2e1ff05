// Package publish mirrors forecast runs and map lookups onto an MQTT broker
// so other consumers can follow the dashboard without polling it.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/models"
)

const (
	DefaultTopicPrefix = "ecocast"
	publishTimeout     = 5 * time.Second
)

var ErrNotConnected = errors.New("mqtt client not connected")

type Config struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
}

type Publisher struct {
	client mqtt.Client
	prefix string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// ForecastMessage is the retained payload on <prefix>/forecast/latest.
type ForecastMessage struct {
	RunID       int64                `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Source      string               `json:"source"`
	Averages    forecast.Averages    `json:"averages"`
	Days        []models.ForecastDay `json:"days"`
}

// LookupMessage is published on <prefix>/lookups/<kind> for every map click.
type LookupMessage struct {
	Timestamp time.Time `json:"timestamp"`
	ingest.Result
}

func New(cfg Config) *Publisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		slog.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	return NewWithClient(mqtt.NewClient(opts), cfg.TopicPrefix)
}

func NewWithClient(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{client: client, prefix: prefix, stopCh: make(chan struct{})}
}

// Connect waits for the first connection. The client keeps retrying
// internally until ctx is done or Disconnect is called.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return errors.New("publisher stopped")
		default:
		}
	}
}

// Disconnect is safe to call more than once.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.client.Disconnect(250)
	slog.Info("mqtt disconnected")
}

func (p *Publisher) ForecastTopic() string {
	return p.prefix + "/forecast/latest"
}

func (p *Publisher) LookupTopic(kind string) string {
	return p.prefix + "/lookups/" + kind
}

func (p *Publisher) PublishForecast(run *models.ForecastRun) error {
	msg := ForecastMessage{
		RunID:       run.ID,
		GeneratedAt: run.GeneratedAt,
		Source:      run.Source,
		Averages:    forecast.Summarize(run.Days),
		Days:        run.Days,
	}
	// Retained so late subscribers get the current forecast straight away.
	return p.publish(p.ForecastTopic(), 1, true, msg)
}

func (p *Publisher) PublishLookup(res ingest.Result) error {
	msg := LookupMessage{Timestamp: time.Now().UTC(), Result: res}
	return p.publish(p.LookupTopic(res.Kind), 0, false, msg)
}

func (p *Publisher) publish(topic string, qos byte, retained bool, v any) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := p.client.Publish(topic, qos, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	slog.Debug("published", "topic", topic, "bytes", len(data))
	return nil
}

// ForecastHook publishes every new forecast run.
func (p *Publisher) ForecastHook() ingest.RunHook {
	return func(_ context.Context, run *models.ForecastRun) {
		if err := p.PublishForecast(run); err != nil {
			slog.Warn("failed to publish forecast", "run", run.ID, "error", err)
		}
	}
}

// LookupHook publishes lookups off the request path.
func (p *Publisher) LookupHook() ingest.ResultHook {
	return func(res ingest.Result) {
		go func() {
			if err := p.PublishLookup(res); err != nil {
				slog.Warn("failed to publish lookup", "kind", res.Kind, "location", res.Location, "error", err)
			}
		}()
	}
}
