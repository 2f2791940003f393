// Package publish writes entity states to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cicconee/silam-pollen/internal/forecast"
	"github.com/cicconee/silam-pollen/internal/metrics"
)

// publishTimeout bounds the wait for a publish acknowledgement.
const publishTimeout = 5 * time.Second

// Options configure an MQTTPublisher.
type Options struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
}

// broker is the part of mqtt.Client used for publishing.
type broker interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes each entity state as a retained JSON message to
// {prefix}/{entry_id}/state.
type MQTTPublisher struct {
	client broker
	prefix string
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMQTTPublisher creates a publisher for opts. Connect must be called
// before the first state is written.
func NewMQTTPublisher(opts Options, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	p := &MQTTPublisher{
		prefix: strings.TrimSuffix(opts.TopicPrefix, "/"),
		logger: logger,
		stopCh: make(chan struct{}),
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	o.SetClientID(opts.ClientID)

	o.SetCleanSession(true)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetMaxReconnectInterval(60 * time.Second)

	o.SetKeepAlive(30 * time.Second)
	o.SetPingTimeout(10 * time.Second)

	o.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(o)
	return p
}

// Topic returns the state topic of entryID.
func (p *MQTTPublisher) Topic(entryID string) string {
	return p.prefix + "/" + entryID + "/state"
}

// Connect waits for the initial broker connection. It respects ctx and
// Close.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher closed")
	default:
	}

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
			return fmt.Errorf("publisher closed")
		default:
		}
	}
}

// WriteState publishes s under the topic of the entry it belongs to.
func (p *MQTTPublisher) WriteState(ctx context.Context, s forecast.State) (err error) {
	defer func() {
		metrics.PublishTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := p.Topic(s.ConfigEntryID)

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	token := p.client.Publish(topic, 1, true, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}

	p.logger.Debug("published state", "topic", topic, "state", s.State)
	return nil
}

// Close disconnects from the broker. It is safe to call more than once.
func (p *MQTTPublisher) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.client.Disconnect(250)
	p.logger.Info("mqtt disconnected")
}

// Nop discards every state. It is used when no broker is configured.
type Nop struct{}

func (Nop) WriteState(context.Context, forecast.State) error { return nil }
