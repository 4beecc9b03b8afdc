// Package mqtt publishes sensor readings to an MQTT broker.
//
// Readings are published as JSON to the configured topic. The publisher
// also maintains an availability topic ("<topic>/status") holding "online"
// while connected and "offline" via the broker's last will.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second

	// disconnectQuiesce is how long Close waits for in-flight work, in milliseconds.
	disconnectQuiesce = 250

	statusOnline  = "online"
	statusOffline = "offline"
)

// Config configures a [Publisher].
type Config struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883". Required.
	Broker string

	// Topic receives reading payloads. Required.
	Topic string

	// ClientID identifies the session. Defaults to "mitemp-" plus a random suffix.
	ClientID string

	// Username and Password authenticate against the broker. Optional.
	Username string
	Password string

	// QoS is the MQTT quality of service, 0 to 2.
	QoS byte

	// Retained marks reading payloads as retained.
	Retained bool

	// Logger receives connection events. Defaults to slog.Default().
	Logger *slog.Logger
}

// client is the part of paho's client the publisher uses.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher publishes readings to one topic.
type Publisher struct {
	cfg    Config
	client client
	logger *slog.Logger
}

// New creates a [Publisher]. It does not connect; call [Publisher.Connect].
func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "mitemp-" + uuid.NewString()[:8]
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Publisher{cfg: cfg, logger: cfg.Logger.With("broker", cfg.Broker)}
	p.client = paho.NewClient(p.clientOptions())
	return p, nil
}

func (p *Publisher) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetMaxReconnectInterval(time.Minute).
		SetKeepAlive(60 * time.Second).
		SetWriteTimeout(publishTimeout).
		SetWill(p.StatusTopic(), statusOffline, p.cfg.QoS, true)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	opts.OnConnect = func(c paho.Client) {
		p.logger.Info("mqtt connected", "client_id", p.cfg.ClientID)
		// announce availability on every (re)connect
		c.Publish(p.StatusTopic(), p.cfg.QoS, true, statusOnline)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		p.logger.Warn("mqtt connection lost", "error", err)
	}
	return opts
}

// Topic returns the reading topic.
func (p *Publisher) Topic() string {
	return p.cfg.Topic
}

// StatusTopic returns the availability topic.
func (p *Publisher) StatusTopic() string {
	return p.cfg.Topic + "/status"
}

// Connect connects to the broker. It returns when the session is
// established, ctx is done, or the connect timeout elapses.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("connect to %s: %w", p.cfg.Broker, err)
	}
	return nil
}

// Publish marshals v as JSON and publishes it to the reading topic.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retained, payload)
	if err := wait(ctx, token, publishTimeout); err != nil {
		return fmt.Errorf("publish to %s: %w", p.cfg.Topic, err)
	}
	return nil
}

// Close marks the sensor offline and disconnects.
func (p *Publisher) Close() error {
	token := p.client.Publish(p.StatusTopic(), p.cfg.QoS, true, statusOffline)
	token.WaitTimeout(time.Second)
	p.client.Disconnect(disconnectQuiesce)
	return nil
}

// wait blocks until token completes, ctx is done, or timeout elapses.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
